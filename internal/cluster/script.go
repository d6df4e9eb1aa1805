package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"

	harnesserrors "github.com/objectfs/s3harness/pkg/errors"
)

// Script runs a cluster helper command such as bin/add_node.sh or
// bin/ssh_command.sh riak-admin.
type Script struct {
	Argv []string
	Dir  string

	// OKCodes lists non-zero exit codes that still count as success.
	OKCodes []int
}

// Run runs Argv with extra appended and returns its combined stdout and stderr.
func (s *Script) Run(ctx context.Context, extra ...string) ([]byte, error) {
	if len(s.Argv) == 0 {
		return nil, harnesserrors.NewError(harnesserrors.ErrCodeMissingConfig, "no command configured").
			WithComponent("cluster").
			WithOperation("script")
	}

	args := append(slices.Clone(s.Argv[1:]), extra...)
	cmd := exec.CommandContext(ctx, s.Argv[0], args...)
	cmd.Dir = s.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && slices.Contains(s.OKCodes, exitErr.ExitCode()) {
		err = nil
	}
	if err != nil {
		return out.Bytes(), harnesserrors.NewError(harnesserrors.ErrCodeNodeCommand, "cluster command failed").
			WithComponent("cluster").
			WithOperation("script").
			WithContext("command", s.Argv[0]).
			WithCause(fmt.Errorf("%w: %s", err, bytes.TrimSpace(out.Bytes())))
	}
	return out.Bytes(), nil
}
