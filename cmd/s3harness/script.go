package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/objectfs/s3harness/internal/harness"
)

func newAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin -- [args...]",
		Short: "Run the cluster admin command",
		Long: `Run cluster.admin_command (default ./bin/ssh_command.sh riak-admin) with the
given arguments and print its output. Exit status 1 is not treated as a
failure. Run with no arguments to list the available admin commands.

Examples:
  s3harness admin -- member-status
  s3harness admin -- cluster plan`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				out, err := h.Admin(ctx, args...)
				if _, werr := cmd.OutOrStdout().Write(out); werr != nil && err == nil {
					err = werr
				}
				return err
			})
		},
	}
}

func newWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <seconds>",
		Short: "Pause, printing a dot per second",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds < 0 {
				return fmt.Errorf("invalid wait %q: must be a number of seconds", args[0])
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return waitTicks(ctx, cmd.OutOrStdout(), seconds, time.Second)
		},
	}
}

func waitTicks(ctx context.Context, w io.Writer, n int, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprint(w, ".")
		}
	}
	fmt.Fprintln(w)
	return nil
}

func newRunCmd() *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run harness commands from a file, one per line",
		Long: `Run each line of a script as an s3harness command line, with the global
flags of this invocation. Blank lines and lines starting with # are skipped;
every other line is echoed before it runs. Arguments may be quoted as in a
shell. Use - to read the script from stdin.

Example script:
  # grow the cluster under load
  write-random default 200
  nodes add 2
  wait 30
  validate default`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			in := cmd.InOrStdin()
			if name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runScript(cmd.Context(), in, name, cmd.OutOrStdout(), cmd.ErrOrStderr(), keepGoing)
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "report failing lines and continue")
	return cmd
}

func runScript(ctx context.Context, r io.Reader, name string, out, errOut io.Writer, keepGoing bool) error {
	failed := 0
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintln(out, line)

		args, err := shlex.Split(line)
		if err == nil {
			err = runLine(ctx, args, out, errOut)
		}
		if err != nil {
			err = fmt.Errorf("%s:%d: %w", name, lineNo, err)
			if !keepGoing {
				return err
			}
			fmt.Fprintf(errOut, "Error: %v\n", err)
			failed++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d script lines failed", failed)
	}
	return nil
}

// runLine executes one script line on a fresh command tree so flag values
// never carry over from earlier lines.
func runLine(ctx context.Context, args []string, out, errOut io.Writer) error {
	line := &cobra.Command{
		Use:           "s3harness",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addCommands(line)
	line.SetArgs(args)
	line.SetOut(out)
	line.SetErr(errOut)
	return line.ExecuteContext(ctx)
}
