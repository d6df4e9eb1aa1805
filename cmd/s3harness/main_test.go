package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3harness/internal/cluster"
	"github.com/objectfs/s3harness/internal/config"
)

func newTestFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addGlobalFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestApplyFlags(t *testing.T) {
	fs := newTestFlags(t, "--endpoint", "https://s3.example.com", "--metrics", "9100", "-l", "debug")

	c := config.NewDefault()
	c.Store.DataDir = "/kept"
	applyFlags(c, fs)

	assert.Equal(t, "https://s3.example.com", c.Store.Endpoint)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, 9100, c.Metrics.Port)
	assert.Equal(t, "debug", c.Global.LogLevel)
	assert.Equal(t, "/kept", c.Store.DataDir, "unset flags leave the config alone")
	assert.Equal(t, "text", c.Global.LogFormat)
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "s3harness.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  endpoint: http://from-file:8080
  data_dir: /from/file
harness:
  default_bucket: soak
`), 0o600))
	t.Setenv("S3HARNESS_DATA_DIR", "/from/env")

	fs := newTestFlags(t, "--config", file, "--endpoint", "http://from-flag:8080")
	t.Cleanup(func() { cfgFile = "" })

	c, err := loadConfig(fs)
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag:8080", c.Store.Endpoint)
	assert.Equal(t, "/from/env", c.Store.DataDir)
	assert.Equal(t, "soak", c.Harness.DefaultBucket)
	assert.Equal(t, 4, c.Harness.SoakReadRatio, "defaults survive a partial file")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	fs := newTestFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Cleanup(func() { cfgFile = "" })

	_, err := loadConfig(fs)
	assert.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "1", want: 1},
		{input: "12", want: 12},
		{input: "0", wantErr: true},
		{input: "-2", wantErr: true},
		{input: "riak-cs1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseIndex(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type staticBuckets []string

func (s staticBuckets) ListBuckets(context.Context) ([]string, error) { return s, nil }

func TestBucketsOrAll(t *testing.T) {
	all := staticBuckets{"a", "b", "c"}

	got, err := bucketsOrAll(context.Background(), all, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = bucketsOrAll(context.Background(), all, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)
}

func TestPrintRing(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	require.NoError(t, printRing(cmd, cluster.RingSnapshot{
		NumPartitions: 64,
		Ownership:     map[string]int{"riak@10.0.0.3": 21, "riak@10.0.0.2": 22, "riak@10.0.0.4": 21},
	}))

	assert.Equal(t, "NODE           PARTITIONS\n"+
		"riak@10.0.0.2  22\n"+
		"riak@10.0.0.3  21\n"+
		"riak@10.0.0.4  21\n"+
		"total          64\n", buf.String())
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Setenv("S3HARNESS_SECRET_ACCESS_KEY", "topsecret")
	t.Setenv("S3HARNESS_ACCESS_KEY_ID", "admin")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config", "show", "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "access_key_id: admin")
	assert.Contains(t, buf.String(), "********")
	assert.NotContains(t, buf.String(), "topsecret")
}

func withDefaultConfig(t *testing.T) {
	t.Helper()

	cfg = config.NewDefault()
	t.Cleanup(func() { cfg = nil })
}

func TestRunScript_SkipsCommentsAndEchoes(t *testing.T) {
	withDefaultConfig(t)

	script := "# warm up\n\nwait 0\n   \nconfig show\n"
	var out, errOut bytes.Buffer
	require.NoError(t, runScript(context.Background(), strings.NewReader(script), "warmup.txt", &out, &errOut, false))

	assert.True(t, strings.HasPrefix(out.String(), "wait 0\n\nconfig show\n"), out.String())
	assert.Contains(t, out.String(), "default_bucket: default")
	assert.NotContains(t, out.String(), "warm up")
	assert.Empty(t, errOut.String())
}

func TestRunScript_StopsAtFirstFailure(t *testing.T) {
	withDefaultConfig(t)

	script := "wait 0\nbogus\nwait 0\n"
	var out, errOut bytes.Buffer
	err := runScript(context.Background(), strings.NewReader(script), "s.txt", &out, &errOut, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "s.txt:2:")
	assert.Contains(t, err.Error(), `unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(out.String(), "wait 0"))
}

func TestRunScript_KeepGoing(t *testing.T) {
	withDefaultConfig(t)

	script := "wait 0\nbogus\nwait 0\n"
	var out, errOut bytes.Buffer
	err := runScript(context.Background(), strings.NewReader(script), "s.txt", &out, &errOut, true)

	assert.EqualError(t, err, "1 script lines failed")
	assert.Equal(t, 2, strings.Count(out.String(), "wait 0"))
	assert.Contains(t, errOut.String(), "Error: s.txt:2:")
}

func TestRunScript_FlagsDoNotCarryOver(t *testing.T) {
	withDefaultConfig(t)

	path := filepath.Join(t.TempDir(), "written.yaml")
	script := "config init '" + path + "' --force\nconfig init '" + path + "'\n"
	var out, errOut bytes.Buffer
	err := runScript(context.Background(), strings.NewReader(script), "s.txt", &out, &errOut, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "s.txt:2:")
	assert.Contains(t, err.Error(), "already exists")
	assert.FileExists(t, path)
}

func TestRunScript_UnbalancedQuote(t *testing.T) {
	withDefaultConfig(t)

	var out, errOut bytes.Buffer
	err := runScript(context.Background(), strings.NewReader(`put b k "unterminated`), "s.txt", &out, &errOut, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s.txt:1:")
}

func TestWaitTicks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, waitTicks(context.Background(), &out, 3, time.Millisecond))
	assert.Equal(t, "...\n", out.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out.Reset()
	assert.ErrorIs(t, waitTicks(ctx, &out, 5, time.Hour), context.Canceled)
	assert.Equal(t, "\n", out.String())
}
