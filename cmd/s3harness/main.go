// s3harness drives load, consistency checks and topology changes against an
// S3-compatible cluster whose nodes run as Docker containers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/objectfs/s3harness/internal/config"
	"github.com/objectfs/s3harness/internal/harness"
	"github.com/objectfs/s3harness/pkg/utils"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	cfgFile         string
	credentialsFile string
	logLevel        string
	logFormat       string
	logFile         string
	dataDir         string
	endpoint        string
	metricsPort     int
)

// Set up by the root command before any subcommand runs.
var (
	cfg       *config.Configuration
	logCloser io.Closer
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "s3harness",
	Short: "Load and consistency harness for S3-compatible clusters",
	Long: `s3harness writes objects to an S3-compatible store while keeping a local
mirror of every object, then checks the store against the mirror. It also
starts, stops and removes cluster nodes running in Docker and waits for the
ring to rebalance after a topology change.

Configuration is read from --config (YAML), then --credentials (legacy
config.json with url/admin_key/admin_secret), then S3HARNESS_* environment
variables, then command line flags.

Examples:
  # Write 100 small objects and check them
  s3harness write-random default 100
  s3harness validate default

  # Keep load on the cluster while a node leaves
  s3harness soak default --duration 10m &
  s3harness nodes stop 3
  s3harness wait-for-rebalance

  # Replay a recorded session
  s3harness run scenarios/grow.txt`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
	addCommands(rootCmd)
	rootCmd.AddCommand(newRunCmd())
}

// addCommands registers every command a script line may use.
func addCommands(root *cobra.Command) {
	root.AddCommand(newPutCmd())
	root.AddCommand(newPutBlobCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newWriteRandomCmd())
	root.AddCommand(newBucketsCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSoakCmd())
	root.AddCommand(newNodesCmd())
	root.AddCommand(newRingOwnershipCmd())
	root.AddCommand(newWaitForRebalanceCmd())
	root.AddCommand(newAdminCmd())
	root.AddCommand(newWaitCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newConfigCmd())
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	fs.StringVar(&credentialsFile, "credentials", "", "legacy JSON credentials file (url, admin_key, admin_secret)")
	fs.StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", utils.LogFormatText, "log format (text, json)")
	fs.StringVar(&logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	fs.StringVar(&dataDir, "data-dir", "", "local mirror directory")
	fs.StringVar(&endpoint, "endpoint", "", "S3 endpoint URL")
	fs.IntVar(&metricsPort, "metrics", 0, "serve Prometheus metrics on this port")
}

// loadConfig layers defaults, the config file, legacy credentials, the
// environment and explicitly set flags, in that order.
func loadConfig(flags *pflag.FlagSet) (*config.Configuration, error) {
	c := config.NewDefault()
	if cfgFile != "" {
		if err := c.LoadFromFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if credentialsFile != "" {
		if err := c.LoadCredentialsJSON(credentialsFile); err != nil {
			return nil, err
		}
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	applyFlags(c, flags)
	return c, nil
}

func applyFlags(c *config.Configuration, flags *pflag.FlagSet) {
	if flags.Changed("log-level") {
		c.Global.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		c.Global.LogFormat = logFormat
	}
	if flags.Changed("log-file") {
		c.Global.LogFile = logFile
	}
	if flags.Changed("data-dir") {
		c.Store.DataDir = dataDir
	}
	if flags.Changed("endpoint") {
		c.Store.Endpoint = endpoint
	}
	if flags.Changed("metrics") {
		c.Metrics.Enabled = metricsPort > 0
		c.Metrics.Port = metricsPort
	}
}

func setupLogging() error {
	_, closer, err := utils.SetupLogging(utils.LogOptions{
		Level:      cfg.Global.LogLevel,
		Format:     cfg.Global.LogFormat,
		File:       cfg.Global.LogFile,
		MaxSizeMB:  cfg.Global.LogMaxSizeMB,
		MaxBackups: cfg.Global.LogMaxBackups,
	}, os.Stderr)
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}

// withHarness builds a harness from the loaded config and runs fn with a
// context that is cancelled on SIGINT or SIGTERM.
func withHarness(cmd *cobra.Command, fn func(ctx context.Context, h *harness.Harness) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := harness.New(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Stop(context.Background()); err != nil {
			slog.Warn("Harness shutdown failed", "error", err)
		}
	}()

	if err := h.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, h)
}
