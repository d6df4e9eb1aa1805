package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3harness/internal/harness"
	"github.com/objectfs/s3harness/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var (
		continuous bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "validate [bucket...]",
		Short: "Check that every mirrored object is stored with the same content",
		Long: `Check that every object in the local mirror exists in the store with
identical content. Without arguments every bucket is checked. With
--continuous the check repeats until interrupted and failures are reported
without stopping the loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Harness.ValidateInterval
			}

			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				buckets, err := bucketsOrAll(ctx, h.Store(), args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				report := func(bucket string, res validate.Result, err error) {
					if err != nil {
						fmt.Fprintf(out, "%s: error: %v\n", bucket, err)
						return
					}
					fmt.Fprintf(out, "%s: %s\n", bucket, res)
				}

				if continuous {
					rounds := h.ValidateContinuous(ctx, buckets, interval, report)
					fmt.Fprintf(out, "stopped after %d rounds\n", rounds)
					return nil
				}

				failed := 0
				for _, b := range buckets {
					res, err := h.Validator().Validate(ctx, b)
					report(b, res, err)
					if err != nil || !res.OK() {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("validation failed for %d of %d buckets", failed, len(buckets))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&continuous, "continuous", false, "repeat until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between rounds (default harness.validate_interval)")
	return cmd
}

func newSoakCmd() *cobra.Command {
	var (
		readRatio int
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "soak [bucket]",
		Short: "Run a mixed read/write workload until interrupted",
		Long: `Run random reads and small writes against a bucket, by default four
reads per write, until interrupted or --duration elapses. Failed operations
are reported every 100 operations and do not stop the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := cfg.Harness.DefaultBucket
			if len(args) > 0 {
				bucket = args[0]
			}
			opts := harness.SoakOptions{
				ReadRatio: cfg.Harness.SoakReadRatio,
				Duration:  cfg.Harness.SoakDuration,
			}
			if cmd.Flags().Changed("read-ratio") {
				opts.ReadRatio = readRatio
			}
			if cmd.Flags().Changed("duration") {
				opts.Duration = duration
			}

			out := cmd.OutOrStdout()
			opts.Report = func(r harness.SoakReport) {
				fmt.Fprintf(out, "ops=%d reads=%d writes=%d failed=%d\n", r.Ops, r.Reads, r.Writes, r.Failed)
				for _, f := range r.Failures {
					fmt.Fprintf(out, "  %s failed: %v\n", f.Op, f.Err)
				}
			}

			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				r := h.Soak(ctx, bucket, opts)
				fmt.Fprintf(out, "finished: ops=%d reads=%d writes=%d failed=%d store_error_rate=%.2f%%\n",
					r.Ops, r.Reads, r.Writes, r.Failed, r.ErrorRate*100)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&readRatio, "read-ratio", 4, "reads per write")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default until interrupted)")
	return cmd
}
