package harness

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

const defaultReportEvery = 100

// Workload is the store surface a soak run drives.
type Workload interface {
	CreateFile(ctx context.Context, bucket, key string, content []byte) (string, error)
	RandomRead(ctx context.Context, bucket string) (string, []byte, error)
}

// SoakOptions tunes a soak run.
type SoakOptions struct {
	// ReadRatio is the number of random reads per write. Zero only writes.
	ReadRatio int
	// Duration bounds the run; zero runs until ctx is done.
	Duration time.Duration
	// ReportEvery is the number of operations between reports.
	ReportEvery int
	// Report, if set, receives a running total every ReportEvery operations.
	Report func(SoakReport)
}

// SoakFailure is one failed soak operation.
type SoakFailure struct {
	Op  string
	Err error
}

// SoakReport counts soak operations. Failures holds the failures since the
// previous report; Failed is the running total.
type SoakReport struct {
	Ops      int
	Reads    int
	Writes   int
	Failed   int
	Failures []SoakFailure

	// ErrorRate is the store's failed request fraction, set on the final
	// report from Harness.Soak.
	ErrorRate float64
}

// Soak runs the configured mixed workload against bucket. The store's request
// counters are reset first so ErrorRate covers this run alone.
func (h *Harness) Soak(ctx context.Context, bucket string, opts SoakOptions) SoakReport {
	h.store.ResetMetrics()
	r := RunSoak(ctx, h.store, bucket, opts, h.logger)
	r.ErrorRate = h.store.ErrorRate()
	return r
}

// RunSoak issues random reads and small writes against bucket until ctx is
// done or opts.Duration elapses. Failed operations are counted and reported,
// never fatal: the point of a soak is to keep load on the cluster while its
// topology changes.
func RunSoak(ctx context.Context, w Workload, bucket string, opts SoakOptions, logger *slog.Logger) SoakReport {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReportEvery <= 0 {
		opts.ReportEvery = defaultReportEvery
	}
	if opts.ReadRatio < 0 {
		opts.ReadRatio = 0
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var total SoakReport
	var batch []SoakFailure
	for ctx.Err() == nil {
		op := "write"
		var err error
		if rand.IntN(opts.ReadRatio+1) < opts.ReadRatio {
			op = "read"
			_, _, err = w.RandomRead(ctx, bucket)
			total.Reads++
		} else {
			_, err = w.CreateFile(ctx, bucket, "", nil)
			total.Writes++
		}
		total.Ops++

		// an operation cut short by the end of the run is not a failure
		if err != nil && ctx.Err() == nil {
			total.Failed++
			batch = append(batch, SoakFailure{Op: op, Err: err})
			logger.Debug("Soak operation failed", "op", op, "bucket", bucket, "error", err)
		}

		if total.Ops%opts.ReportEvery == 0 {
			if opts.Report != nil {
				r := total
				r.Failures = batch
				opts.Report(r)
			}
			batch = nil
		}
	}

	total.Failures = batch
	logger.Info("Soak finished", "bucket", bucket,
		"ops", total.Ops, "reads", total.Reads, "writes", total.Writes, "failed", total.Failed)
	return total
}
