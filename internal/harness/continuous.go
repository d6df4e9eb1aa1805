package harness

import (
	"context"
	"time"

	"github.com/objectfs/s3harness/internal/validate"
)

// Checker validates one bucket.
type Checker interface {
	Validate(ctx context.Context, bucket string) (validate.Result, error)
}

// ValidateResultFunc receives the outcome of each bucket validation.
type ValidateResultFunc func(bucket string, res validate.Result, err error)

// ValidateContinuous validates buckets round after round until ctx is done.
func (h *Harness) ValidateContinuous(ctx context.Context, buckets []string, interval time.Duration, report ValidateResultFunc) int {
	return ValidateLoop(ctx, h.validator, buckets, interval, report)
}

// ValidateLoop validates every bucket in turn, waits interval, and starts
// over until ctx is done. A failed validation is reported and the loop goes
// on. It returns the number of completed rounds.
func ValidateLoop(ctx context.Context, c Checker, buckets []string, interval time.Duration, report ValidateResultFunc) int {
	rounds := 0
	for {
		for _, bucket := range buckets {
			if ctx.Err() != nil {
				return rounds
			}
			res, err := c.Validate(ctx, bucket)
			if ctx.Err() != nil {
				return rounds
			}
			if report != nil {
				report(bucket, res, err)
			}
		}
		rounds++

		if interval <= 0 {
			continue
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return rounds
		case <-t.C:
		}
	}
}
