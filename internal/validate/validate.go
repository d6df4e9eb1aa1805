// Package validate compares the local ground-truth mirror of a bucket against
// the object store.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	store "github.com/objectfs/s3harness/internal/storage/s3"
	"github.com/objectfs/s3harness/pkg/errors"
)

// Outcome labels used when reporting per-object results.
const (
	OutcomeSuccess       = "success"
	OutcomeMismatch      = "mismatch"
	OutcomeStoreNotFound = "store_not_found"
	OutcomeFSNotFound    = "fs_not_found"
)

// Source is the object store side of a validation run.
type Source interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	MirrorDir(bucket string) string
}

// Recorder receives one outcome per validated object.
type Recorder interface {
	RecordValidation(bucket, outcome string)
}

// Result tallies one validation run.
type Result struct {
	Total         int `json:"total"`
	Success       int `json:"success"`
	Mismatch      int `json:"mismatch"`
	StoreNotFound int `json:"store_not_found"`
	FSNotFound    int `json:"fs_not_found"`
}

// OK reports whether every mirrored object matched.
func (r Result) OK() bool {
	return r.Success == r.Total
}

func (r Result) String() string {
	return fmt.Sprintf("total=%d success=%d mismatch=%d store_not_found=%d fs_not_found=%d",
		r.Total, r.Success, r.Mismatch, r.StoreNotFound, r.FSNotFound)
}

// Validator checks that every object in the mirror exists in the store with
// identical bytes. Objects present only in the store are not examined.
type Validator struct {
	src      Source
	logger   *slog.Logger
	recorder Recorder

	// Progress, if set, is called after each object is classified.
	Progress func(key, outcome string)
}

// New creates a validator over src. logger and recorder may be nil.
func New(src Source, logger *slog.Logger, recorder Recorder) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{src: src, logger: logger, recorder: recorder}
}

// Validate classifies every file under the bucket's mirror directory. Store
// errors other than not-found abort the run and are returned with the partial
// result.
func (v *Validator) Validate(ctx context.Context, bucket string) (Result, error) {
	var res Result
	root := v.src.MirrorDir(bucket)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		outcome, err := v.check(ctx, bucket, key, path)
		if err != nil {
			return err
		}

		res.Total++
		switch outcome {
		case OutcomeSuccess:
			res.Success++
		case OutcomeMismatch:
			res.Mismatch++
		case OutcomeStoreNotFound:
			res.StoreNotFound++
		case OutcomeFSNotFound:
			res.FSNotFound++
		}
		if v.recorder != nil {
			v.recorder.RecordValidation(bucket, outcome)
		}
		if v.Progress != nil {
			v.Progress(key, outcome)
		}
		return nil
	})
	if err != nil {
		return res, errors.NewError(errors.ErrCodeValidationFailed, "validation aborted").
			WithComponent("validate").
			WithOperation("validate").
			WithContext("bucket", bucket).
			WithDetail("checked", res.Total).
			WithCause(err)
	}

	v.logger.Info("Validation finished", "bucket", bucket,
		"total", res.Total, "success", res.Success, "mismatch", res.Mismatch,
		"store_not_found", res.StoreNotFound, "fs_not_found", res.FSNotFound)
	return res, nil
}

func (v *Validator) check(ctx context.Context, bucket, key, path string) (string, error) {
	local, err := os.ReadFile(path)
	if err != nil {
		v.logger.Warn("Mirror file unreadable", "bucket", bucket, "key", key, "error", err)
		return OutcomeFSNotFound, nil
	}

	remote, err := v.src.Get(ctx, bucket, key)
	if err != nil {
		if store.IsNotFound(err) {
			v.logger.Warn("Object missing from store", "bucket", bucket, "key", key)
			return OutcomeStoreNotFound, nil
		}
		return "", err
	}

	if !bytes.Equal(local, remote) {
		v.logger.Warn("Object content mismatch", "bucket", bucket, "key", key,
			"mirror_size", len(local), "store_size", len(remote))
		return OutcomeMismatch, nil
	}
	return OutcomeSuccess, nil
}
