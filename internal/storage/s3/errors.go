package s3

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	harnesserrors "github.com/objectfs/s3harness/pkg/errors"
)

// notFoundCodes are the error codes that mean the bucket or key does not exist.
// "NotFound" is what HEAD responses carry since they have no body.
var notFoundCodes = map[string]bool{
	"NoSuchKey":    true,
	"NoSuchBucket": true,
	"404":          true,
	"NotFound":     true,
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// IsNotFound reports whether err means the bucket or object is absent. It
// recognizes the flat API error code and the nested HTTP response status, as
// well as harness not-found errors produced by this package.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if harnesserrors.HasCode(err, harnesserrors.ErrCodeObjectNotFound) ||
		harnesserrors.HasCode(err, harnesserrors.ErrCodeBucketNotFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && notFoundCodes[apiErr.ErrorCode()] {
		return true
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) && notFoundCodes[strconv.Itoa(statusErr.HTTPStatusCode())] {
		return true
	}
	return false
}

func isBucketMissing(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		return true
	}
	return harnesserrors.HasCode(err, harnesserrors.ErrCodeBucketNotFound)
}

func alreadyOwned(err error) bool {
	if isErrorType[*s3types.BucketAlreadyOwnedByYou](err) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func translateError(err error, operation, bucket, key string) error {
	if err == nil {
		return nil
	}

	var code harnesserrors.ErrorCode
	switch {
	case isBucketMissing(err):
		code = harnesserrors.ErrCodeBucketNotFound
	case IsNotFound(err):
		code = harnesserrors.ErrCodeObjectNotFound
	case operation == "put" || operation == "create_bucket":
		code = harnesserrors.ErrCodeStorageWrite
	case operation == "clear":
		code = harnesserrors.ErrCodeStorageDelete
	default:
		code = harnesserrors.ErrCodeStorageRead
	}

	return harnesserrors.NewError(code, fmt.Sprintf("%s failed for %s/%s", operation, bucket, key)).
		WithComponent("store").
		WithOperation(operation).
		WithContext("bucket", bucket).
		WithContext("key", key).
		WithCause(err)
}

// statusText is used in log lines for HTTP-shaped failures.
func statusText(err error) string {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return http.StatusText(statusErr.HTTPStatusCode())
	}
	return ""
}
