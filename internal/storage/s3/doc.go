/*
Package s3 provides the object store facade used by the harness: every write
goes to an S3-compatible store and to a local ground-truth mirror.

# Architecture Overview

	┌─────────────────────────────────────────────────────────────┐
	│                           Store                             │
	│  bucket cache │ singleflight │ metrics │ chunk registry     │
	└─────────────────────────────────────────────────────────────┘
	              │                                  │
	┌───────────────────────────┐   ┌───────────────────────────┐
	│   manager.Uploader        │   │  <data_dir>/<bucket>/<key> │
	│   (single or multipart)   │   │  local mirror              │
	└───────────────────────────┘   └───────────────────────────┘
	              │
	┌───────────────────────────┐
	│   Client (aws-sdk-go-v2)  │
	└───────────────────────────┘

# Buckets

EnsureBucket is idempotent and safe for concurrent use. The first caller for a
bucket name issues HeadBucket, creates the bucket if it is absent, and creates
the mirror directory; concurrent callers for the same name wait for that
result. The creation is not tied to the first caller's context: a caller that
is cancelled stops waiting and the others still get the result. A bucket name is cached only after both sides exist, so a failed
attempt is retried on the next call.

# Writes

Put uploads through the SDK upload manager and then writes the mirror file.
The two writes are not atomic. RandomFile fills the mirror file from
crypto/rand first and then uploads the open file through a chunk.Stream, so
the manager's part workers read disjoint ranges of one shared handle:

	store, err := s3.Open(ctx, cfg, s3.WithLogger(logger))
	if err != nil {
		return err
	}
	key, err := store.RandomFile(ctx, "bench", 64<<20, "")

# Error Handling

Store methods return *errors.HarnessError values that wrap the SDK error, so
errors.As still reaches smithy.APIError and the concrete s3 types. IsNotFound
classifies both the flat API error code (NoSuchKey, NoSuchBucket, NotFound,
404) and a nested HTTP 404 status.

# Thread Safety

Store is safe for concurrent use. The bucket cache is guarded by an RWMutex;
StoreMetrics are aggregated under their own lock.
*/
package s3
