package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	mathrand "math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/objectfs/s3harness/internal/chunk"
	harnesserrors "github.com/objectfs/s3harness/pkg/errors"
	"github.com/objectfs/s3harness/pkg/utils"
)

const randomWriteBuffer = 1024 * 1024

// Store writes objects to the object store while keeping a byte-identical copy
// of every object under a local data directory. Store is safe for concurrent use.
type Store struct {
	client   Client
	uploader *manager.Uploader
	dataDir  string
	registry *chunk.Registry
	logger   *slog.Logger
	metrics  *MetricsCollector

	mu      sync.RWMutex
	buckets map[string]struct{}
	group   singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder forwards per-operation observations to r.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.metrics = NewMetricsCollector(r)
	}
}

// WithRegistry sets the handle registry used for chunked uploads.
func WithRegistry(reg *chunk.Registry) Option {
	return func(s *Store) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// NewStore creates a store over an existing client.
func NewStore(cfg *Config, client Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, harnesserrors.NewError(harnesserrors.ErrCodeInvalidConfig, "object store client is required").
			WithComponent("store")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if cfg.DataDir == "" {
		return nil, harnesserrors.NewError(harnesserrors.ErrCodeMissingConfig, "data directory is required").
			WithComponent("store")
	}

	s := &Store{
		client:   client,
		dataDir:  cfg.DataDir,
		registry: chunk.DefaultRegistry(),
		logger:   slog.Default(),
		metrics:  NewMetricsCollector(nil),
		buckets:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = max(cfg.PartSize, manager.MinUploadPartSize)
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return s, nil
}

// Open builds an SDK client from cfg and returns a store over it.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, harnesserrors.NewError(harnesserrors.ErrCodeConnectionFailed, "failed to create object store client").
			WithComponent("store").
			WithCause(err)
	}
	return NewStore(cfg, client, opts...)
}

// Metrics returns a snapshot of the store's request metrics.
func (s *Store) Metrics() StoreMetrics {
	return s.metrics.GetMetrics()
}

// ErrorRate returns the fraction of store requests that failed since the
// last ResetMetrics.
func (s *Store) ErrorRate() float64 {
	return s.metrics.GetErrorRate()
}

// ResetMetrics zeroes the store's request metrics. Prometheus series are not affected.
func (s *Store) ResetMetrics() {
	s.metrics.Reset()
}

// DataDir returns the mirror root.
func (s *Store) DataDir() string {
	return s.dataDir
}

// MirrorDir returns the local directory mirroring bucket.
func (s *Store) MirrorDir(bucket string) string {
	return filepath.Join(s.dataDir, bucket)
}

// MirrorPath returns the local file mirroring bucket/key. Keys that would
// resolve outside the bucket's mirror directory are rejected.
func (s *Store) MirrorPath(bucket, key string) (string, error) {
	path, err := utils.MirrorPath(s.dataDir, bucket, key)
	if err != nil {
		return "", harnesserrors.NewError(harnesserrors.ErrCodeInvalidKey, "key cannot be mirrored").
			WithComponent("store").
			WithContext("bucket", bucket).
			WithContext("key", key).
			WithCause(err)
	}
	return path, nil
}

// EnsureBucket makes sure the bucket exists in the store and has a mirror
// directory. Concurrent calls for the same name issue at most one creation.
// The shared creation does not inherit any caller's cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (s *Store) EnsureBucket(ctx context.Context, name string) error {
	if s.hasBucket(name) {
		return nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(name, func() (interface{}, error) {
		if s.hasBucket(name) {
			return nil, nil
		}
		return nil, s.createBucket(shared, name)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) hasBucket(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[name]
	return ok
}

func (s *Store) createBucket(ctx context.Context, name string) error {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	switch {
	case err == nil:
	case IsNotFound(err):
		_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
		if err != nil && !alreadyOwned(err) {
			s.metrics.RecordOperation("create_bucket", time.Since(start), 0, err)
			return translateError(err, "create_bucket", name, "")
		}
		s.metrics.RecordOperation("create_bucket", time.Since(start), 0, nil)
		s.logger.Info("Created bucket", "bucket", name)
	default:
		s.metrics.RecordOperation("head_bucket", time.Since(start), 0, err)
		return translateError(err, "head_bucket", name, "")
	}

	if err := os.MkdirAll(s.MirrorDir(name), 0o755); err != nil {
		return harnesserrors.NewError(harnesserrors.ErrCodeMirrorWrite, "failed to create mirror directory").
			WithComponent("store").
			WithOperation("ensure_bucket").
			WithContext("bucket", name).
			WithCause(err)
	}

	s.mu.Lock()
	s.buckets[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Put uploads content to bucket/key and writes the same bytes to the mirror.
// The two writes are not atomic: a failed upload leaves the mirror untouched,
// a failed mirror write leaves the uploaded object in place.
func (s *Store) Put(ctx context.Context, bucket, key string, content []byte) error {
	path, err := s.MirrorPath(bucket, key)
	if err != nil {
		return err
	}
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	if err := s.upload(ctx, bucket, key, bytes.NewReader(content), int64(len(content))); err != nil {
		return err
	}
	return s.writeMirror(path, bucket, key, content)
}

// PutReader uploads size bytes from body to bucket/key without touching the mirror.
func (s *Store) PutReader(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	return s.upload(ctx, bucket, key, body, size)
}

func (s *Store) upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	start := time.Now()
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	s.metrics.RecordOperation("put", time.Since(start), size, err)
	if err != nil {
		return translateError(err, "put", bucket, key)
	}

	s.logger.Debug("Uploaded object", "bucket", bucket, "key", key, "size", size, "duration", time.Since(start))
	return nil
}

func (s *Store) writeMirror(path, bucket, key string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err == nil {
		err = os.WriteFile(path, content, 0o644)
	}
	if err != nil {
		return harnesserrors.NewError(harnesserrors.ErrCodeMirrorWrite, "failed to write mirror file").
			WithComponent("store").
			WithOperation("put").
			WithContext("bucket", bucket).
			WithContext("key", key).
			WithCause(err)
	}
	return nil
}

// Get returns the stored bytes of bucket/key. Absent objects and buckets yield
// an error for which IsNotFound is true.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.metrics.RecordOperation("get", time.Since(start), 0, err)
		if !IsNotFound(err) {
			s.logger.Warn("Get failed", "bucket", bucket, "key", key, "status", statusText(err), "error", err)
		}
		return nil, translateError(err, "get", bucket, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	s.metrics.RecordOperation("get", time.Since(start), int64(len(data)), err)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to read object body: %w", err), "get", bucket, key)
	}
	return data, nil
}

// CreateFile stores content under key. An empty key is replaced by a random hex
// key and nil content by the key's own bytes. It returns the key used.
func (s *Store) CreateFile(ctx context.Context, bucket, key string, content []byte) (string, error) {
	if key == "" {
		key = newKey()
	}
	if content == nil {
		content = []byte(key)
	}
	if err := s.Put(ctx, bucket, key, content); err != nil {
		return "", err
	}
	return key, nil
}

// RandomFile writes size random bytes to the mirror file for key, then uploads
// that file through a chunk stream so the upload manager's part workers share
// the open handle. An empty key is replaced by a random hex key.
func (s *Store) RandomFile(ctx context.Context, bucket string, size int64, key string) (string, error) {
	if size < 0 {
		return "", harnesserrors.NewError(harnesserrors.ErrCodeInvalidRange, "size must be non-negative").
			WithComponent("store").
			WithOperation("random_file")
	}
	if key == "" {
		key = newKey()
	}
	path, err := s.MirrorPath(bucket, key)
	if err != nil {
		return "", err
	}
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", s.mirrorError("random_file", bucket, key, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return "", s.mirrorError("random_file", bucket, key, err)
	}
	defer f.Close()

	if err := writeRandom(f, size); err != nil {
		return "", s.mirrorError("random_file", bucket, key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", s.mirrorError("random_file", bucket, key, err)
	}

	var transferred atomic.Int64
	stream, err := chunk.NewStream(s.registry, f, 0, size, size, func(n int64) { transferred.Add(n) })
	if err != nil {
		return "", err
	}
	defer stream.Close()

	if err := s.upload(ctx, bucket, key, stream, size); err != nil {
		return "", err
	}

	s.logger.Info("Uploaded random object", "bucket", bucket, "key", key, "size", size, "bytes_transferred", transferred.Load())
	return key, nil
}

func writeRandom(w io.Writer, size int64) error {
	buf := make([]byte, randomWriteBuffer)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func (s *Store) mirrorError(op, bucket, key string, err error) error {
	return harnesserrors.NewError(harnesserrors.ErrCodeMirrorWrite, "mirror file operation failed").
		WithComponent("store").
		WithOperation(op).
		WithContext("bucket", bucket).
		WithContext("key", key).
		WithCause(err)
}

// RandomRead fetches a randomly chosen mirrored key from the store.
func (s *Store) RandomRead(ctx context.Context, bucket string) (string, []byte, error) {
	keys, err := s.MirrorKeys(bucket)
	if err != nil {
		return "", nil, err
	}
	if len(keys) == 0 {
		return "", nil, harnesserrors.NewError(harnesserrors.ErrCodeFileNotFound, "no mirrored objects to read").
			WithComponent("store").
			WithOperation("random_read").
			WithContext("bucket", bucket)
	}

	key := keys[mathrand.IntN(len(keys))]
	data, err := s.Get(ctx, bucket, key)
	return key, data, err
}

// MirrorKeys returns the sorted keys of every file mirrored for bucket. A
// missing mirror directory yields no keys.
func (s *Store) MirrorKeys(bucket string) ([]string, error) {
	root := s.MirrorDir(bucket)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, harnesserrors.NewError(harnesserrors.ErrCodeFileNotFound, "failed to walk mirror directory").
			WithComponent("store").
			WithOperation("mirror_keys").
			WithContext("bucket", bucket).
			WithCause(err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListBucketKeys returns every key in bucket.
func (s *Store) ListBucketKeys(ctx context.Context, bucket string) ([]string, error) {
	start := time.Now()
	var keys []string

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			s.metrics.RecordOperation("list", time.Since(start), 0, err)
			return nil, translateError(err, "list", bucket, "")
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	s.metrics.RecordOperation("list", time.Since(start), int64(len(keys)), nil)
	return keys, nil
}

// ListBuckets returns the names of all buckets visible to the credentials.
func (s *Store) ListBuckets(ctx context.Context) ([]string, error) {
	start := time.Now()
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	s.metrics.RecordOperation("list_buckets", time.Since(start), 0, err)
	if err != nil {
		return nil, translateError(err, "list_buckets", "", "")
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// Clear deletes every object in bucket and every mirror file for it. It
// returns the larger of the two deletion counts; a bucket missing from the
// store counts as zero deletions there.
func (s *Store) Clear(ctx context.Context, bucket string) (int, error) {
	start := time.Now()
	storeDeleted, err := s.clearStore(ctx, bucket)
	s.metrics.RecordOperation("clear", time.Since(start), int64(storeDeleted), err)
	if err != nil {
		return 0, err
	}

	fsDeleted, err := s.clearMirror(bucket)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Cleared bucket", "bucket", bucket, "store_deleted", storeDeleted, "mirror_deleted", fsDeleted)
	return max(storeDeleted, fsDeleted), nil
}

func (s *Store) clearStore(ctx context.Context, bucket string) (int, error) {
	deleted := make(map[string]struct{})

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if IsNotFound(err) {
				return len(deleted), nil
			}
			return 0, translateError(err, "clear", bucket, "")
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(false)},
		})
		if err != nil {
			return 0, translateError(err, "clear", bucket, "")
		}
		for _, d := range out.Deleted {
			deleted[aws.ToString(d.Key)] = struct{}{}
		}
		for _, e := range out.Errors {
			s.logger.Warn("Delete failed", "bucket", bucket, "key", aws.ToString(e.Key),
				"code", aws.ToString(e.Code), "message", aws.ToString(e.Message))
		}
	}
	return len(deleted), nil
}

func (s *Store) clearMirror(bucket string) (int, error) {
	keys, err := s.MirrorKeys(bucket)
	if err != nil {
		return 0, err
	}

	root := s.MirrorDir(bucket)
	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		return 0, s.mirrorError("clear", bucket, "", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return 0, s.mirrorError("clear", bucket, e.Name(), err)
		}
	}
	return len(keys), nil
}

func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
