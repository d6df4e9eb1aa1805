package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeClient is an in-memory object store implementing Client.
type fakeClient struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte
	uploads  map[string]*fakeUpload
	pageSize int

	nextUpload  atomic.Int64
	headCalls   atomic.Int64
	createCalls atomic.Int64
	partCalls   atomic.Int64
	putCalls    atomic.Int64

	// getErr, when set, is returned by GetObject instead of the stored object.
	getErr error

	// headGate, when set, holds HeadBucket until it is closed or ctx ends.
	headGate chan struct{}
}

type fakeUpload struct {
	bucket string
	key    string
	parts  map[int32][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		buckets:  make(map[string]map[string][]byte),
		uploads:  make(map[string]*fakeUpload),
		pageSize: 1000,
	}
}

var _ Client = (*fakeClient)(nil)

func (f *fakeClient) object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, false
	}
	data, ok := objs[key]
	return data, ok
}

func (f *fakeClient) bucketLen(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buckets[bucket])
}

func (f *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.headCalls.Add(1)
	if f.headGate != nil {
		select {
		case <-f.headGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, &s3types.BucketAlreadyOwnedByYou{Message: aws.String(name)}
	}
	f.buckets[name] = make(map[string][]byte)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls.Add(1)
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: in.Bucket}
	}
	objs[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("%q", strconv.Itoa(len(data))))}, nil
}

func (f *fakeClient) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &s3types.NoSuchBucket{Message: in.Bucket}
	}
	id := strconv.FormatInt(f.nextUpload.Add(1), 10)
	f.uploads[id] = &fakeUpload{
		bucket: aws.ToString(in.Bucket),
		key:    aws.ToString(in.Key),
		parts:  make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
}

func (f *fakeClient) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.partCalls.Add(1)
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &s3types.NoSuchUpload{Message: in.UploadId}
	}
	num := aws.ToInt32(in.PartNumber)
	up.parts[num] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"part-%d\"", num))}, nil
}

func (f *fakeClient) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &s3types.NoSuchUpload{Message: in.UploadId}
	}

	var body bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		body.Write(up.parts[aws.ToInt32(p.PartNumber)])
	}
	f.buckets[up.bucket][up.key] = body.Bytes()
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key}, nil
}

func (f *fakeClient) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: in.Bucket}
	}
	data, ok := objs[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: in.Key}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: in.Bucket}
	}

	keys := make([]string, 0, len(objs))
	after := aws.ToString(in.ContinuationToken)
	for k := range objs {
		if k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{Name: in.Bucket}
	truncated := len(keys) > f.pageSize
	if truncated {
		keys = keys[:f.pageSize]
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	out.IsTruncated = aws.Bool(truncated)
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(objs[k]))),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (f *fakeClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &s3types.NoSuchBucket{Message: in.Bucket}
	}

	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		delete(objs, aws.ToString(id.Key))
		out.Deleted = append(out.Deleted, s3types.DeletedObject{Key: id.Key})
	}
	return out, nil
}

func (f *fakeClient) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &s3.ListBucketsOutput{}
	for _, name := range names {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}
