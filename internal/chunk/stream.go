package chunk

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ProgressFunc receives the number of bytes a Stream advanced. Seeks report the
// signed cursor delta. It may be called from several goroutines when the stream
// is consumed through ReadAt.
//
// ReadAt has no cursor to rewind, so a range read twice (checksumming, a
// retried part) is reported twice. The sum is bytes transferred including
// re-reads, not the stream position.
type ProgressFunc func(n int64)

// Stream adapts one chunk of a file to the io.ReadSeeker and io.ReaderAt shape
// expected by multipart upload clients.
type Stream struct {
	registry *Registry
	file     File
	start    int64
	size     int64

	region   *Region
	callback ProgressFunc
	enabled  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewStream opens a stream over min(chunkSize, fullFileSize-startByte) bytes of
// f starting at startByte. callback may be nil.
func NewStream(reg *Registry, f File, startByte, chunkSize, fullFileSize int64, callback ProgressFunc) (*Stream, error) {
	size := chunkSize
	if rest := fullFileSize - startByte; rest < size {
		size = rest
	}

	region, err := reg.Open(f, startByte, size)
	if err != nil {
		return nil, err
	}
	if region.Length() != size {
		panic(fmt.Sprintf("chunk: stream region length %d, expected %d", region.Length(), size))
	}

	s := &Stream{
		registry: reg,
		file:     f,
		start:    startByte,
		size:     size,
		region:   region,
		callback: callback,
	}
	s.enabled.Store(callback != nil)
	return s, nil
}

// Size returns the stream length in bytes.
func (s *Stream) Size() int64 {
	return s.size
}

// Tell returns the cursor relative to the start of the chunk.
func (s *Stream) Tell() int64 {
	return s.region.Tell()
}

// EnableCallback turns progress reporting on.
func (s *Stream) EnableCallback() {
	s.enabled.Store(s.callback != nil)
}

// DisableCallback turns progress reporting off.
func (s *Stream) DisableCallback() {
	s.enabled.Store(false)
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.region.Read(p)
	if n > 0 {
		s.report(int64(n))
	}
	return n, err
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	before := s.region.Tell()
	pos, err := s.region.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	if delta := pos - before; delta != 0 {
		s.report(delta)
	}
	return pos, nil
}

// ReadAt reads len(p) bytes at off relative to the chunk start. Each call uses
// its own short-lived region so concurrent calls do not share a cursor. Every
// byte read is reported, including re-reads of the same range.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("chunk: negative ReadAt offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if rest := s.size - off; rest < want {
		want = rest
	}

	sub, err := s.registry.Open(s.file, s.start+off, want)
	if err != nil {
		return 0, err
	}
	defer sub.Close()

	n, err := io.ReadFull(sub, p[:want])
	if n > 0 {
		s.report(int64(n))
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

// Close releases the stream's region. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.region.Close()
	})
	return s.closeErr
}

func (s *Stream) report(n int64) {
	if s.enabled.Load() {
		s.callback(n)
	}
}
