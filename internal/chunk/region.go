package chunk

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/objectfs/s3harness/pkg/errors"
)

// Region is a bounded byte-range view over a shared file handle with its own
// cursor. Distinct regions over the same handle may be used from different
// goroutines; a single Region is not safe for concurrent use.
type Region struct {
	registry *Registry
	id       HandleID
	start    int64
	length   int64
	cursor   int64
	closed   bool
}

// ID returns the handle the region was opened against.
func (r *Region) ID() HandleID {
	return r.id
}

// Start returns the absolute file offset of the region.
func (r *Region) Start() int64 {
	return r.start
}

// Length returns the number of bytes covered by the region.
func (r *Region) Length() int64 {
	return r.length
}

// Tell returns the cursor relative to the region start.
func (r *Region) Tell() int64 {
	return r.cursor
}

// ReadN reads up to n bytes from the cursor. A negative n reads the rest of the
// region. At or past the end of the region it returns an empty slice and no error.
func (r *Region) ReadN(n int) ([]byte, error) {
	remaining := r.length - r.cursor
	if n < 0 || int64(n) > remaining {
		n = int(remaining)
	}
	if n <= 0 {
		if r.closed {
			return nil, r.closedError("read")
		}
		return []byte{}, nil
	}

	buf := make([]byte, n)
	got, err := r.readInto(buf)
	return buf[:got], err
}

// Read implements io.Reader over the region, returning io.EOF once the region
// is exhausted.
func (r *Region) Read(p []byte) (int, error) {
	if r.closed {
		return 0, r.closedError("read")
	}
	remaining := r.length - r.cursor
	if remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := r.readInto(p)
	if err == nil && n == 0 {
		// backing file is shorter than the region
		return 0, io.EOF
	}
	return n, err
}

// Seek implements io.Seeker relative to the region. Targets outside
// [0, Length()] are rejected and leave the cursor unchanged.
func (r *Region) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, r.closedError("seek")
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.cursor + offset
	case io.SeekEnd:
		target = r.length + offset
	default:
		return 0, errors.NewError(errors.ErrCodeInvalidRange, fmt.Sprintf("invalid whence %d", whence)).
			WithComponent("chunk").
			WithOperation("seek")
	}
	if target < 0 || target > r.length {
		return 0, errors.NewError(errors.ErrCodeInvalidRange, "seek outside region").
			WithComponent("chunk").
			WithOperation("seek").
			WithDetail("target", target).
			WithDetail("length", r.length)
	}

	err := r.critical("seek", func(f File) error {
		_, err := f.Seek(r.start+target, io.SeekStart)
		return err
	})
	if err != nil {
		return r.cursor, err
	}
	r.cursor = target
	return target, nil
}

// Close releases the region's reference on its handle. Closing twice is a no-op.
func (r *Region) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.registry.release(r.id)
	return nil
}

func (r *Region) readInto(p []byte) (int, error) {
	var got int
	err := r.critical("read", func(f File) error {
		if _, err := f.Seek(r.start+r.cursor, io.SeekStart); err != nil {
			return err
		}
		n, err := io.ReadFull(f, p)
		got = n
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		return err
	})

	r.cursor += int64(got)
	if r.cursor < 0 || r.cursor > r.length {
		panic(fmt.Sprintf("chunk: region cursor %d outside [0, %d] (start=%d)", r.cursor, r.length, r.start))
	}
	return got, err
}

// critical runs fn with exclusive use of the shared file position. The position
// seen before fn runs is restored afterwards, even when fn fails.
func (r *Region) critical(op string, fn func(f File) error) error {
	if r.closed {
		return r.closedError(op)
	}
	h, ok := r.registry.lookup(r.id)
	if !ok {
		panic(fmt.Sprintf("chunk: open region references missing handle %d", r.id))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	saved, err := h.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("chunk: save file position: %w", err)
	}

	opErr := fn(h.file)

	restored, err := h.file.Seek(saved, io.SeekStart)
	if err != nil {
		return fmt.Errorf("chunk: restore file position: %w", err)
	}
	if restored != saved {
		panic(fmt.Sprintf("chunk: restored file position %d, expected %d", restored, saved))
	}
	if opErr != nil {
		return fmt.Errorf("chunk: %s: %w", op, opErr)
	}
	return nil
}

func (r *Region) closedError(op string) error {
	return errors.NewError(errors.ErrCodeRegionClosed, "region is closed").
		WithComponent("chunk").
		WithOperation(op)
}
