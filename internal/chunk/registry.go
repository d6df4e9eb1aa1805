package chunk

import (
	"io"
	"sync"

	"github.com/objectfs/s3harness/pkg/errors"
)

// File is the shared handle a Registry guards. Its dynamic type must be
// comparable (a pointer such as *os.File) because the registry keys entries by
// handle identity.
type File interface {
	io.Reader
	io.Seeker
}

// HandleID identifies one registered file handle for the lifetime of its entry.
type HandleID uint64

// handle is one lock-table entry: the mutex serializing seek+read pairs on the
// shared OS position, and the number of open regions over the file.
type handle struct {
	id   HandleID
	file File
	mu   sync.Mutex
	refs int
}

// Registry maps file handles to their lock-table entries. Entries are created
// when the first region over a handle opens and removed when the last one closes.
type Registry struct {
	mu      sync.Mutex
	nextID  HandleID
	ids     map[File]HandleID
	handles map[HandleID]*handle
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when callers do not
// manage their own.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{
		ids:     make(map[File]HandleID),
		handles: make(map[HandleID]*handle),
	}
}

// Open registers a new region over [start, start+length) of f.
func (r *Registry) Open(f File, start, length int64) (*Region, error) {
	if start < 0 || length < 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidRange, "region start and length must be non-negative").
			WithComponent("chunk").
			WithOperation("open").
			WithDetail("start", start).
			WithDetail("length", length)
	}

	id := r.retain(f)
	return &Region{
		registry: r,
		id:       id,
		start:    start,
		length:   length,
	}, nil
}

// Len returns the number of live lock-table entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Refs returns the reference count of the entry for id, or 0 if it has been removed.
func (r *Registry) Refs(id HandleID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[id]; ok {
		return h.refs
	}
	return 0
}

func (r *Registry) retain(f File) HandleID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.ids[f]; ok {
		r.handles[id].refs++
		return id
	}

	r.nextID++
	h := &handle{id: r.nextID, file: f, refs: 1}
	r.ids[f] = h.id
	r.handles[h.id] = h
	return h.id
}

func (r *Registry) release(id HandleID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	if !ok {
		return
	}
	h.refs--
	if h.refs <= 0 {
		delete(r.handles, id)
		delete(r.ids, h.file)
	}
}

// lookup returns the entry for id. The table lock is released before the
// caller takes the handle mutex.
func (r *Registry) lookup(id HandleID) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}
