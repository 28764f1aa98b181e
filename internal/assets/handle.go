// Package assets provides typed asset handles, an asset store and the
// shader asset server.
package assets

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var nextID atomic.Uint64

// Handle is a typed reference to an asset. The zero Handle is invalid.
// Handles are comparable and may be used as map keys.
type Handle[T any] struct {
	id   uint64
	path string
}

// NewHandle allocates a fresh handle. path is informational and may be empty.
func NewHandle[T any](path string) Handle[T] {
	return Handle[T]{id: nextID.Add(1), path: path}
}

// ID returns the handle's unique id.
func (h Handle[T]) ID() uint64 { return h.id }

// Path returns the asset path the handle was created for, if any.
func (h Handle[T]) Path() string { return h.path }

// IsValid reports whether the handle refers to an asset slot.
func (h Handle[T]) IsValid() bool { return h.id != 0 }

func (h Handle[T]) String() string {
	if h.path != "" {
		return fmt.Sprintf("Handle(%d, %q)", h.id, h.path)
	}
	return fmt.Sprintf("Handle(%d)", h.id)
}

type slot[T any] struct {
	handle     Handle[T]
	value      T
	generation uint64
	revision   uint64
}

// Assets stores assets of one type. Every Set bumps the handle's
// generation, which consumers compare against to notice changes.
//
// Assets is safe for concurrent use.
type Assets[T any] struct {
	mu       sync.RWMutex
	slots    map[uint64]*slot[T]
	revision uint64
}

// NewAssets creates an empty store.
func NewAssets[T any]() *Assets[T] {
	return &Assets[T]{slots: make(map[uint64]*slot[T])}
}

// Add stores v under a new handle.
func (a *Assets[T]) Add(v T) Handle[T] {
	h := NewHandle[T]("")
	a.Set(h, v)
	return h
}

// Set stores v under h, replacing any previous value.
func (a *Assets[T]) Set(h Handle[T], v T) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.slots[h.id]
	if !ok {
		s = &slot[T]{handle: h}
		a.slots[h.id] = s
	}
	a.revision++
	s.value = v
	s.generation++
	s.revision = a.revision
}

// Changed returns the handles set after revision since, together with the
// store's current revision to pass to the next call. Pass 0 to list every
// stored asset.
func (a *Assets[T]) Changed(since uint64) ([]Handle[T], uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Handle[T]
	for _, s := range a.slots {
		if s.revision > since {
			out = append(out, s.handle)
		}
	}
	return out, a.revision
}

// Get returns the value stored under h.
func (a *Assets[T]) Get(h Handle[T]) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.slots[h.id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Generation returns how many times h has been set. Zero means absent.
func (a *Assets[T]) Generation(h Handle[T]) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if s, ok := a.slots[h.id]; ok {
		return s.generation
	}
	return 0
}

// Remove deletes the value stored under h.
func (a *Assets[T]) Remove(h Handle[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, h.id)
}

// Len returns the number of stored assets.
func (a *Assets[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots)
}
