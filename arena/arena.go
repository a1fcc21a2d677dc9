// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package arena stores reference-counted records in a growable shared arena.
//
// Records are addressed by Handle, an index paired with a generation.
// Each slot runs the same counter protocol as arc.Arc: Clone increments,
// Drop decrements, the last Drop runs the payload's drop logic and
// recycles the slot under a new generation. Handles that outlive their
// record are reported as ErrStale instead of aliasing the slot's next tenant.
//
// Handle is a plain value: copying it does not count as a clone.
// Call Clone for every additional owner and Drop each owner exactly once.
package arena

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dacapoday/arc/internal/abort"
	"github.com/dacapoday/arc/internal/refcount"
)

const (
	chunkBits = 8
	chunkSize = 1 << chunkBits
	chunkMask = chunkSize - 1
)

// Handle addresses one record in an Arena.
// The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// Index returns the slot index of the handle.
func (h Handle) Index() uint32 { return h.index }

// Gen returns the slot generation the handle was issued for.
func (h Handle) Gen() uint32 { return h.gen }

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.gen)
}

type slot[T any] struct {
	count atomic.Uint64
	gen   atomic.Uint32
	drop  func(*T)
	val   T
}

type chunk[T any] [chunkSize]slot[T]

// Arena is a growable store of reference-counted records.
// Slots never move, so a slot pointer stays valid across growth.
//
// Zero value is ready to use. An Arena must not be copied after first use.
type Arena[T any] struct {
	view   sync.RWMutex // guards chunks
	chunks []*chunk[T]

	mutex sync.Mutex // guards free and writes to chunks and size
	free  []uint32
	size  atomic.Uint32

	live atomic.Int64
}

// New stores val with a reference count of 1 and returns its handle.
//
// If *T or T implements arc.Dropper, its Drop method runs when the last
// handle is dropped.
func (arena *Arena[T]) New(val T) Handle {
	return arena.NewFunc(val, nil)
}

// NewFunc stores val with a reference count of 1 and returns its handle.
// drop runs when the last handle is dropped, instead of any Dropper method.
func (arena *Arena[T]) NewFunc(val T, drop func(*T)) Handle {
	arena.mutex.Lock()
	s, index := arena.alloc()
	arena.mutex.Unlock()

	s.val, s.drop = val, drop
	s.count.Store(1)
	arena.live.Add(1)
	return Handle{index: index, gen: s.gen.Load()}
}

// alloc pops a free slot or grows the arena by one slot.
// Caller must hold arena.mutex.
func (arena *Arena[T]) alloc() (s *slot[T], index uint32) {
	if n := len(arena.free); n > 0 {
		index = arena.free[n-1]
		arena.free = arena.free[:n-1]
		return &arena.chunks[index>>chunkBits][index&chunkMask], index
	}

	index = arena.size.Load()
	if index == math.MaxUint32 {
		abort.Abort("arena.New: slot index overflow")
	}
	if int(index>>chunkBits) == len(arena.chunks) {
		arena.view.Lock()
		arena.chunks = append(arena.chunks, new(chunk[T]))
		arena.view.Unlock()
	}

	s = &arena.chunks[index>>chunkBits][index&chunkMask]
	s.gen.Store(1)
	arena.size.Store(index + 1)
	return
}

func (arena *Arena[T]) slot(h Handle) (*slot[T], error) {
	arena.view.RLock()
	defer arena.view.RUnlock()

	if h.index >= arena.size.Load() {
		return nil, ErrOutOfRange
	}
	s := &arena.chunks[h.index>>chunkBits][h.index&chunkMask]
	if h.gen == 0 || s.gen.Load() != h.gen {
		return nil, ErrStale
	}
	return s, nil
}

// Clone registers another owner of h's record and returns its handle.
// Aborts the process if the reference count would approach overflow.
func (arena *Arena[T]) Clone(h Handle) (Handle, error) {
	s, err := arena.slot(h)
	if err != nil {
		return Handle{}, fmt.Errorf("arena.Clone: %w", err)
	}
	if s.count.Add(1)-1 > refcount.Max {
		abort.Abort("arena.Clone: reference count overflow")
	}
	return h, nil
}

// Drop releases one owner of h's record.
// The last Drop runs the drop logic and recycles the slot;
// every copy of h is stale afterwards.
func (arena *Arena[T]) Drop(h Handle) error {
	s, err := arena.slot(h)
	if err != nil {
		return fmt.Errorf("arena.Drop: %w", err)
	}
	n := s.count.Add(^uint64(0))
	refcount.AssertDecrement("arena.Drop", n+1)
	if n != 0 {
		return nil
	}

	refcount.Destroy(&s.val, s.drop)
	var nilVal T
	s.val, s.drop = nilVal, nil

	if s.gen.Add(1) == 0 {
		s.gen.Store(1)
	}
	arena.live.Add(-1)

	arena.mutex.Lock()
	arena.free = append(arena.free, h.index)
	arena.mutex.Unlock()
	return nil
}

// Get returns the shared payload of h's record.
// Valid until the caller's handle is dropped.
func (arena *Arena[T]) Get(h Handle) (*T, error) {
	s, err := arena.slot(h)
	if err != nil {
		return nil, fmt.Errorf("arena.Get: %w", err)
	}
	return &s.val, nil
}

// Count returns the number of live owners of h's record.
// The result is a racy snapshot, for diagnostics only.
func (arena *Arena[T]) Count(h Handle) (uint64, error) {
	s, err := arena.slot(h)
	if err != nil {
		return 0, fmt.Errorf("arena.Count: %w", err)
	}
	return s.count.Load(), nil
}

// TryExclusive returns a mutable payload pointer if h is the record's only owner.
//
// As with arc.Arc.TryExclusive, the caller must be the sole holder of
// this owner for the duration of the call and the use of the pointer.
func (arena *Arena[T]) TryExclusive(h Handle) (val *T, ok bool, err error) {
	s, err := arena.slot(h)
	if err != nil {
		return nil, false, fmt.Errorf("arena.TryExclusive: %w", err)
	}
	if s.count.Load() != 1 {
		return
	}
	return &s.val, true, nil
}

// Len returns the number of live records.
func (arena *Arena[T]) Len() int {
	return int(arena.live.Load())
}

// Cap returns the number of slots allocated so far, live or free.
func (arena *Arena[T]) Cap() int {
	return int(arena.size.Load())
}
