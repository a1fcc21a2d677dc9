// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package arc provides an atomically reference-counted shared-ownership handle.
//
// Many goroutines may hold independent handles to one payload. The payload's
// drop logic runs exactly once, when the last handle is dropped. A mutable
// view is only handed out while a handle is provably the sole owner.
//
//	a := arc.New(0)
//	b := a.Clone()        // Count() == 2
//	b.Drop()              // Count() == 1
//	if p, ok := a.TryExclusive(); ok {
//		*p = 42
//	}
//	a.Drop()              // drop logic runs here
//
// The payload's own internal state is not synchronized by Arc.
package arc

import (
	"sync/atomic"

	"github.com/dacapoday/arc/internal/abort"
	"github.com/dacapoday/arc/internal/refcount"
)

// Dropper is implemented by payloads with destruction logic.
// Drop is called once, by the goroutine that drops the last handle.
type Dropper interface {
	Drop()
}

type record[T any] struct {
	count atomic.Uint64
	drop  func(*T)
	val   T
}

// Arc is a handle to a shared payload.
//
// Handles are pointers: copy a handle with Clone, never by assignment.
// A handle must be dropped exactly once.
type Arc[T any] struct {
	_   noCopy
	rec *record[T]
}

// New returns the first handle to val.
//
// If *T or T implements Dropper, its Drop method runs when the last handle
// is dropped. For a pointer payload such as *Conn, Conn's Drop is found on T.
func New[T any](val T) *Arc[T] {
	return NewFunc(val, nil)
}

// NewFunc returns the first handle to val.
// drop runs when the last handle is dropped, instead of any Dropper method.
func NewFunc[T any](val T, drop func(*T)) *Arc[T] {
	rec := &record[T]{val: val, drop: drop}
	rec.count.Store(1)
	return &Arc[T]{rec: rec}
}

// Clone returns a new handle to the same payload.
// Aborts the process if the reference count would approach overflow.
func (arc *Arc[T]) Clone() *Arc[T] {
	rec := arc.shared("Clone")
	if rec.count.Add(1)-1 > refcount.Max {
		abort.Abort("arc.Clone: reference count overflow")
	}
	return &Arc[T]{rec: rec}
}

// Drop releases this handle. The handle is unusable afterwards.
//
// Writes made through any handle before its Drop happen before
// the payload's drop logic.
func (arc *Arc[T]) Drop() {
	rec := arc.shared("Drop")
	arc.rec = nil

	n := rec.count.Add(^uint64(0))
	refcount.AssertDecrement("arc.Drop", n+1)
	if n != 0 {
		return
	}

	refcount.Destroy(&rec.val, rec.drop)
	var nilVal T
	rec.val, rec.drop = nilVal, nil
}

// Get returns the shared payload. Valid until this handle is dropped.
func (arc *Arc[T]) Get() *T {
	return &arc.shared("Get").val
}

// Count returns the number of live handles.
//
// The result is an instantaneous snapshot: with other goroutines cloning
// or dropping it may be stale by the time it is returned.
// Use it for diagnostics only.
func (arc *Arc[T]) Count() uint64 {
	return arc.shared("Count").count.Load()
}

// TryExclusive returns a mutable payload pointer if arc is the only handle.
//
// The caller must hold arc exclusively for the duration of the call and
// for as long as it uses the returned pointer: no other goroutine may
// clone, read or drop through this same handle. Under that contract a
// count of 1 cannot change, since raising it needs a second handle.
func (arc *Arc[T]) TryExclusive() (val *T, ok bool) {
	rec := arc.shared("TryExclusive")
	if rec.count.Load() != 1 {
		return
	}
	return &rec.val, true
}

// PtrEqual reports whether a and b refer to the same payload.
func PtrEqual[T any](a, b *Arc[T]) bool {
	return a.shared("PtrEqual") == b.shared("PtrEqual")
}

func (arc *Arc[T]) shared(method string) *record[T] {
	if arc.rec == nil {
		panic("arc." + method + ": " + ErrDropped.Error())
	}
	return arc.rec
}

// noCopy trips go vet's copylocks check when an Arc is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
