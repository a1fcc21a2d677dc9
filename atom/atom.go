// Package atom provides an atomic copy-on-write cell over arc handles.
//
// Readers Acquire a clone of the current handle and keep reading it for as
// long as they like. Writers replace the value (Swap, Load) or edit it
// (Update). Update edits in place while the cell is the value's only owner,
// and copies otherwise, so readers never observe a write.
//
// Naming: inspired by Clojure's atom.
package atom

import (
	"sync"

	"github.com/dacapoday/arc"
)

// Atom holds the current value of type V behind an arc handle.
//
// Zero value is closed. Call Load to initialize.
type Atom[V any] struct {
	cur   *arc.Arc[V]
	view  sync.RWMutex
	mutex sync.Mutex
}

// Load installs val, dropping the previous value if any.
func (a *Atom[V]) Load(val V) {
	a.LoadArc(arc.New(val))
}

// LoadArc installs handle, taking ownership of it.
// The previous value, if any, is dropped.
func (a *Atom[V]) LoadArc(handle *arc.Arc[V]) {
	a.mutex.Lock()
	a.view.Lock()
	old := a.cur
	a.cur = handle
	a.view.Unlock()
	a.mutex.Unlock()

	if old != nil {
		old.Drop()
	}
}

// Close drops the current value.
// No-op if already closed.
func (a *Atom[V]) Close() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.view.Lock()
	defer a.view.Unlock()

	if a.cur == nil {
		return
	}
	a.cur.Drop()
	a.cur = nil
}

// Acquire returns a handle to the current value, or nil if closed.
//
// Important: Caller must Drop the handle when done.
func (a *Atom[V]) Acquire() *arc.Arc[V] {
	a.view.RLock()
	defer a.view.RUnlock()
	if a.cur == nil {
		return nil
	}
	return a.cur.Clone()
}

// Swap replaces the current value with the result of swap.
//
// The swap function receives the current value, which it must not modify,
// and returns the new value. A non-nil error aborts the swap
// and leaves the state unchanged.
func (a *Atom[V]) Swap(swap func(val *V) (newVal V, err error)) (err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	old := a.cur
	if old == nil {
		return ErrClosed
	}

	newVal, err := swap(old.Get())
	if err != nil {
		return
	}

	a.view.Lock()
	a.cur = arc.New(newVal)
	a.view.Unlock()

	old.Drop()
	return
}

// Update edits the current value with mutate.
//
// While no reader holds the value, mutate runs on it in place.
// Otherwise mutate runs on clone(current) and the result is installed,
// leaving readers with the value they acquired.
//
// A non-nil error from mutate leaves the state unchanged, so mutate
// must not modify its argument before it fails.
func (a *Atom[V]) Update(mutate func(val *V) error, clone func(val V) V) (err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.cur == nil {
		return ErrClosed
	}

	a.view.Lock()
	if val, ok := a.cur.TryExclusive(); ok {
		err = mutate(val)
		a.view.Unlock()
		return
	}
	a.view.Unlock()

	old := a.cur
	newVal := clone(*old.Get())
	if err = mutate(&newVal); err != nil {
		return
	}

	a.view.Lock()
	a.cur = arc.New(newVal)
	a.view.Unlock()

	old.Drop()
	return
}
