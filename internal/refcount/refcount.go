// Package refcount holds the pieces of the reference-counting protocol
// shared by arc.Arc and arena.Arena.
package refcount

import "math"

// Max is the highest pre-increment count a clone may observe.
// Past it the caller aborts rather than risk wraparound.
const Max = math.MaxUint64 / 3

type dropper interface {
	Drop()
}

// Destroy runs the destruction logic of val once.
//
// drop wins when non-nil. Otherwise a Drop method is looked up on *T,
// then on T, so pointer payloads such as *Conn are covered too.
func Destroy[T any](val *T, drop func(*T)) {
	if drop != nil {
		drop(val)
	} else if d, ok := any(val).(dropper); ok {
		d.Drop()
	} else if d, ok := any(*val).(dropper); ok {
		d.Drop()
	}
}
