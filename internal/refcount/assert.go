//go:build debug

package refcount

import "fmt"

// AssertDecrement panics if a decrement observed a zero count.
// Only enabled with -tags debug.
func AssertDecrement(method string, prev uint64) {
	if prev == 0 {
		panic(fmt.Sprintf("%s: reference count underflow", method))
	}
}
