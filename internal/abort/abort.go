// Package abort terminates the process on unrecoverable invariant violations.
package abort

import (
	"fmt"
	"os"
	"sync/atomic"
)

var hook atomic.Pointer[func(string)]

// Abort writes msg to stderr and exits with status 2.
// Deferred calls do not run.
func Abort(msg string) {
	if f := hook.Load(); f != nil {
		(*f)(msg)
		return
	}
	fmt.Fprintln(os.Stderr, "fatal error:", msg)
	os.Exit(2)
}

// Hook replaces process exit with f until the returned restore is called.
// For tests only.
func Hook(f func(msg string)) (restore func()) {
	old := hook.Swap(&f)
	return func() { hook.Store(old) }
}
