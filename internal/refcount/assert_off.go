//go:build !debug

package refcount

// AssertDecrement is a no-op in production.
// Enable with -tags debug for runtime checks.
func AssertDecrement(string, uint64) {}
