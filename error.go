package arc

import "errors"

var (
	ErrClosed     = errors.New("closed")
	ErrDropped    = errors.New("handle dropped")
	ErrStale      = errors.New("stale handle")
	ErrOutOfRange = errors.New("out of range")
)
