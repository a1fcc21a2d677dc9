package arena

import "github.com/dacapoday/arc"

var (
	ErrStale      = arc.ErrStale
	ErrOutOfRange = arc.ErrOutOfRange
)
