package atom

import "github.com/dacapoday/arc"

var ErrClosed = arc.ErrClosed
