package rotation

import "sync/atomic"

// Cursor chooses which eligible credential is tried next
type Cursor interface {
	// Next returns an index in [0, size). It must advance on every call.
	Next(size int) int
}

// SharedCursor is a process-wide monotonically increasing counter.
// Its zero value is ready to use.
type SharedCursor struct {
	n atomic.Uint64
}

// NewSharedCursor creates a cursor starting at zero
func NewSharedCursor() *SharedCursor {
	return &SharedCursor{}
}

// Next returns the current counter modulo size and advances the counter
func (c *SharedCursor) Next(size int) int {
	if size <= 0 {
		return 0
	}
	return int((c.n.Add(1) - 1) % uint64(size))
}
