// Package vision implements the per-frame image pipeline that turns a region of
// interest into a classifier-ready tile: skin segmentation, masking, blur,
// bounding, square padding and resizing.
package vision

import (
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// outstanding counts tracked buffers that have not been closed yet, across
// all arenas and tiles in the process.
var outstanding atomic.Int64

// Outstanding returns the number of tracked buffers still alive.
func Outstanding() int64 {
	return outstanding.Load()
}

// Arena owns every Mat allocated while processing a single frame.
// Release closes all of them at once; it is safe to call more than once.
type Arena struct {
	mats []gocv.Mat
	mu   sync.Mutex
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewMat allocates an empty Mat owned by the arena.
func (a *Arena) NewMat() gocv.Mat {
	return a.Track(gocv.NewMat())
}

// NewMatWithSize allocates a zero-filled Mat owned by the arena.
func (a *Arena) NewMatWithSize(rows, cols int, mt gocv.MatType) gocv.Mat {
	return a.Track(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, mt))
}

// Track hands ownership of m to the arena and returns it.
func (a *Arena) Track(m gocv.Mat) gocv.Mat {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.mats = append(a.mats, m)
	outstanding.Add(1)
	return m
}

// Len returns the number of buffers currently owned by the arena.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mats)
}

// Release closes every owned Mat in reverse allocation order.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.mats) - 1; i >= 0; i-- {
		a.mats[i].Close()
		outstanding.Add(-1)
	}
	a.mats = nil
}
