package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/kvarch/bufferpoold/src/pkg/common"
)

// frame is one slot in the pool: a fixed-size page buffer plus the state
// that tracks who's using it. It's created once at pool construction and
// never destroyed — it just oscillates between free, resident, and back
// to free again.
type frame struct {
	id common.FrameID

	data [common.PageSize]byte

	pinCount atomic.Int64
	isDirty  bool // guarded by the pool mutex, except the write-guard path

	rw sync.RWMutex
}

func newFrame(id common.FrameID) *frame {
	f := &frame{id: id}
	f.reset()

	return f
}

// reset zeros the buffer, clears the dirty flag and pin count. Called at
// construction and whenever a frame is returned to the free list.
func (f *frame) reset() {
	f.data = [common.PageSize]byte{}
	f.isDirty = false
	f.pinCount.Store(0)
}

func (f *frame) Data() []byte {
	return f.data[:]
}
