package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/kvarch/bufferpoold/src/arc"
	"github.com/kvarch/bufferpoold/src/diskscheduler"
	"github.com/kvarch/bufferpoold/src/pkg/assert"
	"github.com/kvarch/bufferpoold/src/pkg/common"
)

// ReadGuard is a scoped read handle on a page. It holds the frame's
// reader lock for its entire lifetime, and must be released with Drop
// (typically via defer) on every exit path. Using a guard after Drop is a
// programmer error.
//
// newReadGuard takes ownership of an already-RLock'd frame — fetchFrame
// acquires the lock itself before returning, so the lock is never taken
// twice and is never absent between fetchFrame returning and the guard
// existing.
type ReadGuard struct {
	pageID    common.PageID
	frame     *frame
	poolMu    *sync.Mutex
	replacer  *arc.Replacer
	scheduler *diskscheduler.Scheduler

	once    sync.Once
	dropped atomic.Bool
}

func newReadGuard(pageID common.PageID, f *frame, poolMu *sync.Mutex, replacer *arc.Replacer, scheduler *diskscheduler.Scheduler) *ReadGuard {
	return &ReadGuard{
		pageID:    pageID,
		frame:     f,
		poolMu:    poolMu,
		replacer:  replacer,
		scheduler: scheduler,
	}
}

func (g *ReadGuard) checkValid() {
	assert.Assert(!g.dropped.Load(), "use of a read guard after Drop")
}

func (g *ReadGuard) PageID() common.PageID {
	g.checkValid()
	return g.pageID
}

func (g *ReadGuard) GetData() []byte {
	g.checkValid()
	return g.frame.Data()
}

func (g *ReadGuard) IsDirty() bool {
	g.checkValid()
	return g.frame.isDirty
}

// Flush writes the frame through to disk if dirty. The guard already
// holds the frame's reader lock for its whole lifetime, so the write is
// naturally covered for its entire duration — no separate, easy-to-drop
// temporary lock is needed here.
func (g *ReadGuard) Flush() error {
	g.checkValid()

	g.poolMu.Lock()
	defer g.poolMu.Unlock()

	if !g.frame.isDirty {
		return nil
	}

	req := diskscheduler.NewRequest(true, g.frame.Data(), g.pageID)
	g.scheduler.Schedule(req)

	if err := <-req.Done; err != nil {
		return err
	}

	g.frame.isDirty = false

	return nil
}

// Drop releases the pin and the reader lock. Idempotent: subsequent
// calls after the first are no-ops.
func (g *ReadGuard) Drop() {
	g.once.Do(func() {
		g.poolMu.Lock()

		newPin := g.frame.pinCount.Add(-1)
		assert.Assert(newPin >= 0, "pin count underflow on frame %d", g.frame.id)

		if newPin == 0 {
			g.replacer.SetEvictable(g.frame.id, true)
		}

		g.poolMu.Unlock()

		g.frame.rw.RUnlock()
		g.dropped.Store(true)
	})
}

// WriteGuard is a scoped exclusive handle on a page. It holds the
// frame's writer lock for its entire lifetime. As with ReadGuard,
// newWriteGuard takes ownership of a lock fetchFrame already holds
// rather than acquiring it itself.
type WriteGuard struct {
	pageID    common.PageID
	frame     *frame
	poolMu    *sync.Mutex
	replacer  *arc.Replacer
	scheduler *diskscheduler.Scheduler

	once    sync.Once
	dropped atomic.Bool
}

func newWriteGuard(pageID common.PageID, f *frame, poolMu *sync.Mutex, replacer *arc.Replacer, scheduler *diskscheduler.Scheduler) *WriteGuard {
	return &WriteGuard{
		pageID:    pageID,
		frame:     f,
		poolMu:    poolMu,
		replacer:  replacer,
		scheduler: scheduler,
	}
}

func (g *WriteGuard) checkValid() {
	assert.Assert(!g.dropped.Load(), "use of a write guard after Drop")
}

func (g *WriteGuard) PageID() common.PageID {
	g.checkValid()
	return g.pageID
}

func (g *WriteGuard) GetData() []byte {
	g.checkValid()
	return g.frame.Data()
}

// GetDataMut marks the page dirty as a side effect — the observer model
// where any mutable access implies the page is now dirty.
func (g *WriteGuard) GetDataMut() []byte {
	g.checkValid()
	g.frame.isDirty = true

	return g.frame.Data()
}

func (g *WriteGuard) IsDirty() bool {
	g.checkValid()
	return g.frame.isDirty
}

func (g *WriteGuard) Flush() error {
	g.checkValid()

	g.poolMu.Lock()
	defer g.poolMu.Unlock()

	if !g.frame.isDirty {
		return nil
	}

	req := diskscheduler.NewRequest(true, g.frame.Data(), g.pageID)
	g.scheduler.Schedule(req)

	if err := <-req.Done; err != nil {
		return err
	}

	g.frame.isDirty = false

	return nil
}

func (g *WriteGuard) Drop() {
	g.once.Do(func() {
		g.poolMu.Lock()

		newPin := g.frame.pinCount.Add(-1)
		assert.Assert(newPin >= 0, "pin count underflow on frame %d", g.frame.id)

		if newPin == 0 {
			g.replacer.SetEvictable(g.frame.id, true)
		}

		g.poolMu.Unlock()

		g.frame.rw.Unlock()
		g.dropped.Store(true)
	})
}
