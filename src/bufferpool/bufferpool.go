// Package bufferpool implements the buffer pool manager: the component
// that mediates all access to on-disk pages through a fixed set of
// in-memory frames, using arc.Replacer to pick eviction victims and
// diskscheduler.Scheduler to perform the actual I/O.
package bufferpool

import (
	"sync"

	"github.com/kvarch/bufferpoold/src"
	"github.com/kvarch/bufferpoold/src/arc"
	"github.com/kvarch/bufferpoold/src/diskscheduler"
	"github.com/kvarch/bufferpoold/src/pkg/assert"
	"github.com/kvarch/bufferpoold/src/pkg/common"
	"github.com/kvarch/bufferpoold/src/pkg/optional"
)

// Manager is the buffer pool manager. A single mutex ("the pool mutex")
// guards the page table, the inverse page table, the free list, and the
// frame bookkeeping fields (pinCount/isDirty transitions). On the miss
// path fetchFrame acquires the freshly sourced frame's rw lock, in the
// mode the caller asked for, before it drops the pool mutex, so nothing
// can observe the new page-table entry before that frame lock is taken.
// On the hit path it drops the pool mutex first and only then waits for
// the frame lock: the frame may be held by a live guard, and a guard's
// Drop/Flush take the pool mutex while still holding the frame lock.
type Manager struct {
	mu sync.Mutex

	log       src.Logger
	replacer  *arc.Replacer
	scheduler *diskscheduler.Scheduler

	frames    []*frame
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID

	nextPageID common.PageID
}

func New(numFrames uint64, scheduler *diskscheduler.Scheduler, log src.Logger) *Manager {
	assert.Assert(numFrames > 0, "buffer pool must have at least one frame")

	frames := make([]*frame, numFrames)
	freeList := make([]common.FrameID, numFrames)

	for i := uint64(0); i < numFrames; i++ {
		frames[i] = newFrame(common.FrameID(i))
		freeList[i] = common.FrameID(i)
	}

	return &Manager{
		log:       log,
		replacer:  arc.New(numFrames),
		scheduler: scheduler,
		frames:    frames,
		pageTable: make(map[common.PageID]common.FrameID),
		freeList:  freeList,
	}
}

// Size returns the number of frames currently holding a live page.
func (m *Manager) Size() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return uint64(len(m.pageTable))
}

// GetPinCount returns the pin count of pageID's frame, or None if the
// page isn't currently resident.
func (m *Manager) GetPinCount(pageID common.PageID) optional.Optional[int64] {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return optional.None[int64]()
	}

	return optional.Some(m.frames[frameID].pinCount.Load())
}

// NewPage allocates a fresh PageID without reserving a resident frame
// for it. The next read_page/write_page against the id populates a
// frame on demand, reading back zeros since nothing has been written
// yet.
func (m *Manager) NewPage() common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	pageID := m.nextPageID
	m.nextPageID++

	return pageID
}

// CheckedReadPage pins pageID and returns a ReadGuard, or None if the
// pool has no free frame and no evictable victim.
func (m *Manager) CheckedReadPage(pageID common.PageID) (optional.Optional[*ReadGuard], error) {
	f, err := m.fetchFrame(pageID, false)
	if err != nil {
		return optional.None[*ReadGuard](), err
	}

	if f == nil {
		return optional.None[*ReadGuard](), nil
	}

	return optional.Some(newReadGuard(pageID, f, &m.mu, m.replacer, m.scheduler)), nil
}

// CheckedWritePage pins pageID and returns a WriteGuard, or None if the
// pool has no free frame and no evictable victim.
func (m *Manager) CheckedWritePage(pageID common.PageID) (optional.Optional[*WriteGuard], error) {
	f, err := m.fetchFrame(pageID, true)
	if err != nil {
		return optional.None[*WriteGuard](), err
	}

	if f == nil {
		return optional.None[*WriteGuard](), nil
	}

	return optional.Some(newWriteGuard(pageID, f, &m.mu, m.replacer, m.scheduler)), nil
}

// ReadPage is CheckedReadPage with pool exhaustion treated as a
// programmer error — callers that haven't sized the pool for their
// working set should find out immediately, not via a silently-None
// guard deep in a call chain.
func (m *Manager) ReadPage(pageID common.PageID) *ReadGuard {
	guard, err := m.CheckedReadPage(pageID)
	assert.NoError(err)

	return guard.Expect("buffer pool exhausted: no free frame or evictable victim for read")
}

// WritePage is CheckedWritePage with pool exhaustion treated as a
// programmer error.
func (m *Manager) WritePage(pageID common.PageID) *WriteGuard {
	guard, err := m.CheckedWritePage(pageID)
	assert.NoError(err)

	return guard.Expect("buffer pool exhausted: no free frame or evictable victim for write")
}

// fetchFrame is the shared fetch-or-load pipeline behind both checked
// accessors: on a hit it just bumps the pin and records the access; on
// a miss it sources a frame (free list or eviction), flushing a dirty
// victim first, then schedules the load from disk. isWrite selects
// which mode the frame's rw lock is taken in, on behalf of the guard
// the caller is about to construct. Returns a nil frame (no error) when
// the pool is exhausted; the returned frame is always already locked in
// the requested mode, and ownership of that lock passes to the caller.
func (m *Manager) fetchFrame(pageID common.PageID, isWrite bool) (*frame, error) {
	m.mu.Lock()

	if frameID, ok := m.pageTable[pageID]; ok {
		f := m.frames[frameID]
		f.pinCount.Add(1)
		m.replacer.RecordAccess(frameID, pageID)
		m.replacer.SetEvictable(frameID, false)
		m.mu.Unlock()
		lockFrame(f, isWrite)

		return f, nil
	}

	frameID, evictedPageID, ok := m.sourceFrame()
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}

	f := m.frames[frameID]

	if f.isDirty {
		if err := m.flushFrameLocked(frameID, evictedPageID); err != nil {
			m.returnToFreeListLocked(frameID)
			m.mu.Unlock()

			return nil, err
		}
	}

	f.reset()
	f.pinCount.Store(1)

	m.pageTable[pageID] = frameID
	m.replacer.RecordAccess(frameID, pageID)
	m.replacer.SetEvictable(frameID, false)

	// Acquire the frame lock while the pool mutex is still held. That's
	// what actually closes the race: nothing can see this pageID's
	// pageTable entry and take the hit path above until the lock guarding
	// f.data has already been taken here, so a concurrent fetcher of the
	// same page blocks on the lock rather than reading f.data while the
	// scheduled read below is still in flight.
	lockFrame(f, isWrite)

	m.mu.Unlock()

	req := diskscheduler.NewRequest(false, f.Data(), pageID)
	m.scheduler.Schedule(req)

	if err := <-req.Done; err != nil {
		unlockFrame(f, isWrite)
		return nil, err
	}

	return f, nil
}

func lockFrame(f *frame, isWrite bool) {
	if isWrite {
		f.rw.Lock()
	} else {
		f.rw.RLock()
	}
}

func unlockFrame(f *frame, isWrite bool) {
	if isWrite {
		f.rw.Unlock()
	} else {
		f.rw.RUnlock()
	}
}

// sourceFrame returns a frame to populate: the free list first, falling
// back to asking the replacer for an evictable victim. Must be called
// with the pool mutex held. When the returned frame came from eviction
// rather than the free list, evictedPageID is the page it used to hold
// (InvalidPageID otherwise) — the caller needs it to flush that page's
// old contents before overwriting the frame, since sourceFrame already
// erases the page table entry.
func (m *Manager) sourceFrame() (frameID common.FrameID, evictedPageID common.PageID, ok bool) {
	if n := len(m.freeList); n > 0 {
		frameID = m.freeList[n-1]
		m.freeList = m.freeList[:n-1]

		return frameID, common.InvalidPageID, true
	}

	frameID, ok = m.replacer.Evict()
	if !ok {
		return 0, common.InvalidPageID, false
	}

	evictedPageID = common.InvalidPageID

	for pageID, fid := range m.pageTable {
		if fid == frameID {
			evictedPageID = pageID
			break
		}
	}

	assert.Assert(evictedPageID != common.InvalidPageID, "sourceFrame: evicted frame %d has no page table entry", frameID)

	m.log.Debugf("evicting page %d from frame %d", evictedPageID, frameID)
	delete(m.pageTable, evictedPageID)

	return frameID, evictedPageID, true
}

func (m *Manager) returnToFreeListLocked(frameID common.FrameID) {
	m.frames[frameID].reset()
	m.freeList = append(m.freeList, frameID)
}

// flushFrameLocked synchronously writes frameID's contents through the
// scheduler under pageID. Must be called with the pool mutex held; the
// mutex is held across the wait deliberately, mirroring
// FlushPage/FlushAllPages below (the eviction caller holds it because
// the victim is, by construction, unpinned, so nothing else can be
// waiting on this frame anyway).
func (m *Manager) flushFrameLocked(frameID common.FrameID, pageID common.PageID) error {
	f := m.frames[frameID]

	req := diskscheduler.NewRequest(true, f.Data(), pageID)
	m.scheduler.Schedule(req)

	if err := <-req.Done; err != nil {
		return err
	}

	f.isDirty = false

	return nil
}

// DeletePage removes pageID from the pool and frees its backing disk
// slot. Fails if the page is currently pinned. If the page isn't
// resident, the pool is left unchanged and only the backing slot is
// released.
func (m *Manager) DeletePage(pageID common.PageID) error {
	m.mu.Lock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		m.mu.Unlock()
		return m.scheduler.DeallocatePage(pageID)
	}

	f := m.frames[frameID]
	if f.pinCount.Load() > 0 {
		m.mu.Unlock()
		m.log.Warnf("delete page %d rejected: page is pinned", pageID)

		return errPagePinned(pageID)
	}

	if f.isDirty {
		if err := m.flushFrameLocked(frameID, pageID); err != nil {
			m.mu.Unlock()
			return err
		}
	}

	// Erase by PageID, not FrameID: a frame can be repopulated with a
	// different page between the lookup above and here only if this
	// method itself releases the mutex, which it doesn't, so this is
	// just the correct (and only) key to delete under.
	delete(m.pageTable, pageID)
	m.replacer.Remove(frameID)
	m.returnToFreeListLocked(frameID)

	m.mu.Unlock()

	return m.scheduler.DeallocatePage(pageID)
}

// FlushPage writes pageID through to disk if dirty, regardless of pin
// state. A no-op, successful, call if the page isn't resident.
func (m *Manager) FlushPage(pageID common.PageID) error {
	m.mu.Lock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	f := m.frames[frameID]
	if !f.isDirty {
		m.mu.Unlock()
		return nil
	}

	err := m.flushFrameLocked(frameID, pageID)

	m.mu.Unlock()

	return err
}

// FlushAllPages flushes every currently resident dirty page. Unlike the
// reference implementation, this never manipulates pin counts directly:
// a frame's evictability is only ever toggled through
// arc.Replacer.SetEvictable, kept atomic with the pin-count read by
// holding the pool mutex across both.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pageID, frameID := range m.pageTable {
		if !m.frames[frameID].isDirty {
			continue
		}

		if err := m.flushFrameLocked(frameID, pageID); err != nil {
			return err
		}
	}

	return nil
}
