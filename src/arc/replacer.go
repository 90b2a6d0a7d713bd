// Package arc implements an Adaptive Replacement Cache eviction policy:
// a self-tuning replacer that balances recency (T1/B1) against frequency
// (T2/B2) via a dynamically adjusted target size p. Every public method is
// O(1) amortized — each of the four lists is a container/list.List with a
// side index from key to *list.Element for O(1) removal.
package arc

import (
	"container/list"
	"sync"

	"github.com/kvarch/bufferpoold/src/pkg/assert"
	"github.com/kvarch/bufferpoold/src/pkg/common"
)

type residency int

const (
	inT1 residency = iota
	inT2
)

type ghostList int

const (
	inB1 ghostList = iota
	inB2
)

type aliveEntry struct {
	pageID    common.PageID
	evictable bool
	where     residency
}

// Replacer is the ARC policy over a fixed number of frames. It owns its
// own mutex so it can be exercised standalone in tests; the buffer pool
// manager that embeds it always calls in under its own pool mutex too,
// so lock ordering is pool-mutex -> replacer-mutex, never the reverse.
type Replacer struct {
	mu sync.Mutex

	n int64 // replacer capacity == pool frame count

	t1, t2 *list.List // elements are common.FrameID
	b1, b2 *list.List // elements are common.PageID

	t1Index, t2Index map[common.FrameID]*list.Element
	b1Index, b2Index map[common.PageID]*list.Element

	alive map[common.FrameID]*aliveEntry
	ghost map[common.PageID]ghostList

	p        int64 // mru_target_size, clamped to [0, n]
	currSize int64
}

func New(n uint64) *Replacer {
	assert.Assert(n > 0, "replacer capacity must be greater than zero")

	return &Replacer{
		n:       int64(n),
		t1:      list.New(),
		t2:      list.New(),
		b1:      list.New(),
		b2:      list.New(),
		t1Index: make(map[common.FrameID]*list.Element),
		t2Index: make(map[common.FrameID]*list.Element),
		b1Index: make(map[common.PageID]*list.Element),
		b2Index: make(map[common.PageID]*list.Element),
		alive:   make(map[common.FrameID]*aliveEntry),
		ghost:   make(map[common.PageID]ghostList),
	}
}

// RecordAccess notifies the replacer that frameID (currently holding
// pageID) has just been touched. If frameID is resident, pageID is
// ignored — the tracked identity is whatever was recorded at admission.
func (r *Replacer) RecordAccess(frameID common.FrameID, pageID common.PageID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recordResidentHit(frameID) {
		return
	}

	if r.recordGhostHit(frameID, pageID) {
		return
	}

	r.recordColdMiss(frameID, pageID)
}

func (r *Replacer) recordResidentHit(frameID common.FrameID) bool {
	entry, ok := r.alive[frameID]
	if !ok {
		return false
	}

	switch entry.where {
	case inT1:
		elem, ok := r.t1Index[frameID]
		assert.Assert(ok, "ARC replacer inconsistent state: frame in alive_map/T1 but missing from T1 index")
		r.t1.Remove(elem)
		delete(r.t1Index, frameID)

		entry.where = inT2
		r.t2Index[frameID] = r.t2.PushFront(frameID)
	case inT2:
		elem, ok := r.t2Index[frameID]
		assert.Assert(ok, "ARC replacer inconsistent state: frame in alive_map/T2 but missing from T2 index")
		r.t2.Remove(elem)
		r.t2Index[frameID] = r.t2.PushFront(frameID)
	default:
		assert.Assert(false, "ARC replacer inconsistent state: unknown residency")
	}

	return true
}

func (r *Replacer) recordGhostHit(frameID common.FrameID, pageID common.PageID) bool {
	where, ok := r.ghost[pageID]
	if !ok {
		return false
	}

	switch where {
	case inB1:
		elem, ok := r.b1Index[pageID]
		assert.Assert(ok, "ARC replacer inconsistent state: page in ghost_map/B1 but missing from B1 index")

		delta := ghostRatio(int64(r.b2.Len()), int64(r.b1.Len()))
		r.p = min64(r.n, r.p+delta)

		r.b1.Remove(elem)
		delete(r.b1Index, pageID)
	case inB2:
		elem, ok := r.b2Index[pageID]
		assert.Assert(ok, "ARC replacer inconsistent state: page in ghost_map/B2 but missing from B2 index")

		delta := ghostRatio(int64(r.b1.Len()), int64(r.b2.Len()))
		r.p = max64(0, r.p-delta)

		r.b2.Remove(elem)
		delete(r.b2Index, pageID)
	default:
		assert.Assert(false, "ARC replacer inconsistent state: unknown ghost list")
	}

	delete(r.ghost, pageID)

	r.t2Index[frameID] = r.t2.PushFront(frameID)
	r.alive[frameID] = &aliveEntry{pageID: pageID, evictable: true, where: inT2}
	r.currSize++

	return true
}

// ghostRatio computes the ARC delta for a ghost hit: max(1, numerator /
// denominator) under integer division, with the empty-denominator case
// pinned to 1 rather than dividing by zero.
func ghostRatio(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 1
	}

	ratio := numerator / denominator
	if ratio < 1 {
		return 1
	}

	return ratio
}

func (r *Replacer) recordColdMiss(frameID common.FrameID, pageID common.PageID) {
	mruTotal := int64(r.t1.Len() + r.b1.Len())
	allTotal := mruTotal + int64(r.t2.Len()+r.b2.Len())

	switch {
	case mruTotal == r.n:
		if int64(r.t1.Len()) < r.n {
			r.dropGhostTail(r.b1, r.b1Index)
		} else {
			r.dropResidentTailWithoutGhosting()
		}
	case allTotal == 2*r.n:
		r.dropGhostTail(r.b2, r.b2Index)
	}

	r.t1Index[frameID] = r.t1.PushFront(frameID)
	r.alive[frameID] = &aliveEntry{pageID: pageID, evictable: false, where: inT1}
}

func (r *Replacer) dropGhostTail(l *list.List, index map[common.PageID]*list.Element) {
	back := l.Back()
	if back == nil {
		return
	}

	pageID := back.Value.(common.PageID)
	l.Remove(back)
	delete(index, pageID)
	delete(r.ghost, pageID)
}

// dropResidentTailWithoutGhosting handles the degenerate case the spec
// notes "does not arise under the normal discipline": T1 has filled the
// whole pool with no ghosts to spare, so the tail is dropped outright
// instead of being ghosted.
func (r *Replacer) dropResidentTailWithoutGhosting() {
	back := r.t1.Back()
	if back == nil {
		return
	}

	frameID := back.Value.(common.FrameID)
	r.t1.Remove(back)
	delete(r.t1Index, frameID)

	if entry, ok := r.alive[frameID]; ok {
		if entry.evictable {
			r.currSize--
		}

		delete(r.alive, frameID)
	}
}

// Evict removes and returns a currently evictable frame, or ok=false if
// none exists.
func (r *Replacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	preferT1First := int64(r.t1.Len()) >= r.p

	if preferT1First {
		if frameID, ok := r.evictFrom(r.t1, r.t1Index, inB1); ok {
			return frameID, true
		}

		return r.evictFrom(r.t2, r.t2Index, inB2)
	}

	if frameID, ok := r.evictFrom(r.t2, r.t2Index, inB2); ok {
		return frameID, true
	}

	return r.evictFrom(r.t1, r.t1Index, inB1)
}

func (r *Replacer) evictFrom(
	l *list.List,
	index map[common.FrameID]*list.Element,
	ghostDest ghostList,
) (common.FrameID, bool) {
	for e := l.Back(); e != nil; e = e.Prev() {
		frameID := e.Value.(common.FrameID)

		entry, ok := r.alive[frameID]
		assert.Assert(ok, "ARC replacer inconsistent state: frame in list but missing from alive_map")

		if !entry.evictable {
			continue
		}

		l.Remove(e)
		delete(index, frameID)
		delete(r.alive, frameID)
		r.currSize--

		switch ghostDest {
		case inB1:
			r.b1Index[entry.pageID] = r.b1.PushFront(entry.pageID)
		case inB2:
			r.b2Index[entry.pageID] = r.b2.PushFront(entry.pageID)
		}

		r.ghost[entry.pageID] = ghostDest

		return frameID, true
	}

	return 0, false
}

// SetEvictable flips whether the replacer may choose frameID as a victim.
func (r *Replacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.alive[frameID]
	assert.Assert(ok, "SetEvictable on unknown frame %d", frameID)

	if !entry.evictable && evictable {
		r.currSize++
	}

	if entry.evictable && !evictable {
		r.currSize--
	}

	entry.evictable = evictable
}

// Remove forcibly drops frameID from tracking without recording a ghost.
// A no-op if the frame isn't currently evictable — pinned frames can't be
// yanked out from under their guards.
func (r *Replacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.alive[frameID]
	if !ok || !entry.evictable {
		return
	}

	delete(r.alive, frameID)
	r.currSize--

	switch entry.where {
	case inT1:
		elem, ok := r.t1Index[frameID]
		assert.Assert(ok, "ARC replacer inconsistent state: frame in alive_map/T1 but missing from T1 index")
		r.t1.Remove(elem)
		delete(r.t1Index, frameID)
	case inT2:
		elem, ok := r.t2Index[frameID]
		assert.Assert(ok, "ARC replacer inconsistent state: frame in alive_map/T2 but missing from T2 index")
		r.t2.Remove(elem)
		delete(r.t2Index, frameID)
	}
}

// Size returns the number of currently evictable resident frames.
func (r *Replacer) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint64(r.currSize)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}

	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}

	return b
}
