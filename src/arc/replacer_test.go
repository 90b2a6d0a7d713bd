package arc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvarch/bufferpoold/src/arc"
	"github.com/kvarch/bufferpoold/src/pkg/common"
)

// admit simulates a cold page arriving into frameID: the buffer pool
// would have sourced the frame and pinned it before this call, then
// records the first access and immediately marks it evictable (as if
// the caller dropped its guard).
func admit(r *arc.Replacer, frameID common.FrameID, pageID common.PageID) {
	r.RecordAccess(frameID, pageID)
	r.SetEvictable(frameID, true)
}

func TestReplacer_ColdMissesFillT1(t *testing.T) {
	r := arc.New(5)

	admit(r, 0, 100)
	admit(r, 1, 101)
	admit(r, 2, 102)

	require.EqualValues(t, 3, r.Size())
}

// TestReplacer_EvictionOrdering walks the concrete five-frame scenario:
// three distinct cold pages land in T1, and with p at its initial zero
// value |T1| >= p, so Evict() scans T1 first, from the tail, i.e. in
// admission order.
func TestReplacer_EvictionOrdering(t *testing.T) {
	r := arc.New(5)

	admit(r, 0, 100)
	admit(r, 1, 101)
	admit(r, 2, 102)

	require.EqualValues(t, 3, r.Size())

	fid, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(0), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(1), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(2), fid)

	_, ok = r.Evict()
	require.False(t, ok)

	require.EqualValues(t, 0, r.Size())
}

func TestReplacer_PinnedFramesAreNeverEvicted(t *testing.T) {
	r := arc.New(2)

	r.RecordAccess(0, 100)
	r.RecordAccess(1, 101)
	// neither frame ever marked evictable: both still pinned

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestReplacer_RepeatedAccessPromotesToT2(t *testing.T) {
	r := arc.New(3)

	admit(r, 0, 100)
	admit(r, 1, 101)

	// touch frame 0 again: promotes it out of T1 into T2, so T1's tail is
	// now frame 1 alone.
	r.RecordAccess(0, 100)

	fid, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(1), fid)
}

func TestReplacer_GhostHitOnB1ReinstatesIntoT2(t *testing.T) {
	r := arc.New(2)

	admit(r, 0, 100)
	admit(r, 1, 101)

	victim, ok := r.Evict()
	require.True(t, ok)

	var ghostPageID common.PageID
	if victim == 0 {
		ghostPageID = 100
	} else {
		ghostPageID = 101
	}

	// re-admit the evicted frame with the same page ID: this is a ghost
	// hit, reinstating it directly into T2.
	r.RecordAccess(victim, ghostPageID)
	r.SetEvictable(victim, true)

	require.EqualValues(t, 2, r.Size())
}

func TestReplacer_RemoveIsNoOpWhenPinned(t *testing.T) {
	r := arc.New(2)

	r.RecordAccess(0, 100)
	// still pinned: not evictable

	r.Remove(0)

	r.SetEvictable(0, true)
	require.EqualValues(t, 1, r.Size())
}

func TestReplacer_SetEvictableTogglesSizeOnce(t *testing.T) {
	r := arc.New(2)

	r.RecordAccess(0, 100)
	require.EqualValues(t, 0, r.Size())

	r.SetEvictable(0, true)
	require.EqualValues(t, 1, r.Size())

	// redundant call: size must not double-count
	r.SetEvictable(0, true)
	require.EqualValues(t, 1, r.Size())

	r.SetEvictable(0, false)
	require.EqualValues(t, 0, r.Size())
}
