package bufferpool_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kvarch/bufferpoold/src/bufferpool"
	"github.com/kvarch/bufferpoold/src/diskscheduler"
	"github.com/kvarch/bufferpoold/src/pkg/common"
)

type memDisk struct {
	mu    sync.Mutex
	pages map[common.PageID][]byte
}

func newMemDisk() *memDisk {
	return &memDisk{pages: make(map[common.PageID][]byte)}
}

func (d *memDisk) ReadPage(pageID common.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if data, ok := d.pages[pageID]; ok {
		copy(buf, data)
		return nil
	}

	for i := range buf {
		buf[i] = 0
	}

	return nil
}

func (d *memDisk) WritePage(pageID common.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.pages[pageID] = cp

	return nil
}

func (d *memDisk) DeletePage(pageID common.PageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pages, pageID)

	return nil
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return logger.Sugar()
}

func newPool(t *testing.T, numFrames uint64) (*bufferpool.Manager, *diskscheduler.Scheduler) {
	t.Helper()

	disk := newMemDisk()
	sched := diskscheduler.New(disk, testLogger(t))
	t.Cleanup(sched.Shutdown)

	return bufferpool.New(numFrames, sched, testLogger(t)), sched
}

func TestBufferPool_NewPageWriteReadRoundTrips(t *testing.T) {
	pool, _ := newPool(t, 4)

	pageID := pool.NewPage()

	wg := pool.WritePage(pageID)
	copy(wg.GetDataMut(), []byte("hello, frame"))
	require.True(t, wg.IsDirty())
	wg.Drop()

	rg := pool.ReadPage(pageID)
	require.True(t, bytes.HasPrefix(rg.GetData(), []byte("hello, frame")))
	rg.Drop()
}

func TestBufferPool_PoolExhaustionReturnsNoneWhenAllPinned(t *testing.T) {
	pool, _ := newPool(t, 2)

	id1 := pool.NewPage()
	id2 := pool.NewPage()

	g1 := pool.ReadPage(id1)
	defer g1.Drop()
	g2 := pool.ReadPage(id2)
	defer g2.Drop()

	id3 := pool.NewPage()

	guard, err := pool.CheckedReadPage(id3)
	require.NoError(t, err)
	require.True(t, guard.IsNone())
}

func TestBufferPool_EvictionPersistsDirtyPageBeforeReuse(t *testing.T) {
	pool, _ := newPool(t, 1)

	id1 := pool.NewPage()

	wg := pool.WritePage(id1)
	copy(wg.GetDataMut(), []byte("first page contents"))
	wg.Drop()

	id2 := pool.NewPage()

	wg2 := pool.WritePage(id2)
	copy(wg2.GetDataMut(), []byte("second page contents"))
	wg2.Drop()

	// id1's frame was evicted (and flushed) to make room for id2; reading
	// it back should load the originally-written contents from disk.
	rg := pool.ReadPage(id1)
	require.True(t, bytes.HasPrefix(rg.GetData(), []byte("first page contents")))
	rg.Drop()
}

func TestBufferPool_FlushAllPagesRoundTripsWhileResident(t *testing.T) {
	pool, _ := newPool(t, 4)

	pageID := pool.NewPage()

	wg := pool.WritePage(pageID)
	copy(wg.GetDataMut(), []byte("flushed while still resident"))
	wg.Drop()

	require.NoError(t, pool.FlushAllPages())

	rg := pool.ReadPage(pageID)
	require.True(t, bytes.HasPrefix(rg.GetData(), []byte("flushed while still resident")))
	require.False(t, rg.IsDirty())
	rg.Drop()
}

func TestBufferPool_FlushPageClearsDirtyBit(t *testing.T) {
	pool, _ := newPool(t, 4)

	pageID := pool.NewPage()

	wg := pool.WritePage(pageID)
	copy(wg.GetDataMut(), []byte("flushed by page id"))
	wg.Drop()

	require.NoError(t, pool.FlushPage(pageID))

	rg := pool.ReadPage(pageID)
	require.True(t, bytes.HasPrefix(rg.GetData(), []byte("flushed by page id")))
	require.False(t, rg.IsDirty())
	rg.Drop()
}

func TestBufferPool_DeletePageFailsWhilePinned(t *testing.T) {
	pool, _ := newPool(t, 2)

	pageID := pool.NewPage()

	rg := pool.ReadPage(pageID)
	defer rg.Drop()

	err := pool.DeletePage(pageID)
	require.Error(t, err)
}

func TestBufferPool_DeletePageSucceedsOnceUnpinned(t *testing.T) {
	pool, _ := newPool(t, 2)

	pageID := pool.NewPage()

	rg := pool.ReadPage(pageID)
	rg.Drop()

	require.NoError(t, pool.DeletePage(pageID))
	require.EqualValues(t, 0, pool.Size())
}

func TestBufferPool_ConcurrentWritersToDistinctPages(t *testing.T) {
	const numFrames = 10
	const numWriters = 4
	const itersPerWriter = 1000

	pool, _ := newPool(t, numFrames)

	var wg sync.WaitGroup
	for w := 0; w < numWriters; w++ {
		wg.Add(1)

		go func(writer int) {
			defer wg.Done()

			for i := 0; i < itersPerWriter; i++ {
				pageID := pool.NewPage()

				g := pool.WritePage(pageID)
				g.GetDataMut()
				g.Drop()

				require.NoError(t, pool.DeletePage(pageID))
			}
		}(w)
	}

	wg.Wait()
}

// TestBufferPool_EvictionRespectsPinsUnderContention exercises a
// single-frame pool where W stays pinned throughout: L is a distinct
// page that can only become resident by evicting W's frame, so as long
// as any guard on W is alive, fetching L must keep failing. Once W's
// last guard drops, the frame becomes evictable and L succeeds.
func TestBufferPool_EvictionRespectsPinsUnderContention(t *testing.T) {
	pool, _ := newPool(t, 1)

	w := pool.NewPage()
	l := pool.NewPage()

	held := pool.ReadPage(w)

	const readers = 4
	const checkers = 4
	const rounds = 100

	var wg sync.WaitGroup

	for r := 0; r < readers; r++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < rounds; i++ {
				g := pool.ReadPage(w)
				_ = g.GetData()
				g.Drop()
			}
		}()
	}

	for c := 0; c < checkers; c++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < rounds; i++ {
				rg, err := pool.CheckedReadPage(l)
				require.NoError(t, err)
				require.True(t, rg.IsNone())

				wgOpt, err := pool.CheckedWritePage(l)
				require.NoError(t, err)
				require.True(t, wgOpt.IsNone())
			}
		}()
	}

	wg.Wait()
	held.Drop()

	rg, err := pool.CheckedReadPage(l)
	require.NoError(t, err)
	require.True(t, rg.IsSome())
	rg.Unwrap().Drop()
}
