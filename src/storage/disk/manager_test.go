package disk_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvarch/bufferpoold/src/pkg/common"
	"github.com/kvarch/bufferpoold/src/storage/disk"
)

func newManager(t *testing.T) *disk.Manager {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	m, err := disk.New(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestReadPage_NeverWrittenReadsAsZero(t *testing.T) {
	m := newManager(t)

	buf := make([]byte, common.PageSize)
	for i := range buf {
		buf[i] = 0xAB
	}

	require.NoError(t, m.ReadPage(common.PageID(7), buf))

	for _, b := range buf {
		require.EqualValues(t, 0, b)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	m := newManager(t)

	want := make([]byte, common.PageSize)
	copy(want, []byte("hello disk manager"))

	require.NoError(t, m.WritePage(common.PageID(3), want))

	got := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(common.PageID(3), got))

	require.Equal(t, want, got)
}

func TestDeletePageThenReadIsZero(t *testing.T) {
	m := newManager(t)

	data := make([]byte, common.PageSize)
	copy(data, []byte("gone soon"))

	require.NoError(t, m.WritePage(common.PageID(1), data))
	require.NoError(t, m.DeletePage(common.PageID(1)))

	got := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(common.PageID(1), got))

	for _, b := range got {
		require.EqualValues(t, 0, b)
	}
}

func TestDeletePageAllowsSlotReuse(t *testing.T) {
	m := newManager(t)

	first := make([]byte, common.PageSize)
	copy(first, []byte("first"))
	require.NoError(t, m.WritePage(common.PageID(1), first))
	require.NoError(t, m.DeletePage(common.PageID(1)))

	second := make([]byte, common.PageSize)
	copy(second, []byte("second"))
	require.NoError(t, m.WritePage(common.PageID(2), second))

	got := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(common.PageID(2), got))
	require.Equal(t, second, got)
}

func TestManyPagesGrowFile(t *testing.T) {
	m := newManager(t)

	const n = 64

	for i := 0; i < n; i++ {
		data := make([]byte, common.PageSize)
		data[0] = byte(i)
		require.NoError(t, m.WritePage(common.PageID(i), data))
	}

	for i := 0; i < n; i++ {
		got := make([]byte, common.PageSize)
		require.NoError(t, m.ReadPage(common.PageID(i), got))
		require.Equal(t, byte(i), got[0])
	}
}
