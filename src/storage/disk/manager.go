// Package disk implements the concrete disk-manager contract consumed by
// the buffer pool core: ReadPage/WritePage/DeletePage against a single
// backing file. Everything above this layer (allocation slots beyond a
// page, log I/O, checksumming) is out of scope for the buffer pool and
// lives, if at all, in a higher layer this repo does not implement.
package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"

	"github.com/kvarch/bufferpoold/src/pkg/common"
)

// initialSlots is the number of page slots the backing file is pre-sized
// to hold; the file doubles in slot capacity whenever an allocation would
// overrun it.
const initialSlots = 16

type Manager struct {
	mu sync.Mutex

	file *os.File

	slots     map[common.PageID]int64 // pageID -> byte offset
	freeSlots []int64
	nextSlot  int64
	capacity  int64 // slots currently backed by file size
}

func New(path string) (*Manager, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "open backing file")
	}

	m := &Manager{
		file:  file,
		slots: make(map[common.PageID]int64),
	}

	if err := m.growTo(initialSlots); err != nil {
		_ = file.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manager) growTo(slots int64) error {
	if slots <= m.capacity {
		return nil
	}

	if err := m.file.Truncate(slots * common.PageSize); err != nil {
		return errors.Wrap(err, "grow backing file")
	}

	m.capacity = slots

	return nil
}

func (m *Manager) allocate() (int64, error) {
	if n := len(m.freeSlots); n > 0 {
		offset := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]

		return offset, nil
	}

	slot := m.nextSlot
	m.nextSlot++

	if m.nextSlot > m.capacity {
		if err := m.growTo(m.capacity * 2); err != nil {
			return 0, err
		}
	}

	return slot * common.PageSize, nil
}

// ReadPage fills buf (which must be exactly common.PageSize bytes) with
// the contents most recently written to pageID, or zeros if pageID has
// never been written.
func (m *Manager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return errors.New("disk: read buffer must be PageSize bytes")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.slots[pageID]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}

		return nil
	}

	n, err := m.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "read page")
	}

	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	return nil
}

// WritePage durably stores buf (exactly common.PageSize bytes) as the
// contents of pageID, allocating a slot on first write.
func (m *Manager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return errors.New("disk: write buffer must be PageSize bytes")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.slots[pageID]
	if !ok {
		var err error

		offset, err = m.allocate()
		if err != nil {
			return err
		}

		m.slots[pageID] = offset
	}

	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return errors.Wrap(err, "write page")
	}

	return nil
}

// DeletePage releases pageID's backing slot for reuse. Deleting a page
// that was never written is a no-op.
func (m *Manager) DeletePage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.slots[pageID]
	if !ok {
		return nil
	}

	delete(m.slots, pageID)
	m.freeSlots = append(m.freeSlots, offset)

	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.file.Close()
}
