// Package diskscheduler decouples callers from synchronous disk I/O: a
// single background worker drains a FIFO of requests and invokes the
// underlying disk manager, fulfilling each request's completion channel
// in submission order.
package diskscheduler

import (
	"github.com/google/uuid"

	"github.com/kvarch/bufferpoold/src"
	"github.com/kvarch/bufferpoold/src/pkg/common"
	"github.com/kvarch/bufferpoold/src/queue"
)

// DiskManager is the contract this package consumes; storage/disk.Manager
// satisfies it.
type DiskManager interface {
	ReadPage(pageID common.PageID, buf []byte) error
	WritePage(pageID common.PageID, buf []byte) error
	DeletePage(pageID common.PageID) error
}

// Request describes a single scheduled I/O. Data is read from (writes) or
// filled into (reads) by the worker; Done receives exactly one send of
// the resulting error, nil on success, and is never closed.
type Request struct {
	ID      uuid.UUID
	IsWrite bool
	Data    []byte
	PageID  common.PageID
	Done    chan error
}

// Scheduler owns the single worker goroutine that drains the request
// queue. Shutdown stops it by pushing a nil *Request through the queue as
// the "absent value" sentinel.
type Scheduler struct {
	disk DiskManager
	log  src.Logger

	queue *queue.Channel[*Request]
	done  chan struct{}
}

func New(disk DiskManager, log src.Logger) *Scheduler {
	s := &Scheduler{
		disk:  disk,
		log:   log,
		queue: queue.New[*Request](),
		done:  make(chan struct{}),
	}

	go s.run()

	return s
}

// Schedule enqueues requests in order; the scheduler preserves their FIFO
// order but does not wait for completion. Callers await req.Done
// themselves, and may await multiple outstanding requests in any order.
func (s *Scheduler) Schedule(requests ...*Request) {
	for _, req := range requests {
		s.queue.Put(req)
	}
}

// NewRequest builds a Request with a fresh correlation ID and completion
// channel, ready to be handed to Schedule.
func NewRequest(isWrite bool, data []byte, pageID common.PageID) *Request {
	return &Request{
		ID:      uuid.New(),
		IsWrite: isWrite,
		Data:    data,
		PageID:  pageID,
		Done:    make(chan error, 1),
	}
}

func (s *Scheduler) run() {
	for {
		req := s.queue.Get()
		if req == nil {
			close(s.done)
			return
		}

		var err error
		if req.IsWrite {
			err = s.disk.WritePage(req.PageID, req.Data)
		} else {
			err = s.disk.ReadPage(req.PageID, req.Data)
		}

		if err != nil {
			s.log.Errorf("disk request %s (page %d, write=%v) failed: %v", req.ID, req.PageID, req.IsWrite, err)
		} else {
			s.log.Debugf("disk request %s (page %d, write=%v) completed", req.ID, req.PageID, req.IsWrite)
		}

		req.Done <- err
	}
}

// Shutdown signals the worker to exit after draining requests already
// queued ahead of the sentinel, and blocks until it has.
func (s *Scheduler) Shutdown() {
	s.queue.Put(nil)
	<-s.done
}

// DeallocatePage releases a page's backing slot directly on the disk
// manager, bypassing the request queue — mirrors the reference
// scheduler, which forwards deallocation synchronously rather than
// queuing it alongside reads/writes.
func (s *Scheduler) DeallocatePage(pageID common.PageID) error {
	return s.disk.DeletePage(pageID)
}
