package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kvarch/bufferpoold/src"
	"github.com/kvarch/bufferpoold/src/bufferpool"
	"github.com/kvarch/bufferpoold/src/cfg"
	"github.com/kvarch/bufferpoold/src/delivery"
	"github.com/kvarch/bufferpoold/src/diskscheduler"
	"github.com/kvarch/bufferpoold/src/pkg/utils"
	"github.com/kvarch/bufferpoold/src/storage/disk"
)

const CloseTimeout = 15 * time.Second

// BufferPoolEntrypoint wires together the disk manager, disk scheduler
// and buffer pool manager, then exposes the admin HTTP server on top of
// them. It's the process's single Entrypoint.
type BufferPoolEntrypoint struct {
	ConfigPath string

	server    *delivery.Server
	log       src.Logger
	cfg       cfg.Config
	diskMgr   *disk.Manager
	scheduler *diskscheduler.Scheduler
	pool      *bufferpool.Manager
}

func (e *BufferPoolEntrypoint) Init(_ context.Context) error {
	config, err := cfg.LoadConfig(e.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	e.cfg = config

	var log src.Logger
	if e.cfg.Environment == cfg.EnvDev {
		log = utils.Must(zap.NewDevelopment()).Sugar()
	} else {
		log = utils.Must(zap.NewProduction()).Sugar()
	}

	e.log = log

	diskMgr, err := disk.New(e.cfg.DataFile)
	if err != nil {
		return fmt.Errorf("open disk manager: %w", err)
	}

	e.diskMgr = diskMgr
	e.scheduler = diskscheduler.New(diskMgr, log)
	e.pool = bufferpool.New(e.cfg.NumFrames, e.scheduler, log)

	e.server = delivery.NewServer(log, e.cfg, e.pool)

	return nil
}

func (e *BufferPoolEntrypoint) Run(_ context.Context) error {
	return e.server.Run()
}

func (e *BufferPoolEntrypoint) Close() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()

	if e.server != nil {
		err = e.server.Close(ctx)
	}

	if e.pool != nil {
		if flushErr := e.pool.FlushAllPages(); flushErr != nil && err == nil {
			err = flushErr
		}
	}

	if e.scheduler != nil {
		e.scheduler.Shutdown()
	}

	if e.diskMgr != nil {
		if closeErr := e.diskMgr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	if e.log != nil {
		if err != nil {
			e.log.Error("failed to close server", zap.Error(err))
		}

		logErr := e.log.Sync()
		if logErr != nil && err != nil {
			err = fmt.Errorf("%w, %w", err, logErr)
		} else if logErr != nil {
			err = logErr
		}
	}

	return
}
