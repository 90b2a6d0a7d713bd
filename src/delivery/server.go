// Package delivery exposes the buffer pool's admin HTTP surface: plain
// introspection endpoints, not a data-plane API. Nothing outside this
// process is expected to drive page fetches through HTTP.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kvarch/bufferpoold/src"
	"github.com/kvarch/bufferpoold/src/bufferpool"
	"github.com/kvarch/bufferpoold/src/cfg"
)

type Server struct {
	log  src.Logger
	http *http.Server
	cfg  cfg.Config
	pool *bufferpool.Manager
}

func NewServer(log src.Logger, cfg cfg.Config, pool *bufferpool.Manager) *Server {
	return &Server{
		log:  log,
		cfg:  cfg,
		pool: pool,
	}
}

func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.AdminHost, s.cfg.AdminPort),
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 10,
	}

	s.log.Infof("admin server is running on %s:%d", s.cfg.AdminHost, s.cfg.AdminPort)

	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Server.Run http.ListenAndServe: %w", err)
	}

	return nil
}

func (s *Server) Close(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Server.Close http.Shutdown: %w", err)
	}

	s.log.Info("admin server is closed")

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type statsResponse struct {
	ResidentFrames uint64 `json:"resident_frames"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		ResidentFrames: s.pool.Size(),
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Errorf("encoding stats response: %v", err)
	}
}
