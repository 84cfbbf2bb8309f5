// Package status exposes a small HTTP surface for watching a run live:
// a health probe and a JSON snapshot of the current orchestrator state.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skimkit/skim/engine"
)

// Provider yields the current run snapshot. *engine.Orchestrator
// implements it.
type Provider interface {
	Snapshot() engine.Snapshot
}

// Server serves /healthz and /status.
type Server struct {
	logger  *slog.Logger
	srv     *http.Server
	startAt time.Time
	runID   string

	mu      sync.RWMutex
	current Provider
}

// body of GET /status.
type payload struct {
	RunID  string           `json:"run_id"`
	Uptime float64          `json:"uptime_seconds"`
	Run    *engine.Snapshot `json:"run"`
}

// NewServer builds the server for addr. Call Start to begin serving.
func NewServer(addr, runID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:  logger,
		startAt: time.Now(),
		runID:   runID,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// SetCurrent swaps the orchestrator the snapshot reflects. The run loop
// calls this once per keyword; nil between runs is fine.
func (s *Server) SetCurrent(p Provider) {
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status: serve failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	p := s.current
	s.mu.RUnlock()

	out := payload{
		RunID:  s.runID,
		Uptime: time.Since(s.startAt).Seconds(),
	}
	if p != nil {
		snap := p.Snapshot()
		out.Run = &snap
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Warn("status: encode failed", "error", err)
	}
}
