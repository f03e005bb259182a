package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"echoloop/internal/domain"
)

// Provider is implemented by the appliance supervisor.
type Provider interface {
	Status() domain.Status
	Running() bool
}

// Server exposes health, status and metrics over HTTP. It only reads the
// supervisor's last snapshot, never live audio state.
type Server struct {
	addr     string
	provider Provider
	logger   *slog.Logger
	mux      *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func NewServer(addr string, provider Provider, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	running := s.provider.Running()

	status := "ok"
	statusCode := http.StatusOK
	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":  status,
		"running": running,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
