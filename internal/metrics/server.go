package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves Prometheus metrics for the running Guardian instance.
type Server struct {
	port        int
	path        string
	server      *http.Server
	mu          sync.RWMutex
	logger      *slog.Logger
	statusFunc  func() any
	controlFunc func(action, process string) error
}

// ControlRequest is the JSON body POSTed to /control.
type ControlRequest struct {
	Action  string `json:"action"` // start | stop | restart
	Process string `json:"process"`
}

// NewServer creates a new metrics server.
func NewServer(port int, path string, log *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{port: port, path: path, logger: log}
}

// SetStatusFunc registers a callback whose return value is served as JSON
// at /status, so `guardian status` can query a live supervisor over the
// same HTTP listener used for Prometheus scraping instead of needing a
// separate management API.
func (s *Server) SetStatusFunc(fn func() any) {
	s.mu.Lock()
	s.statusFunc = fn
	s.mu.Unlock()
}

// SetControlFunc registers the callback invoked for POST /control requests,
// letting `guardian start|stop|restart <name>` drive the live supervisor's
// driver over HTTP instead of a bespoke management API.
func (s *Server) SetControlFunc(fn func(action, process string) error) {
	s.mu.Lock()
	s.controlFunc = fn
	s.mu.Unlock()
}

// Start starts the metrics server in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		fn := s.statusFunc
		s.mu.RUnlock()
		if fn == nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fn())
	})
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.RLock()
		fn := s.controlFunc
		s.mu.RUnlock()
		if fn == nil {
			http.Error(w, "control unavailable", http.StatusServiceUnavailable)
			return
		}
		var req ControlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := fn(req.Action, req.Process); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.logger.Info("Starting metrics server", "port", s.port, "path", s.path)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server == nil {
		return nil
	}

	s.logger.Info("Stopping metrics server")
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop metrics server gracefully", "error", err)
		return err
	}
	s.logger.Info("Metrics server stopped")
	return nil
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.port
}
