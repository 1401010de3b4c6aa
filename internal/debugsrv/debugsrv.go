// Package debugsrv serves the optional local debug listener of the CLI:
// a Prometheus scrape endpoint, a liveness probe, and a JSON dump of the
// session's telemetry log.
//
// The listener is for local inspection while reproducing issues; it binds
// whatever address it is given and applies no authentication.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vocalis-go/vocalis/pkg/voice/telemetry"
)

// Config configures the debug listener.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:9190" or ":9190".
	Addr string

	// Recorder backs GET /debug/events.
	Recorder *telemetry.Recorder

	// Metrics serves GET /metrics, typically the scrape handler of the
	// metrics provider. Nil leaves the route unregistered.
	Metrics http.Handler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the debug HTTP listener.
type Server struct {
	cfg    Config
	logger *slog.Logger

	httpServer *http.Server
	ln         net.Listener
}

// New creates a Server; call [Server.Start] to bind it.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the route table:
//
//	GET /healthz       — liveness probe
//	GET /metrics       — Prometheus scrape (when configured)
//	GET /debug/events  — telemetry log dump; ?filtered=true applies the
//	                     recorder's category filter
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /debug/events", s.handleEvents)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	return mux
}

// Start binds the configured address and serves in the background. The bound
// address is available from [Server.Addr] afterwards.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug listener failed", "error", err)
		}
	}()

	s.logger.Info("debug listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown gracefully stops the listener. Calling it before Start is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// eventsResponse is the JSON body of the events endpoint.
type eventsResponse struct {
	Count      int                   `json:"count"`
	Categories map[string]bool       `json:"categories"`
	Metrics    telemetry.TurnMetrics `json:"turn_metrics"`
	Events     []telemetry.Event     `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rec := s.cfg.Recorder
	if rec == nil {
		writeJSON(w, http.StatusOK, eventsResponse{
			Categories: map[string]bool{},
			Events:     []telemetry.Event{},
		})
		return
	}

	events := rec.Events()
	if filtered, _ := strconv.ParseBool(r.URL.Query().Get("filtered")); filtered {
		events = rec.FilteredEvents()
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Count:      len(events),
		Categories: rec.Categories(),
		Metrics:    rec.Metrics(),
		Events:     events,
	})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
