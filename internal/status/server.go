// Package status serves a loopback HTTP endpoint reporting the lifecycle phase,
// for supervisors and container health checks.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v3"
)

// Report is the JSON body of GET /healthz.
type Report struct {
	Phase  Phase     `json:"phase"`
	Since  time.Time `json:"since"`
	Uptime string    `json:"uptime"`
}

// Server exposes a Tracker over HTTP.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	tracker *Tracker
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a status server for tracker.
func New(tracker *Tracker) (*Server, error) {
	if tracker == nil {
		return nil, fmt.Errorf("missing phase tracker")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		tracker: tracker,
	}
	s.mux.Handle("GET /healthz", requestLogger(slog.Default())(recoverer(http.HandlerFunc(s.handleHealth))))
	return s, nil
}

// requestLogger logs each request at debug level; health probes are frequent.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"User-Agent"},
		LogResponseHeaders: []string{},

		RecoverPanics: false, // recoverer answers; the panic is still logged by httplog
	})
}

// recoverer turns a handler panic into a JSON 500 response.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				writeJSON(r.Context(), w, map[string]string{"error": "internal error"}, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth answers 200 while bootstrapping or connected and 503 once draining.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	phase, since := s.tracker.Snapshot()
	status := http.StatusOK
	if phase == PhaseDraining || phase == PhaseStopped {
		status = http.StatusServiceUnavailable
	}

	writeJSON(r.Context(), w, Report{
		Phase:  phase,
		Since:  since.UTC(),
		Uptime: time.Since(s.tracker.started).Round(time.Second).String(),
	}, status)
}

// Start starts the HTTP server in the background and returns immediately.
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the returned channel, which is closed when the server stops.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
