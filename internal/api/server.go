// Package api is the HTTP boundary: trajectory calculation, device
// control, TLE catalog introspection, the pass schedule, the live status
// stream, and the embedded control panel.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kilodelta8/StarTrack/internal/auth"
	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/health"
	"github.com/kilodelta8/StarTrack/internal/httputil"
	"github.com/kilodelta8/StarTrack/internal/metrics"
	"github.com/kilodelta8/StarTrack/internal/planner"
	"github.com/kilodelta8/StarTrack/internal/schedule"
	"github.com/kilodelta8/StarTrack/internal/stream"
	"github.com/kilodelta8/StarTrack/internal/tle"
	"github.com/kilodelta8/StarTrack/web"
)

// Deps carries the wired subsystems the HTTP layer serves. Store, Planner
// and Device are required. Nil optional fields disable their endpoints:
// Fetcher disables POST /api/v1/tle/fetch, Schedule disables
// GET /api/v1/passes, Stream disables GET /api/v1/stream/status.
type Deps struct {
	Store      *tle.Store
	Planner    *planner.Planner
	Device     *device.Client
	Fetcher    *tle.Fetcher
	Snapshots  *tle.Cache
	Schedule   *schedule.Schedule
	Stream     *stream.Handler
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	deps       Deps
}

// NewServer wires the routes and middleware into a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	s := &Server{logger: logger, deps: deps}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(authCfg),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(authCfg auth.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.deps.Store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/calculate", s.handleCalculate)
	mux.HandleFunc("POST /api/v1/upload", s.handleUpload)
	mux.HandleFunc("POST /api/v1/command", s.handleCommand)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/passes", s.handlePasses)
	mux.HandleFunc("GET /api/v1/tle/metadata", s.handleTLEMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", s.handleTLEFetch)
	if s.deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/status", s.deps.Stream.HandleStatus)
	}

	// Embedded control panel. More specific patterns above win, so this
	// only catches the static files and unknown GET paths.
	mux.Handle("GET /", http.FileServerFS(web.Assets))

	// Outermost first: metrics wraps logging wraps auth wraps the mux.
	return metrics.Middleware(s.logRequests(auth.Middleware(authCfg)(mux)))
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// statusTap records the response code on its way through.
type statusTap struct {
	http.ResponseWriter
	status int
}

func (t *statusTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the status stream needs for flushing and write deadline control.
func (t *statusTap) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tap := &statusTap{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(tap, r)

		// Probes fire every few seconds; keep them out of the INFO log.
		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", tap.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_ip", httputil.ClientIP(r, s.deps.TrustProxy),
		)
	})
}
