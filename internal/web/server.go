// Package web provides the local form server: a single-page tabbed form
// for importing, patching and exporting records, backed by the sync
// service. The server is a desktop-style GUI bound to loopback, so it
// can shut itself down when the user is done with the page.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/elabsync/elabsync/internal/config"
	"github.com/elabsync/elabsync/internal/core"
	ownmw "github.com/elabsync/elabsync/internal/web/middleware"
)

// Server is the HTTP server for the sync form.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer creates the form server around a sync service.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service:    service,
		cfg:        cfg,
		router:     chi.NewRouter(),
		shutdownCh: make(chan struct{}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	// The form is a local GUI holding an API token; nothing but the
	// local user's browser may reach it.
	s.router.Use(ownmw.LoopbackOnly)
	s.router.Use(ownmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleForm)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/shutdown", s.handleShutdown)

	s.router.Route("/api", func(r chi.Router) {
		// Category listing for the selection dropdowns
		r.Get("/categories", s.handleCategories)

		// Sync runs (import and patch)
		r.Post("/run/{profileKey}", s.handleStartRun)
		r.Get("/run/{runID}/progress", s.handleRunProgress)
		r.Get("/run/{runID}/result", s.handleRunResult)
		r.Post("/run/{runID}/cancel", s.handleCancelRun)

		// Export, synchronous: the response is the exported file
		r.Post("/export", s.handleExport)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // zero: SSE and long sync runs
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ShutdownRequested is closed when the browser asks the server to exit
// via POST /shutdown. The serve command waits on it alongside signals.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdownCh
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds defensive headers to all responses. The page is
// self-contained (inline style and script, no external assets), so the
// policy allows exactly that and nothing else.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"runs":   s.service.LimiterStatus(),
	})
}

// handleShutdown asks the process to exit. The response is written
// before the signal fires so the page can show a goodbye message.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("shutting down"))

	s.shutdownOnce.Do(func() {
		// Give the response a moment to flush before the listener dies.
		time.AfterFunc(100*time.Millisecond, func() {
			close(s.shutdownCh)
		})
	})
}
