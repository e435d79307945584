package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/session"
	"github.com/turnwire/turnwire/internal/transport"
)

// Config holds server settings.
type Config struct {
	Host        string
	Port        int
	EnableCORS  bool
	ReadTimeout time.Duration

	// WriteTimeout stays 0 so SSE feeds are never cut mid-stream.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server settings.
func DefaultConfig() *Config {
	return &Config{
		Port:        4747,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server hosts the coordinator's HTTP API. Sessions are controllers keyed
// by session id; they share the server's transport, demultiplexer, and
// latency tracker.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	trans   transport.Transport
	demux   *event.Demux
	tracker *latency.Tracker

	mu       sync.RWMutex
	sessions map[string]*session.Controller
}

// New creates a server over an already-wired transport and demultiplexer.
func New(cfg *Config, trans transport.Transport, demux *event.Demux, tracker *latency.Tracker) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		log:      logging.Component("server"),
		trans:    trans,
		demux:    demux,
		tracker:  tracker,
		sessions: make(map[string]*session.Controller),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the router's middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs one line per request through the global logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

// controller returns the session's controller, or nil if unknown.
func (s *Server) controller(sessionID string) *session.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("Server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for httptest-based tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
