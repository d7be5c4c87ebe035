// internal/api/server.go

// Package api exposes live puzzle sessions over HTTP and WebSocket. The
// REST surface covers the catalog, session lifecycle, twists, scrambles,
// grip and layer queries, and replay; the stream endpoint pushes
// animation frames and accepts the same commands as JSON messages.
package api

import (
	"net/http"
	"time"

	"github.com/polytopelabs/hyperpuzzle-simulator/catalog"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/observability"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// Config holds server tunables.
type Config struct {
	// FrameInterval is the cadence of animation frames on the stream
	// endpoint.
	FrameInterval time.Duration
}

// DefaultConfig returns the server defaults: 50ms frames (20 fps).
func DefaultConfig() Config {
	return Config{FrameInterval: 50 * time.Millisecond}
}

// Server routes API requests to a puzzle catalog and a session store.
type Server struct {
	catalog *catalog.Catalog
	store   *SessionStore
	log     logging.Logger
	metrics *observability.APICollector
	engine  *observability.EngineCollector
	cfg     Config
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's base logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics attaches API request metrics.
func WithMetrics(m *observability.APICollector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEngineMetrics attaches engine metrics to every session the server
// creates.
func WithEngineMetrics(m *observability.EngineCollector) Option {
	return func(s *Server) { s.engine = m }
}

// WithConfig overrides the default server config.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// NewServer builds a server over cat.
func NewServer(cat *catalog.Catalog, opts ...Option) *Server {
	s := &Server{
		catalog: cat,
		log:     logging.Noop(),
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.FrameInterval <= 0 {
		s.cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	s.store = NewSessionStore(s.metrics)
	return s
}

// Store exposes the session store, mainly for command wiring and tests.
func (s *Server) Store() *SessionStore {
	return s.store
}

// sessionOptions assembles the options for a new session on def.
func (s *Server) sessionOptions(def *model.PuzzleDefinition) []session.Option {
	opts := []session.Option{
		session.WithLogger(s.log.With(
			logging.String("component", "session"),
			logging.String("puzzle", def.Name),
		)),
	}
	if s.engine != nil {
		opts = append(opts,
			session.WithMetrics(s.engine),
			session.WithCacheMetrics(s.engine),
		)
	}
	return opts
}

// Routes returns the server's handler tree. Every route passes through
// request-id assignment, tracing, and (when configured) request metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern, route string, h http.HandlerFunc) {
		var wrapped http.Handler = h
		wrapped = s.traced(route, wrapped)
		if s.metrics != nil {
			wrapped = s.metrics.Middleware(route, wrapped)
		}
		wrapped = s.requestScoped(wrapped)
		mux.Handle(pattern, wrapped)
	}

	handle("GET /v1/puzzles", "/v1/puzzles", s.handleListPuzzles)

	handle("POST /v1/sessions", "/v1/sessions", s.handleCreateSession)
	handle("GET /v1/sessions", "/v1/sessions", s.handleListSessions)
	handle("GET /v1/sessions/{id}", "/v1/sessions/{id}", s.handleGetSession)
	handle("DELETE /v1/sessions/{id}", "/v1/sessions/{id}", s.handleDeleteSession)

	handle("GET /v1/sessions/{id}/state", "/v1/sessions/{id}/state", s.handleState)
	handle("POST /v1/sessions/{id}/twists", "/v1/sessions/{id}/twists", s.handleTwists)
	handle("POST /v1/sessions/{id}/undo", "/v1/sessions/{id}/undo", s.handleUndo)
	handle("POST /v1/sessions/{id}/redo", "/v1/sessions/{id}/redo", s.handleRedo)
	handle("POST /v1/sessions/{id}/scramble", "/v1/sessions/{id}/scramble", s.handleScramble)
	handle("POST /v1/sessions/{id}/reset", "/v1/sessions/{id}/reset", s.handleReset)

	handle("GET /v1/sessions/{id}/grip", "/v1/sessions/{id}/grip", s.handleGrip)
	handle("GET /v1/sessions/{id}/layers", "/v1/sessions/{id}/layers", s.handleLayers)

	handle("GET /v1/sessions/{id}/recording", "/v1/sessions/{id}/recording", s.handleRecording)
	handle("POST /v1/sessions/{id}/replay", "/v1/sessions/{id}/replay", s.handleReplay)

	handle("GET /v1/sessions/{id}/stream", "/v1/sessions/{id}/stream", s.handleStream)

	return mux
}
