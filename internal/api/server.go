// Package api exposes project setup sessions over HTTP. Each session drives
// an in-memory map renderer whose state clients mirror.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/resilience"
	"github.com/sells-group/siteplan/internal/setup"
)

const (
	defaultCanvasWidth  = 1280
	defaultCanvasHeight = 800
	sessionEventCap     = 200
)

// Geocoder is the resolver surface the API uses directly.
type Geocoder interface {
	setup.Geocoder
	ProviderStates() map[string]resilience.CircuitState
}

// Config holds the server's collaborators.
type Config struct {
	// Session is the template for new sessions. Renderer and Sink are
	// replaced per session.
	Session        setup.Options
	Geocoder       Geocoder
	Store          boundary.Store
	Sink           monitoring.Sink
	SessionTTL     time.Duration
	AllowedOrigins []string
}

type entry struct {
	session  *setup.Session
	renderer *mapview.Recording
	events   *monitoring.Recorder
	lastUsed time.Time
}

// Server routes HTTP requests to setup sessions.
type Server struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.Session.Geocoder == nil {
		cfg.Session.Geocoder = cfg.Geocoder
	}
	if cfg.Session.Store == nil {
		cfg.Session.Store = cfg.Store
	}
	return &Server{
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "api")),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/geocode", s.handleGeocode)
	r.Get("/providers", s.handleProviders)
	r.Get("/projects/{projectID}/boundary", s.handleGetBoundary)

	r.Post("/sessions", s.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.withSession(s.handleSnapshot))
		r.Delete("/", s.handleDeleteSession)
		r.Get("/render", s.withSession(s.handleRender))
		r.Get("/events", s.withSession(s.handleEvents))
		r.Post("/search", s.withSession(s.handleSearch))
		r.Post("/viewport", s.withSession(s.handleViewport))
		r.Get("/parcels", s.withSession(s.handleParcels))
		r.Post("/parcels/load", s.withSession(s.handleLoadParcels))
		r.Post("/click", s.withSession(s.handleClick))
		r.Post("/selection/{apn}/toggle", s.withSession(s.handleToggle))
		r.Delete("/selection", s.withSession(s.handleClearSelection))
		r.Post("/structure", s.withSession(s.handleStructure))
		r.Post("/steps/{step}", s.withSession(s.handleEnterStep))
		r.Post("/confirm", s.withSession(s.handleConfirm))
		r.Post("/ingest/complete", s.withSession(s.handleCompleteIngest))
	})
	return r
}

// Open starts a session for projectID and returns its id.
func (s *Server) Open(projectID string, width, height int) (string, *setup.Session) {
	if width <= 0 {
		width = defaultCanvasWidth
	}
	if height <= 0 {
		height = defaultCanvasHeight
	}
	renderer := mapview.NewRecording(width, height, mapview.Viewport{})
	events := monitoring.NewRecorder(sessionEventCap)

	opts := s.cfg.Session
	opts.Renderer = renderer
	opts.Sink = monitoring.Fanout{s.cfg.Sink, events}
	sess := setup.New(projectID, opts)

	id := uuid.New().String()
	s.mu.Lock()
	s.sweepLocked()
	s.sessions[id] = &entry{session: sess, renderer: renderer, events: events, lastUsed: s.now()}
	s.mu.Unlock()

	s.log.Info("session opened", zap.String("session_id", id), zap.String("project_id", projectID))
	return id, sess
}

func (s *Server) lookup(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	e, ok := s.sessions[id]
	if ok {
		e.lastUsed = s.now()
	}
	return e, ok
}

// closeSession removes and closes a session.
func (s *Server) closeSession(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.session.Close()
	}
	return ok
}

// sweepLocked closes sessions idle for longer than the TTL.
func (s *Server) sweepLocked() {
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			e.session.Close()
			delete(s.sessions, id)
			s.log.Debug("session expired", zap.String("session_id", id))
		}
	}
}

// Close closes every open session.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		e.session.Close()
		delete(s.sessions, id)
	}
}

// Len returns the number of open sessions.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, e *entry)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.lookup(chi.URLParam(r, "sessionID"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, e)
	}
}
