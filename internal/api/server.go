package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/natsfixture/internal/history"
	"github.com/nerrad567/natsfixture/internal/infrastructure/config"
	"github.com/nerrad567/natsfixture/internal/infrastructure/logging"
	"github.com/nerrad567/natsfixture/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Fixture is the view of a supervised instance the API needs.
// *supervisor.Supervisor implements it.
type Fixture interface {
	Name() string
	Stats() supervisor.Stats
	Start(ctx context.Context) error
	Stop()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Fixtures []Fixture

	// History is optional; without it the history route answers 503.
	History history.Repository

	// Metrics is optional; when set it is served at /metrics.
	Metrics http.Handler

	// Hub is optional. Pass the hub that is already attached to the
	// supervisors as an event sink so the stream sees their events.
	Hub *Hub

	Version string
}

// Server is the HTTP API server.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	fixtures  map[string]Fixture
	order     []string
	history   history.Repository
	metrics   http.Handler
	hub       *Hub
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		fixtures:  make(map[string]Fixture, len(deps.Fixtures)),
		history:   deps.History,
		metrics:   deps.Metrics,
		hub:       deps.Hub,
		version:   deps.Version,
		startTime: time.Now(),
	}
	for _, f := range deps.Fixtures {
		name := f.Name()
		if _, dup := s.fixtures[name]; dup {
			return nil, fmt.Errorf("duplicate instance name %q", name)
		}
		s.fixtures[name] = f
		s.order = append(s.order, name)
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Config, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. It is an events.Sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router, for serving the API on a listener the caller owns.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
// The hub runs until Close or until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
