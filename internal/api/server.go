package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/logging"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
	"github.com/N-O-S-T/FactoryTestApp/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Station runs operations on the fixture. *station.Station satisfies it.
type Station interface {
	Operations() []sequencer.Operation
	Active() string
	RunID() string
	Slots() []dut.Record
	Start(ctx context.Context, slug string) (<-chan error, error)
}

// SessionStore manages the operator session and persisted verdicts.
// *session.Manager satisfies it.
type SessionStore interface {
	Start(ctx context.Context, operator, batch, batchInfo string) (session.Info, error)
	Stats() session.Stats
	ListResults(ctx context.Context, limit int) ([]session.Result, error)
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Station  Station
	Session  SessionStore
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	DB       *sql.DB             // optional, for connection pool stats
	MQTT     ConnectionChecker   // optional
	Hub      *Hub                // If set, the server uses this hub instead of creating its own
	Audit    audit.Repository    // optional, records operator actions
	Version  string
}

// Server is the HTTP API server of the station.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	station     Station
	session     SessionStore
	gatherer    prometheus.Gatherer
	db          *sql.DB
	mqtt        ConnectionChecker
	audit       audit.Repository
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	ctx         context.Context    // parent of operations started over HTTP
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, station, session)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Station == nil {
		return nil, fmt.Errorf("station is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		station:   deps.Station,
		session:   deps.Session,
		gatherer:  deps.Gatherer,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		audit:     deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
		ctx:       context.Background(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub. Register it as a sequencer observer.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless it was injected) and launches the
// HTTP listener in a background goroutine. Operations started over HTTP
// run under ctx, not under the request context. The server can be stopped
// with Close().
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.ctx = srvCtx

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
