package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/lambda-heatpumps/internal/audit"
	"github.com/nerrad567/lambda-heatpumps/internal/coordinator"
	"github.com/nerrad567/lambda-heatpumps/internal/entry"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/config"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/database"
	"github.com/nerrad567/lambda-heatpumps/internal/infrastructure/logging"
	"github.com/nerrad567/lambda-heatpumps/internal/integration"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Integration is the part of the integration the API drives.
type Integration interface {
	Entries(ctx context.Context) ([]integration.EntryStatus, error)
	ReloadByID(ctx context.Context, id string) error
	Snapshot(entryID string) (coordinator.Snapshot, bool)
	Active() int
}

// EntryStore reads and updates configuration entries.
type EntryStore interface {
	Get(ctx context.Context, id string) (*entry.Entry, error)
	UpdateData(ctx context.Context, id string, data, options map[string]any) (*entry.Entry, error)
}

// History lists the recorded lifecycle operations of an entry.
type History interface {
	List(ctx context.Context, entryID string, limit int) ([]audit.Record, error)
}

// HealthChecker is a component reported by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports broker connectivity and the tracked
// subscriptions.
type ConnectionStatus interface {
	IsConnected() bool
	SubscriptionCount() int
	HasSubscription(filter string) bool
}

// DBStats reports database pool statistics and the schema state.
type DBStats interface {
	Stats() sql.DBStats
	GetMigrationStatus(ctx context.Context) ([]database.MigrationRecord, []database.Migration, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Integration Integration
	Store       EntryStore

	// History serves /entries/{id}/history. Optional.
	History History

	// Health maps component names to checkers. Optional.
	Health map[string]HealthChecker

	// MQTT and DB feed the metrics endpoint. Optional.
	MQTT ConnectionStatus
	DB   DBStats

	Version string
}

// Server is the admin HTTP API server.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	integration Integration
	store       EntryStore
	history     History
	health      map[string]HealthChecker
	mqtt        ConnectionStatus
	db          DBStats
	version     string
	startTime   time.Time
	server      *http.Server

	// reloads tracks reloads started by POST /entries/{id}/reload.
	reloads sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Integration == nil {
		return nil, fmt.Errorf("integration is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("entry store is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		integration: deps.Integration,
		store:       deps.Store,
		history:     deps.History,
		health:      deps.Health,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Timeouts.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.GetReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.GetWriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.GetIdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then for
// reloads the API started.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.reloads.Wait()
	if err != nil {
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
