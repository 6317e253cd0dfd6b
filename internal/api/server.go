package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/logging"
	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TelemetryController is the telemetry surface the API drives.
// *telemetry.Manager satisfies it.
type TelemetryController interface {
	Settings() telemetry.Settings
	UpdateSettings(s telemetry.Settings) error
	Stats() telemetry.Stats
	FlushAll(ctx context.Context) error
	Start(ctx context.Context) error
	Stop()
}

// SnapshotSource exposes the coordinator view the API reads.
// *coordinator.Coordinator satisfies it.
type SnapshotSource interface {
	Snapshot() coordinator.Snapshot
	LastUpdated() time.Time
	Populated() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Telemetry TelemetryController
	Snapshots SnapshotSource
	Version   string
}

// Server is the admin HTTP server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	telemetry TelemetryController
	snapshots SnapshotSource
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry controller is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		telemetry: deps.Telemetry,
		snapshots: deps.Snapshots,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		s.logger.Info("admin API listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("admin API shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down admin API: %w", err)
	}
	return nil
}
