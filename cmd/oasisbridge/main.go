// OASIS Bridge - Smart Thermostat Cloud Glue
//
// This is the main entry point for the OASIS bridge daemon. The bridge
// connects a local Home Assistant installation to the OASIS climate cloud:
//   - Polls the cloud for the home/thermostat/sensor tree
//   - Subscribes to local state changes for mapped sensor entities
//   - Buffers normalized readings and flushes them in batches
//   - Exposes an admin HTTP API for runtime telemetry control
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oasis-climate/oasis-bridge/internal/api"
	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/hass"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/influxdb"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/logging"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/mqtt"
	"github.com/oasis-climate/oasis-bridge/internal/oasis"
	"github.com/oasis-climate/oasis-bridge/internal/status"
	"github.com/oasis-climate/oasis-bridge/internal/store"
	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting OASIS bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load .env before config so env overrides pick up values from it.
	// A missing file is fine; real deployments use systemd environment.
	if err := godotenv.Load(); err == nil {
		log.Info(".env loaded")
	}

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the options store
	st, err := store.Open(store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening options store: %w", err)
	}
	defer func() {
		log.Info("closing options store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing options store", "error", closeErr)
		}
	}()
	log.Info("options store opened", "path", cfg.Store.Path)

	// Create the cloud client and validate credentials up front so a bad
	// API key fails fast instead of surfacing on the first flush.
	cloud := oasis.New(cfg.Oasis)
	cloud.SetLogger(log.WithComponent("oasis"))

	if authErr := cloud.ValidateAuth(ctx); authErr != nil {
		return fmt.Errorf("validating cloud credentials: %w", authErr)
	}
	log.Info("cloud credentials validated", "api_url", cfg.Oasis.APIURL)

	// Initialise the snapshot coordinator and do the first refresh inline:
	// telemetry needs a populated snapshot to build sensor mappings.
	coord := coordinator.New(cloud.Homes, cfg.Oasis.HomeID, cfg.GetPollInterval())
	coord.SetLogger(log.WithComponent("coordinator"))

	if refreshErr := coord.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("initial snapshot refresh: %w", refreshErr)
	}
	if startErr := coord.Start(); startErr != nil {
		return fmt.Errorf("starting coordinator: %w", startErr)
	}
	defer func() {
		log.Info("stopping coordinator")
		coord.Stop()
	}()
	log.Info("coordinator started",
		"home_id", cfg.Oasis.HomeID,
		"poll_interval", cfg.GetPollInterval(),
	)

	// Connect to Home Assistant
	haClient := hass.New(cfg.HomeAssistant)
	haClient.SetLogger(log.WithComponent("hass"))

	if connectErr := haClient.Connect(ctx); connectErr != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", connectErr)
	}
	defer func() {
		log.Info("disconnecting from Home Assistant")
		if closeErr := haClient.Close(); closeErr != nil {
			log.Error("error closing Home Assistant connection", "error", closeErr)
		}
	}()
	log.Info("Home Assistant connected", "url", cfg.HomeAssistant.URL)

	// Connect to InfluxDB (optional local reading mirror)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB mirror connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	// Build and start the telemetry manager
	manager, err := startTelemetry(ctx, cfg, cloud, haClient, coord, st, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer func() {
		log.Info("stopping telemetry manager")
		manager.Stop()
	}()

	// Start the admin HTTP API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log.WithComponent("api"),
		Telemetry: manager,
		Snapshots: coord,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating admin API: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting admin API: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing admin API", "error", closeErr)
		}
	}()

	// Connect MQTT and start the status reporter (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		mqttClient.SetLogger(log.WithComponent("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		reporter := status.New(mqttClient, manager, time.Duration(cfg.MQTT.StatsInterval)*time.Second)
		reporter.SetLogger(log.WithComponent("status"))
		reporter.Start()
		defer func() {
			log.Info("stopping status reporter")
			reporter.Stop()
		}()
	} else {
		log.Info("MQTT status reporting disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Status reporter / MQTT (if enabled)
	// 2. Admin API
	// 3. Telemetry manager
	// 4. InfluxDB (if enabled)
	// 5. Home Assistant
	// 6. Coordinator
	// 7. Options store

	log.Info("OASIS bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OASISBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OASISBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startTelemetry assembles and starts the telemetry manager.
//
// Runtime settings come from the options store when a persisted copy exists;
// otherwise the configuration file seeds them. The InfluxDB mirror is only
// wired when the client is actually connected.
func startTelemetry(
	ctx context.Context,
	cfg *config.Config,
	cloud *oasis.Client,
	haClient *hass.Client,
	coord *coordinator.Coordinator,
	st *store.Store,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*telemetry.Manager, error) {
	settings, err := st.LoadTelemetrySettings()
	switch {
	case err == nil:
		log.Info("telemetry settings restored from store",
			"enabled", settings.Enabled,
			"batch_size", settings.BatchSize,
			"flush_interval", settings.FlushInterval,
		)
	case errors.Is(err, store.ErrNotFound):
		settings = telemetry.Settings{
			Enabled:       cfg.Telemetry.Enabled,
			BatchSize:     cfg.Telemetry.BatchSize,
			FlushInterval: cfg.Telemetry.FlushInterval,
		}
		log.Info("telemetry settings seeded from config",
			"enabled", settings.Enabled,
			"batch_size", settings.BatchSize,
			"flush_interval", settings.FlushInterval,
		)
	default:
		return nil, fmt.Errorf("loading telemetry settings: %w", err)
	}

	managerCfg := telemetry.ManagerConfig{
		Sender:      &cloudSender{client: cloud},
		Source:      &hassStateSource{client: haClient},
		Snapshots:   coord,
		Store:       st,
		MaxBuffered: cfg.Telemetry.MaxBuffered,
	}
	if influxClient != nil {
		managerCfg.Mirror = influxClient
	}

	manager := telemetry.NewManager(managerCfg, settings)
	manager.SetLogger(log.WithComponent("telemetry"))

	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting manager: %w", err)
	}
	log.Info("telemetry manager started")

	return manager, nil
}

// cloudSender adapts the OASIS cloud client to the telemetry manager's
// Sender interface, converting readings to the cloud wire type.
type cloudSender struct {
	client *oasis.Client
}

// Send implements telemetry.Sender.
func (s *cloudSender) Send(ctx context.Context, thermostatID string, readings []telemetry.Reading) error {
	wire := make([]oasis.Reading, len(readings))
	for i, r := range readings {
		wire[i] = oasis.Reading{
			DeviceID:  r.DeviceID,
			Value:     r.Value,
			Timestamp: r.Timestamp,
		}
	}
	return s.client.SendTelemetry(ctx, thermostatID, wire)
}

// hassStateSource adapts the Home Assistant client to the telemetry
// manager's StateSource interface. The manager only cares about the new
// state; removal events (nil new state) are skipped.
type hassStateSource struct {
	client *hass.Client
}

// SubscribeState implements telemetry.StateSource.
func (s *hassStateSource) SubscribeState(entityID string, handler func(telemetry.StateChange)) (telemetry.Subscription, error) {
	sub, err := s.client.SubscribeStateChanges(entityID, func(entityID string, _, newState *hass.State) {
		if newState == nil {
			return
		}
		handler(telemetry.StateChange{
			EntityID:    entityID,
			State:       newState.State,
			LastChanged: newState.LastChanged,
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
