package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Oasis Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Oasis         OasisConfig         `yaml:"oasis"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Store         StoreConfig         `yaml:"store"`
	API           APIConfig           `yaml:"api"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// OasisConfig contains OASIS cloud API connection settings.
type OasisConfig struct {
	APIURL  string `yaml:"api_url"`
	APIKey  string `yaml:"api_key"`
	HomeID  string `yaml:"home_id"`
	Timeout int    `yaml:"timeout"` // seconds, per HTTP request
}

// HomeAssistantConfig contains Home Assistant WebSocket API settings.
type HomeAssistantConfig struct {
	URL       string            `yaml:"url"` // e.g. ws://homeassistant.local:8123/api/websocket
	Token     string            `yaml:"token"`
	Reconnect HAReconnectConfig `yaml:"reconnect"`
}

// HAReconnectConfig contains reconnection backoff settings.
type HAReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
}

// CoordinatorConfig contains polling coordinator settings.
type CoordinatorConfig struct {
	PollInterval int `yaml:"poll_interval"` // seconds between full-tree refreshes
}

// TelemetryConfig contains default telemetry settings.
// These seed the runtime settings on first start; once the bridge has run,
// the persisted copy in the options store takes precedence.
type TelemetryConfig struct {
	Enabled       bool `yaml:"enabled"`
	BatchSize     int  `yaml:"batch_size"`
	FlushInterval int  `yaml:"flush_interval"` // seconds
	MaxBuffered   int  `yaml:"max_buffered"`   // 0 = unbounded
}

// StoreConfig contains SQLite options store settings.
type StoreConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// APIConfig contains admin HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	AuthToken string           `yaml:"auth_token"` // empty disables auth
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTConfig contains MQTT status reporting settings.
type MQTTConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Broker        MQTTBrokerConfig    `yaml:"broker"`
	Auth          MQTTAuthConfig      `yaml:"auth"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
	QoS           int                 `yaml:"qos"`
	StatsInterval int                 `yaml:"stats_interval"` // seconds between stats publishes
}

// MQTTReconnectConfig contains MQTT reconnection backoff settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains the optional local reading mirror settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OASISBRIDGE_SECTION_KEY
// For example: OASISBRIDGE_OASIS_API_KEY, OASISBRIDGE_HASS_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Oasis: OasisConfig{
			APIURL:  "https://oasis-climate.com/api/v1",
			Timeout: 10,
		},
		HomeAssistant: HomeAssistantConfig{
			URL: "ws://homeassistant.local:8123/api/websocket",
			Reconnect: HAReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Coordinator: CoordinatorConfig{
			PollInterval: 60,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			BatchSize:     20,
			FlushInterval: 300,
			MaxBuffered:   5000,
		},
		Store: StoreConfig{
			Path:        "./data/oasisbridge.db",
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "oasis-bridge",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			QoS:           1,
			StatsInterval: 60,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OASISBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Oasis cloud API
	if v := os.Getenv("OASISBRIDGE_OASIS_API_URL"); v != "" {
		cfg.Oasis.APIURL = v
	}
	if v := os.Getenv("OASISBRIDGE_OASIS_API_KEY"); v != "" {
		cfg.Oasis.APIKey = v
	}
	if v := os.Getenv("OASISBRIDGE_OASIS_HOME_ID"); v != "" {
		cfg.Oasis.HomeID = v
	}

	// Home Assistant
	if v := os.Getenv("OASISBRIDGE_HASS_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("OASISBRIDGE_HASS_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}

	// Store
	if v := os.Getenv("OASISBRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// Admin API
	if v := os.Getenv("OASISBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("OASISBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("OASISBRIDGE_API_AUTH_TOKEN"); v != "" {
		cfg.API.AuthToken = v
	}

	// MQTT
	if v := os.Getenv("OASISBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OASISBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OASISBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("OASISBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Oasis validation
	if c.Oasis.APIURL == "" {
		errs = append(errs, "oasis.api_url is required")
	}
	if c.Oasis.APIKey == "" {
		errs = append(errs, "oasis.api_key is required (set OASISBRIDGE_OASIS_API_KEY environment variable)")
	}
	if c.Oasis.HomeID == "" {
		errs = append(errs, "oasis.home_id is required")
	}

	// Home Assistant validation
	if c.HomeAssistant.URL == "" {
		errs = append(errs, "home_assistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		errs = append(errs, "home_assistant.token is required (set OASISBRIDGE_HASS_TOKEN environment variable)")
	}

	// Coordinator validation
	if c.Coordinator.PollInterval < 1 {
		errs = append(errs, "coordinator.poll_interval must be at least 1 second")
	}

	// Telemetry validation
	if c.Telemetry.BatchSize < 1 {
		errs = append(errs, "telemetry.batch_size must be at least 1")
	}
	if c.Telemetry.FlushInterval < 1 {
		errs = append(errs, "telemetry.flush_interval must be at least 1 second")
	}
	if c.Telemetry.MaxBuffered < 0 {
		errs = append(errs, "telemetry.max_buffered cannot be negative")
	}

	// Store validation
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetOasisTimeout returns the cloud API request timeout as a Duration.
func (c *Config) GetOasisTimeout() time.Duration {
	return time.Duration(c.Oasis.Timeout) * time.Second
}

// GetPollInterval returns the coordinator poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Coordinator.PollInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
