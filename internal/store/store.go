package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
	msPerSecond     = 1000

	connectionTimeout = 5 * time.Second
	queryTimeout      = 5 * time.Second
)

// telemetrySettingsKey is the options key holding telemetry.Settings.
const telemetrySettingsKey = "telemetry_settings"

// Store is the SQLite-backed options store.
//
// Thread Safety: All methods are safe for concurrent use; SQLite access is
// serialized through a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Config contains store configuration options.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory is created if it doesn't exist.
	Path string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open creates the options store, its directory and schema as needed.
//
// The connection uses WAL journaling and a busy timeout so the admin API
// and the telemetry manager can touch options concurrently without
// "database is locked" errors.
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	connStr := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}

	s := &Store{db: db, path: cfg.Path}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may not exist until first write

	return s, nil
}

// ensureSchema creates the options table if missing.
func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS options (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating options schema: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetOption stores a JSON-encoded value under key, replacing any previous
// value.
func (s *Store) SetOption(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding option %q: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	const query = `
		INSERT INTO options (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storing option %q: %w", key, err)
	}
	return nil
}

// GetOption loads the value stored under key into out.
// Returns ErrNotFound if the key has never been set.
func (s *Store) GetOption(key string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("loading option %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("decoding option %q: %w", key, err)
	}
	return nil
}

// SaveTelemetrySettings persists the runtime telemetry settings. Satisfies
// the telemetry manager's settings store.
func (s *Store) SaveTelemetrySettings(settings telemetry.Settings) error {
	return s.SetOption(telemetrySettingsKey, settings)
}

// LoadTelemetrySettings returns the persisted telemetry settings, or
// ErrNotFound on a fresh store.
func (s *Store) LoadTelemetrySettings() (telemetry.Settings, error) {
	var settings telemetry.Settings
	if err := s.GetOption(telemetrySettingsKey, &settings); err != nil {
		return telemetry.Settings{}, err
	}
	return settings, nil
}
