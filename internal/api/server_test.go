package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/logging"
	"github.com/oasis-climate/oasis-bridge/internal/oasis"
	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

// =============================================================================
// Stubs
// =============================================================================

type stubTelemetry struct {
	mu       sync.Mutex
	settings telemetry.Settings
	flushes  int
	restarts int
	flushErr error
}

func (s *stubTelemetry) Settings() telemetry.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *stubTelemetry) UpdateSettings(settings telemetry.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *stubTelemetry) Stats() telemetry.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return telemetry.Stats{Running: true, Buffered: 2, Subscriptions: 1}
}

func (s *stubTelemetry) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *stubTelemetry) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	return nil
}

func (s *stubTelemetry) Stop() {}

type stubSnapshots struct {
	snap coordinator.Snapshot
}

func (s *stubSnapshots) Snapshot() coordinator.Snapshot { return s.snap }
func (s *stubSnapshots) LastUpdated() time.Time         { return s.snap.UpdatedAt }
func (s *stubSnapshots) Populated() bool                { return len(s.snap.Thermostats) > 0 }

// =============================================================================
// Helpers
// =============================================================================

func newTestServer(t *testing.T, cfg config.APIConfig) (*Server, *stubTelemetry) {
	t.Helper()

	tel := &stubTelemetry{settings: telemetry.Settings{Enabled: true, BatchSize: 20, FlushInterval: 300}}
	snap := &stubSnapshots{snap: coordinator.Snapshot{
		HomeID:   "h1",
		HomeName: "Cottage",
		Thermostats: map[string]coordinator.Thermostat{
			"t1": {
				ID:   "t1",
				Name: "Living Room",
				SensorsMap: map[string]oasis.Sensor{
					"s1": {ID: "s1", Meta: &oasis.SensorMeta{LocalID: "sensor.outdoor_temp"}},
					"s2": {ID: "s2"},
				},
			},
		},
		UpdatedAt: time.Now(),
	}}

	srv, err := New(Deps{
		Config:    cfg,
		Logger:    logging.Default(),
		Telemetry: tel,
		Snapshots: snap,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, tel
}

func doRequest(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Routes
// =============================================================================

func TestHealthNoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{AuthToken: "secret"})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthEnforcement(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{AuthToken: "secret"})

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "nope", http.StatusUnauthorized},
		{"valid token", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", tt.token, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabledWhenNoToken(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestGetSettings(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/telemetry/settings", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got telemetry.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.BatchSize != 20 || got.FlushInterval != 300 {
		t.Errorf("settings = %+v", got)
	}
}

func TestPutSettings(t *testing.T) {
	srv, tel := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPut, "/api/v1/telemetry/settings", "",
		`{"enabled":false,"batch_size":50,"flush_interval":120}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	want := telemetry.Settings{Enabled: false, BatchSize: 50, FlushInterval: 120}
	if got := tel.Settings(); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
}

func TestPutSettingsValidation(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"zero batch size", `{"enabled":true,"batch_size":0,"flush_interval":60}`, http.StatusUnprocessableEntity},
		{"zero interval", `{"enabled":true,"batch_size":5,"flush_interval":0}`, http.StatusUnprocessableEntity},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPut, "/api/v1/telemetry/settings", "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestManualFlush(t *testing.T) {
	srv, tel := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/telemetry/flush", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if tel.flushes != 1 {
		t.Errorf("flushes = %d, want 1", tel.flushes)
	}
}

func TestRestart(t *testing.T) {
	srv, tel := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/telemetry/restart", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if tel.restarts != 1 {
		t.Errorf("restarts = %d, want 1", tel.restarts)
	}
}

func TestThermostatsView(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/thermostats", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		HomeID      string           `json:"home_id"`
		Thermostats []thermostatView `json:"thermostats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.HomeID != "h1" || len(body.Thermostats) != 1 {
		t.Fatalf("body = %+v", body)
	}
	view := body.Thermostats[0]
	if view.SensorCount != 2 || view.MappedCount != 1 {
		t.Errorf("view = %+v, want 2 sensors, 1 mapped", view)
	}
}
