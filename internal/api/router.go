package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleStatus)
			r.Get("/thermostats", s.handleThermostats)

			r.Route("/telemetry", func(r chi.Router) {
				r.Get("/settings", s.handleGetSettings)
				r.Put("/settings", s.handlePutSettings)
				r.Post("/flush", s.handleFlush)
				r.Post("/restart", s.handleRestart)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns telemetry stats and coordinator freshness.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"telemetry": s.telemetry.Stats(),
		"coordinator": map[string]any{
			"populated":    s.snapshots.Populated(),
			"last_updated": s.snapshots.LastUpdated().Format(time.RFC3339),
		},
	})
}

// thermostatView is the API shape of one snapshot thermostat.
type thermostatView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Mode        string  `json:"mode,omitempty"`
	TargetTemp  float64 `json:"target_temp,omitempty"`
	CurrentTemp float64 `json:"current_temp,omitempty"`
	SensorCount int     `json:"sensor_count"`
	MappedCount int     `json:"mapped_count"`
}

// handleThermostats returns the current snapshot's thermostats.
func (s *Server) handleThermostats(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()

	views := make([]thermostatView, 0, len(snap.Thermostats))
	for _, t := range snap.Thermostats {
		view := thermostatView{
			ID:          t.ID,
			Name:        t.Name,
			Mode:        t.Mode,
			TargetTemp:  t.TargetTemp,
			CurrentTemp: t.CurrentTemp,
			SensorCount: len(t.SensorsMap),
		}
		for _, sensor := range t.SensorsMap {
			if sensor.LocalID != "" || (sensor.Meta != nil && sensor.Meta.LocalID != "") {
				view.MappedCount++
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"home_id":     snap.HomeID,
		"home_name":   snap.HomeName,
		"thermostats": views,
	})
}

// handleGetSettings returns the current runtime telemetry settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.telemetry.Settings())
}

// handlePutSettings replaces the runtime telemetry settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings telemetry.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.telemetry.UpdateSettings(settings); err != nil {
		if errors.Is(err, telemetry.ErrInvalidSettings) {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
				"batch_size and flush_interval must be at least 1")
			return
		}
		writeInternalError(w, "updating settings failed")
		return
	}

	writeJSON(w, http.StatusOK, s.telemetry.Settings())
}

// handleFlush drains the buffer immediately.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.telemetry.FlushAll(r.Context()); err != nil {
		// The batch is already dropped; report the outcome honestly.
		writeError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.telemetry.Stats())
}

// handleRestart rebuilds the subscription set from the current snapshot.
// This is how sensor-mapping changes on the backend take effect.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.telemetry.Stop()
	if err := s.telemetry.Start(r.Context()); err != nil {
		writeInternalError(w, "restarting telemetry failed")
		return
	}
	writeJSON(w, http.StatusOK, s.telemetry.Stats())
}
