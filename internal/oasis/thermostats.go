package oasis

import (
	"context"
	"net/http"
)

// ThermostatsService handles thermostat-related endpoints.
type ThermostatsService struct {
	c *Client
}

// Create creates a new thermostat in a home.
//
// The backend uses the zone name as the local id for thermostats created by
// an integration.
func (s *ThermostatsService) Create(ctx context.Context, homeID, name string) (*Thermostat, error) {
	payload := map[string]any{
		"name":               name,
		"local_id":           name,
		"integration_source": "HA",
	}
	var thermostat Thermostat
	if err := s.c.do(ctx, http.MethodPost, "/homes/"+homeID+"/devices", payload, &thermostat); err != nil {
		return nil, err
	}
	return &thermostat, nil
}

// Delete removes a thermostat.
func (s *ThermostatsService) Delete(ctx context.Context, thermostatID string) error {
	return s.c.do(ctx, http.MethodDelete, "/devices/"+thermostatID, nil, nil)
}

// UpdateState updates operational state (setpoint, mode).
func (s *ThermostatsService) UpdateState(ctx context.Context, thermostatID string, state map[string]any) error {
	return s.c.do(ctx, http.MethodPatch, "/devices/"+thermostatID+"/state", state, nil)
}

// UpdateConfig updates configuration (name, settings).
func (s *ThermostatsService) UpdateConfig(ctx context.Context, thermostatID string, cfg map[string]any) error {
	return s.c.do(ctx, http.MethodPatch, "/devices/"+thermostatID+"/config", cfg, nil)
}

// CloudConfig fetches the operational configuration for a device through the
// telemetry config endpoint.
func (s *ThermostatsService) CloudConfig(ctx context.Context, deviceID string) (map[string]any, error) {
	payload := map[string]any{"device_id": deviceID}
	var cfg map[string]any
	if err := s.c.do(ctx, http.MethodPost, "/telemetry/config", payload, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
