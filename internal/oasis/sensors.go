package oasis

import (
	"context"
	"net/http"
)

// SensorsService handles sensor-related endpoints.
type SensorsService struct {
	c *Client
}

// ListByThermostat returns the sensors mapped under a thermostat.
func (s *SensorsService) ListByThermostat(ctx context.Context, thermostatID string) ([]Sensor, error) {
	var sensors []Sensor
	if err := s.c.do(ctx, http.MethodGet, "/devices/"+thermostatID+"/sensors", nil, &sensors); err != nil {
		return nil, err
	}
	return sensors, nil
}

// Create maps a new sensor to a thermostat.
//
// entityID is the host-platform entity whose state changes will feed the
// sensor; sensorType is one of the backend's sensor type enum values
// (temp_in, humidity_out, presence, ...).
func (s *SensorsService) Create(ctx context.Context, thermostatID, entityID, sensorType, name string) (*Sensor, error) {
	payload := map[string]any{
		"local_id":           entityID,
		"integration_source": "ha",
		"name":               name,
		"type":               sensorType,
	}
	var sensor Sensor
	if err := s.c.do(ctx, http.MethodPost, "/devices/"+thermostatID+"/sensors", payload, &sensor); err != nil {
		return nil, err
	}
	return &sensor, nil
}

// Update updates sensor details (e.g. name).
func (s *SensorsService) Update(ctx context.Context, sensorID string, fields map[string]any) error {
	return s.c.do(ctx, http.MethodPatch, "/sensors/"+sensorID, fields, nil)
}

// Delete removes a sensor mapping.
func (s *SensorsService) Delete(ctx context.Context, sensorID string) error {
	return s.c.do(ctx, http.MethodDelete, "/sensors/"+sensorID, nil, nil)
}
