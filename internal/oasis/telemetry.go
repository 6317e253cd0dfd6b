package oasis

import (
	"context"
	"net/http"
)

// TelemetryService handles telemetry ingestion endpoints.
type TelemetryService struct {
	c *Client
}

// SendBatch posts a batch of sensor readings.
//
// The batch is all-or-nothing from the caller's perspective: there are no
// partial-acceptance semantics. Most callers should use Client.SendTelemetry,
// which builds the envelope.
func (s *TelemetryService) SendBatch(ctx context.Context, batch telemetryBatch) error {
	return s.c.do(ctx, http.MethodPost, "/telemetry", batch, nil)
}

// Config requests the operational configuration for a device.
func (s *TelemetryService) Config(ctx context.Context, deviceID string) (map[string]any, error) {
	payload := map[string]any{"device_id": deviceID}
	var cfg map[string]any
	if err := s.c.do(ctx, http.MethodPost, "/telemetry/config", payload, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
