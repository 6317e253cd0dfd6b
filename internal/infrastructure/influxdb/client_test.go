package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
	"github.com/oasis-climate/oasis-bridge/internal/telemetry"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestMirrorReadingsWhileDisconnected(t *testing.T) {
	c := &Client{} // never connected

	// Must be a silent no-op, not a panic: the flush path calls this
	// unconditionally.
	c.MirrorReadings([]telemetry.Reading{
		{DeviceID: "s1", Value: 18.3, Timestamp: time.Now()},
	})

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNilSafe(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
