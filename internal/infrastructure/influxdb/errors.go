package influxdb

import "errors"

var (
	// ErrDisabled is returned when connecting with the mirror disabled in
	// config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned when the initial connection attempt
	// fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed
	// client.
	ErrNotConnected = errors.New("influxdb: client not connected")
)
