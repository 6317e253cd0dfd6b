package hass

import "errors"

var (
	// ErrConnectionFailed indicates the WebSocket could not be established.
	ErrConnectionFailed = errors.New("hass: connection failed")

	// ErrAuthFailed indicates Home Assistant rejected the access token.
	ErrAuthFailed = errors.New("hass: authentication failed")

	// ErrNotConnected indicates a command was issued without a live
	// connection.
	ErrNotConnected = errors.New("hass: not connected")

	// ErrAlreadyConnected indicates Connect was called on a live client.
	ErrAlreadyConnected = errors.New("hass: already connected")

	// ErrEntityNotFound indicates the requested entity has no state.
	ErrEntityNotFound = errors.New("hass: entity not found")

	// ErrTimeout indicates Home Assistant did not answer a command in time.
	ErrTimeout = errors.New("hass: command timed out")

	// ErrCommandFailed indicates Home Assistant answered a command with
	// success=false.
	ErrCommandFailed = errors.New("hass: command failed")
)
