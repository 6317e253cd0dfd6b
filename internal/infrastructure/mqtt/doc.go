// Package mqtt publishes bridge presence and telemetry statistics to an
// MQTT broker.
//
// The connection carries a Last Will and Testament so subscribers can tell
// a crashed bridge from a gracefully stopped one: the broker publishes the
// LWT offline payload on unexpected disconnect, while Close publishes a
// graceful variant itself. Status messages are retained, so late
// subscribers immediately see the current state.
//
// Reconnection is handled by the paho library with exponential backoff;
// the online status is re-published on every reconnect.
package mqtt
