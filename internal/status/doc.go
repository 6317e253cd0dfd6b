// Package status periodically publishes telemetry statistics over MQTT.
//
// The reporter complements the retained presence message the mqtt client
// maintains itself: presence says the bridge is up, the stats topic says
// what it is doing. Publish failures are logged and skipped; the next
// cycle tries again.
package status
