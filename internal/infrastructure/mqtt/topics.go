package mqtt

// topicPrefix is the root of the bridge's topic namespace.
const topicPrefix = "oasis-bridge"

// Topics builds the bridge's MQTT topic names.
type Topics struct{}

// SystemStatus is the retained bridge presence topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// TelemetryStats is the periodic telemetry counters topic.
func (Topics) TelemetryStats() string {
	return topicPrefix + "/telemetry/stats"
}
