package telemetry

import "time"

// Reading is one normalized observation pending transmission.
//
// DeviceID is the cloud-side sensor identifier, not the local entity id.
// Timestamp is when the local state changed, not when the reading was
// buffered or flushed. Once buffered a Reading is immutable; it leaves the
// buffer only through a flush.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Settings is the runtime telemetry configuration.
//
// The in-memory copy held by the Manager is authoritative; a persisted
// mirror only seeds it across restarts. All three fields are replaced
// together by UpdateSettings and read fresh on every event.
type Settings struct {
	Enabled       bool `json:"enabled"`
	BatchSize     int  `json:"batch_size"`
	FlushInterval int  `json:"flush_interval"` // seconds
}

// Validate checks settings bounds.
func (s Settings) Validate() error {
	if s.BatchSize < 1 || s.FlushInterval < 1 {
		return ErrInvalidSettings
	}
	return nil
}

// Mapping is one subscription target: the local entity to watch and the
// cloud identifiers readings from it are tagged with.
type Mapping struct {
	ThermostatID string
	SensorID     string
	EntityID     string
}

// StateChange is one observed local state transition delivered to the
// Manager by its state source.
type StateChange struct {
	EntityID    string
	State       string
	LastChanged time.Time
}

// Stats is a point-in-time view of the Manager's counters.
type Stats struct {
	Running       bool      `json:"running"`
	Buffered      int       `json:"buffered"`
	Subscriptions int       `json:"subscriptions"`
	Flushes       uint64    `json:"flushes"`
	SentReadings  uint64    `json:"sent_readings"`
	LostReadings  uint64    `json:"lost_readings"`
	LastFlush     time.Time `json:"last_flush,omitzero"`
}
