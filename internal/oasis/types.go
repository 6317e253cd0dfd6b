package oasis

import (
	"encoding/json"
	"strconv"
	"time"
)

// ID is a backend resource identifier.
//
// The backend is inconsistent about numeric vs string ids across endpoint
// versions, so ID accepts either representation on the wire and normalises
// to a string.
type ID string

// UnmarshalJSON accepts both string and numeric JSON values.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// IDFromInt builds an ID from a numeric backend id.
func IDFromInt(n int) ID { return ID(strconv.Itoa(n)) }

// Home is a backend home: the root of the device hierarchy for one account.
type Home struct {
	ID          ID           `json:"id"`
	Name        string       `json:"name"`
	Thermostats []Thermostat `json:"thermostats"`
}

// Thermostat is a backend climate zone device.
type Thermostat struct {
	ID                ID       `json:"id"`
	Name              string   `json:"name"`
	LocalID           string   `json:"local_id,omitempty"`
	IntegrationSource string   `json:"integration_source,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	TargetTemp        float64  `json:"target_temp,omitempty"`
	CurrentTemp       float64  `json:"current_temp,omitempty"`
	Sensors           []Sensor `json:"sensors"`
}

// Sensor is a backend sensor mapped under a thermostat.
//
// LocalID identifies the host-platform entity the sensor's readings come
// from. Newer backend versions nest it in Meta; older ones put it at the
// top level. Both are carried so callers can apply the fallback chain.
type Sensor struct {
	ID      ID          `json:"id"`
	Name    string      `json:"name"`
	Type    string      `json:"type,omitempty"`
	LocalID string      `json:"local_id,omitempty"`
	Meta    *SensorMeta `json:"meta,omitempty"`
}

// SensorMeta is the nested sensor metadata block.
type SensorMeta struct {
	LocalID string `json:"local_id,omitempty"`
}

// Reading is one sensor observation on the wire.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// telemetryBatch is the wire envelope for a reading batch.
type telemetryBatch struct {
	DeviceID  string     `json:"device_id"`
	Timestamp *time.Time `json:"timestamp"` // always null: backend uses arrival time
	Readings  []Reading  `json:"readings"`
}

// User is the authenticated account.
type User struct {
	ID    ID     `json:"id"`
	Email string `json:"email"`
	Tier  string `json:"tier,omitempty"`
}

// problem is the RFC 7807 body shape for backend errors.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
