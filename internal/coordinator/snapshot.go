package coordinator

import (
	"time"

	"github.com/oasis-climate/oasis-bridge/internal/oasis"
)

// Snapshot is one consistent view of the backend home tree.
//
// Thermostats are keyed by device id, and each thermostat's sensors are
// keyed by sensor id, so lookups during telemetry routing are O(1).
type Snapshot struct {
	HomeID      string
	HomeName    string
	Thermostats map[string]Thermostat
	UpdatedAt   time.Time
}

// Thermostat is one climate zone in the snapshot.
type Thermostat struct {
	ID          string
	Name        string
	Mode        string
	TargetTemp  float64
	CurrentTemp float64
	SensorsMap  map[string]oasis.Sensor
}

// buildSnapshot restructures the backend home payload into keyed maps.
func buildSnapshot(home *oasis.Home, at time.Time) Snapshot {
	snap := Snapshot{
		HomeID:      home.ID.String(),
		HomeName:    home.Name,
		Thermostats: make(map[string]Thermostat, len(home.Thermostats)),
		UpdatedAt:   at,
	}

	for _, t := range home.Thermostats {
		thermo := Thermostat{
			ID:          t.ID.String(),
			Name:        t.Name,
			Mode:        t.Mode,
			TargetTemp:  t.TargetTemp,
			CurrentTemp: t.CurrentTemp,
			SensorsMap:  make(map[string]oasis.Sensor, len(t.Sensors)),
		}
		for _, s := range t.Sensors {
			thermo.SensorsMap[s.ID.String()] = s
		}
		snap.Thermostats[thermo.ID] = thermo
	}

	return snap
}

// copySnapshot deep-copies a snapshot so callers can hold it without
// racing subsequent refreshes.
func copySnapshot(snap Snapshot) Snapshot {
	out := snap
	out.Thermostats = make(map[string]Thermostat, len(snap.Thermostats))
	for id, t := range snap.Thermostats {
		ct := t
		ct.SensorsMap = make(map[string]oasis.Sensor, len(t.SensorsMap))
		for sid, s := range t.SensorsMap {
			if s.Meta != nil {
				meta := *s.Meta
				s.Meta = &meta
			}
			ct.SensorsMap[sid] = s
		}
		out.Thermostats[id] = ct
	}
	return out
}
