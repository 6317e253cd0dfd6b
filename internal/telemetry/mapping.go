package telemetry

import (
	"github.com/oasis-climate/oasis-bridge/internal/coordinator"
	"github.com/oasis-climate/oasis-bridge/internal/oasis"
)

// BuildMappings derives the subscription targets from a coordinator snapshot.
//
// A sensor's local entity id resolves from the nested meta block first, then
// the legacy top-level field. Sensors with neither are physical
// direct-reporting sensors and are skipped. Whether the entity currently
// exists on the host platform is not checked: subscription is by identifier,
// and a late-appearing entity starts producing readings from that point.
//
// No ordering guarantee is made.
func BuildMappings(snap coordinator.Snapshot) []Mapping {
	var mappings []Mapping
	for thermostatID, thermo := range snap.Thermostats {
		for sensorID, sensor := range thermo.SensorsMap {
			entityID := resolveEntityID(sensor)
			if entityID == "" {
				continue
			}
			mappings = append(mappings, Mapping{
				ThermostatID: thermostatID,
				SensorID:     sensorID,
				EntityID:     entityID,
			})
		}
	}
	return mappings
}

// resolveEntityID applies the nested-then-flat fallback for the local
// entity id.
func resolveEntityID(s oasis.Sensor) string {
	if s.Meta != nil && s.Meta.LocalID != "" {
		return s.Meta.LocalID
	}
	return s.LocalID
}
