package telemetry

import "strconv"

// Host platform state tokens with a defined numeric meaning.
const (
	stateOn          = "on"
	stateOff         = "off"
	stateUnavailable = "unavailable"
	stateUnknown     = "unknown"
)

// NormalizeState converts a raw observed state into a numeric reading value.
//
// Rules, in order: the unavailable/unknown sentinels are rejected (expected
// steady-state noise, not an error), "on" maps to 1, "off" maps to 0, and
// anything else must parse as a float or is rejected silently.
func NormalizeState(raw string) (float64, bool) {
	switch raw {
	case stateUnavailable, stateUnknown:
		return 0, false
	case stateOn:
		return 1.0, true
	case stateOff:
		return 0.0, true
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
