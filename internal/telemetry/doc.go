// Package telemetry collects local sensor readings and forwards them to the
// cloud in batches.
//
// The Manager subscribes to a state-change feed for every sensor in the
// coordinator snapshot that resolves to a local entity. Each observed state
// is normalized to a numeric reading and appended to a shared in-memory
// buffer. The buffer drains through two independent triggers: crossing the
// configured batch size (immediate, fire-and-forget) and a periodic timer.
//
// Delivery is at-most-once by design. A flush drains the buffer before the
// network call; if the send fails the batch is logged and dropped, never
// retried. Readings buffered during an outage shorter than one flush cycle
// survive, anything already drained does not. This is best-effort telemetry,
// not a durability-critical pipeline.
//
// Runtime settings (enabled flag, batch size, flush interval) can change at
// any time and take effect on the next evaluation without a restart. Sensor
// mapping changes require a restart (Stop then Start), which rebuilds the
// subscription set from the current snapshot.
package telemetry
