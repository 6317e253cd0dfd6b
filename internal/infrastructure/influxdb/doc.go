// Package influxdb mirrors flushed telemetry readings to a local InfluxDB
// instance.
//
// The mirror is independent of cloud delivery: every flushed batch is
// written locally whether or not the cloud send succeeds, so local history
// survives backend outages. Writes go through the non-blocking batching
// WriteAPI; failures surface via an async error callback and never block
// the flush path.
package influxdb
