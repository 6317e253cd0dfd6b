// Package api provides the local admin HTTP API for Oasis Bridge.
//
// It exposes the telemetry control surface (runtime settings, manual flush,
// subscription restart) and read-only diagnostics (health, stats, current
// thermostat snapshot). The server binds to localhost by default and
// optionally requires a static bearer token.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
