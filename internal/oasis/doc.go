// Package oasis provides the REST client for the OASIS climate cloud backend.
//
// The client is composed of per-resource services mirroring the backend's
// API surface:
//
//   - User: account and auth validation endpoints
//   - Homes: home CRUD
//   - Thermostats: thermostat devices and their state/config
//   - Sensors: sensor mappings under a thermostat
//   - Telemetry: batch reading ingestion and cloud config
//
// # Authentication
//
// All requests carry the integration API key in the X-API-KEY header.
//
// # Error Handling
//
// Backend errors follow RFC 7807 (problem+json). Responses with status >= 400
// are decoded into *APIError carrying the problem title and detail:
//
//	homes, err := client.Homes.List(ctx)
//	var apiErr *oasis.APIError
//	if errors.As(err, &apiErr) {
//	    log.Warn("backend rejected request", "title", apiErr.Title)
//	}
//
// Transport-level failures wrap ErrConnectionFailed and can be checked with
// errors.Is.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package oasis
