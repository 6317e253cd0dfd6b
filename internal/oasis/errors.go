package oasis

import (
	"errors"
	"fmt"
)

// Sentinel errors for OASIS API operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, oasis.ErrConnectionFailed) {
//	    // Backend unreachable, treat as transient
//	}
var (
	// ErrConnectionFailed indicates a transport-level failure (DNS, TCP, TLS,
	// timeout) before any HTTP status was received.
	ErrConnectionFailed = errors.New("oasis: connection failed")

	// ErrAuthFailed indicates the API key was rejected by the backend.
	ErrAuthFailed = errors.New("oasis: authentication failed")

	// ErrHomeNotFound indicates the configured home id is not present in the
	// backend's home list for this account.
	ErrHomeNotFound = errors.New("oasis: home not found")
)

// APIError is a structured backend error following RFC 7807 (problem+json).
//
// The backend returns a problem document for every 4xx/5xx response; when the
// body is not valid JSON the raw text is carried in Detail.
type APIError struct {
	Status int    // HTTP status code
	Title  string // problem title
	Detail string // problem detail
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("oasis: %s: %s (status %d)", e.Title, e.Detail, e.Status)
}
