package coordinator

import "errors"

var (
	// ErrRefreshFailed indicates the backend could not be reached or
	// returned an unusable home tree. The previous snapshot is retained.
	ErrRefreshFailed = errors.New("coordinator: refresh failed")

	// ErrAlreadyStarted indicates Start was called on a running coordinator.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)
