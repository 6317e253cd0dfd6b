package telemetry

import "errors"

var (
	// ErrInvalidSettings indicates a settings update with an out-of-range
	// batch size or flush interval.
	ErrInvalidSettings = errors.New("telemetry: invalid settings")

	// ErrSendFailed wraps a failed batch transmission. The batch is
	// dropped; the error exists for logging and manual-flush callers.
	ErrSendFailed = errors.New("telemetry: send failed")
)
