package telemetry

import "errors"

var (
	// ErrClosed is returned when publishing through a closed observer.
	ErrClosed = errors.New("telemetry: observer closed")
)
