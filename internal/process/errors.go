package process

import "errors"

var (
	// ErrStartFailed is returned when the binary cannot be executed.
	ErrStartFailed = errors.New("process: start failed")

	// ErrTimeout is returned when a run exceeds its timeout.
	ErrTimeout = errors.New("process: timed out")
)
