package programmer

import "errors"

var (
	// ErrNotOpen is returned for session calls made before Open.
	ErrNotOpen = errors.New("programmer: session not open")

	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("programmer: session already open")

	// ErrInvalidArgument is returned for empty device names or bad speeds.
	ErrInvalidArgument = errors.New("programmer: invalid argument")

	// ErrProgrammingFailed is returned when the probe tool reports a failure.
	ErrProgrammingFailed = errors.New("programmer: programming failed")
)
