package routine

import "errors"

var (
	// ErrNotConfigured is returned when no external command is set for a test.
	ErrNotConfigured = errors.New("routine: test command not configured")

	// ErrBadResponse is returned when the DUT's reply cannot be parsed.
	ErrBadResponse = errors.New("routine: unexpected response")

	// ErrTestFailed is returned when an external test exits non-zero.
	ErrTestFailed = errors.New("routine: test failed")
)
