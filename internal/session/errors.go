package session

import "errors"

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidSession is returned when session details fail validation.
	ErrInvalidSession = errors.New("session: invalid")
)
