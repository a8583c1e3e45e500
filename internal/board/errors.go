package board

import "errors"

var (
	// ErrNotConnected is returned when the board link is down.
	ErrNotConnected = errors.New("board: not connected")

	// ErrNoResponse is returned when the board does not answer in time.
	ErrNoResponse = errors.New("board: no response")

	// ErrInvalidSlot is returned for slot numbers outside the board.
	ErrInvalidSlot = errors.New("board: invalid slot")

	// ErrProbeUnreachable is returned by Host.TestConnection when a debug
	// probe cannot be found.
	ErrProbeUnreachable = errors.New("board: debug probe unreachable")
)
