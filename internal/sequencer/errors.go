package sequencer

import "errors"

// Domain errors for the sequencer package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, sequencer.ErrBusy) {
//	    // another operation owns the fixture
//	}
var (
	// ErrBusy is returned when an operation is requested while another
	// one is running against the fixture.
	ErrBusy = errors.New("sequencer: operation already running")

	// ErrUnknownOperation is returned for an unregistered operation slug.
	ErrUnknownOperation = errors.New("sequencer: unknown operation")

	// ErrStageAborted is returned when a stage stops early under the
	// abort error policy.
	ErrStageAborted = errors.New("sequencer: stage aborted")

	// ErrFixtureUnavailable is returned when the connectivity check or
	// client setup fails. A full cycle cannot continue past it.
	ErrFixtureUnavailable = errors.New("sequencer: fixture unavailable")

	// ErrNoPowerBoard is returned when no station carries the board that
	// switches the DUT supply.
	ErrNoPowerBoard = errors.New("sequencer: power board not found")

	// ErrNoProgrammer is returned when a station has no programmer attached.
	ErrNoProgrammer = errors.New("sequencer: no programmer for station")
)

// errSlotFailed marks a slot whose final verdict is FAILED in stage reports.
var errSlotFailed = errors.New("sequencer: slot failed")
