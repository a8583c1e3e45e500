// Package board defines the contract between the sequencer and the fixture
// hardware: the per-board Driver, the optional CurrentSensor and the
// fixture-wide Host link.
//
// The serial transport to the boards lives behind these interfaces; the
// fixture/sim package implements them in memory.
package board
