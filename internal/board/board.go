package board

import (
	"context"
	"time"
)

// Driver is one physical test board. It switches slot power, routes the
// debug path, samples the slot's analog inputs, talks to the DUT's command
// shell and drives the shared DALI bus.
//
// Slot numbers are 1-based. Every blocking call takes a context; a driver
// returns ctx.Err() when the context ends before the board answers.
type Driver interface {
	// BoardID is the board's configured number.
	BoardID() int

	// IsConnected reports whether the board's client link is up.
	IsConnected() bool

	PowerOn(ctx context.Context, slot int) error
	PowerOff(ctx context.Context, slot int) error

	// SelectDebugPath routes the programmer's SWD lines to slot.
	SelectDebugPath(ctx context.Context, slot int) error

	// ReadAnalog samples analog channel ch of slot with the given gain and
	// returns the raw converter value.
	ReadAnalog(ctx context.Context, slot, ch, gain int) (int, error)

	// SendBusCommand sends a line to the DUT's command shell and returns
	// the whitespace-separated tokens of the reply.
	SendBusCommand(ctx context.Context, slot int, command string) ([]string, error)

	// SetResponseTimeout changes how long the board waits for a reply.
	SetResponseTimeout(d time.Duration)

	DALIBusOn(ctx context.Context) error
	DALIBusOff(ctx context.Context) error

	// MarkSlotTestComplete tells the board the slot's verdict is final so
	// it can light the slot's indicator.
	MarkSlotTestComplete(ctx context.Context, slot int) error
}

// CurrentSensor is implemented by boards that measure their own supply
// current.
type CurrentSensor interface {
	// ReadSupplyCurrent returns the board supply current in raw counts.
	ReadSupplyCurrent(ctx context.Context) (int, error)
}

// TemperatureSensor is implemented by boards with an on-board temperature
// channel.
type TemperatureSensor interface {
	// ReadTemperature returns the temperature channel in raw ADC counts.
	ReadTemperature(ctx context.Context) (int, error)
}

// Host is the fixture-level link shared by all boards.
type Host interface {
	// TestConnection verifies that every debug probe is reachable.
	TestConnection(ctx context.Context) error

	// OpenClients opens the link to every board.
	OpenClients(ctx context.Context) error
}
