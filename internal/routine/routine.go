package routine

import (
	"context"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
)

// RadioParams configures the radio interface test.
type RadioParams struct {
	// ModuleID identifies the reference radio module on the fixture.
	ModuleID string
	Channel  int
	// Power is the transmit power in 0.1 dBm steps.
	Power   int
	RSSIMin int
	RSSIMax int
	Samples int
}

// Routines are the multi-step tests that run on the DUT itself rather than
// through a single board command.
type Routines interface {
	// ReadChipID returns the DUT's unique identifier as upper-case hex.
	ReadChipID(ctx context.Context, b board.Driver, slot int) (string, error)

	// TestAccelerometer returns nil when the accelerometer responds
	// correctly.
	TestAccelerometer(ctx context.Context, b board.Driver, slot int) error

	// TestRadio returns nil when the DUT's radio link to the reference
	// module stays inside the RSSI window.
	TestRadio(ctx context.Context, b board.Driver, slot int, p RadioParams) error
}
