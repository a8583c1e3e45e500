package sim

import (
	"context"
	"fmt"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
)

// Routines simulates the accelerometer and radio tools. The chip ID is
// read through the board's railtest shell like on the bench.
type Routines struct{}

var _ routine.Routines = (*Routines)(nil)

// ReadChipID implements routine.Routines.
func (Routines) ReadChipID(ctx context.Context, b board.Driver, slot int) (string, error) {
	return routine.ReadChipID(ctx, b, slot)
}

// TestAccelerometer implements routine.Routines.
func (Routines) TestAccelerometer(_ context.Context, b board.Driver, slot int) error {
	d, err := simDUT(b, slot)
	if err != nil {
		return err
	}
	if d.accelFail {
		return fmt.Errorf("%w: accelerometer not responding", routine.ErrTestFailed)
	}
	return nil
}

// TestRadio implements routine.Routines. A healthy DUT reports the middle
// of the RSSI window; a faulty one falls 15 dB below it.
func (Routines) TestRadio(_ context.Context, b board.Driver, slot int, p routine.RadioParams) error {
	d, err := simDUT(b, slot)
	if err != nil {
		return err
	}
	rssi := (p.RSSIMin + p.RSSIMax) / 2
	if d.radioFail {
		rssi = p.RSSIMin - 15
	}
	if rssi < p.RSSIMin || rssi > p.RSSIMax {
		return fmt.Errorf("%w: rssi %d outside [%d, %d] on channel %d", routine.ErrTestFailed, rssi, p.RSSIMin, p.RSSIMax, p.Channel)
	}
	return nil
}

func simDUT(b board.Driver, slot int) (*dutState, error) {
	sb, ok := b.(*Board)
	if !ok {
		return nil, fmt.Errorf("%w: board %d is not simulated", routine.ErrNotConfigured, b.BoardID())
	}
	return sb.slotDUT(slot)
}
