package sequencer

import (
	"context"
	"time"
)

// Settle and dwell times between power transitions.
const (
	// DUTSettleTime is the wait after powering a single slot.
	DUTSettleTime = 1000 * time.Millisecond

	// PowerOffDwell is how long the bank stays off during the RTC test.
	PowerOffDwell = 5000 * time.Millisecond

	// BankSettleTime is the wait after the bank is powered back on.
	BankSettleTime = 1000 * time.Millisecond
)

// Clock supplies the current time and timed waits.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or ctx cancellation.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
