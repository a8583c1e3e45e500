package programmer

import "context"

// Driver is a debug probe attached to one test board. A programming
// session is Open, configuration, Connect, optional Erase and FlashImage,
// Reset, Resume and finally Close, which must be called whenever Open
// succeeded.
type Driver interface {
	// SelectTransport chooses the USB link to the probe.
	SelectTransport() error
	Open(ctx context.Context) error
	SetTargetDevice(name string) error

	// CommitSelection applies the transport and device choices.
	CommitSelection() error
	SetClockSpeed(khz int) error
	Connect(ctx context.Context) error
	Erase(ctx context.Context) error
	FlashImage(ctx context.Context, path string, offset uint32) error
	Reset(ctx context.Context) error

	// Resume lets the target run from reset.
	Resume(ctx context.Context) error
	Close(ctx context.Context) error
}
