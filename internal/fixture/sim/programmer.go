package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/N-O-S-T/FactoryTestApp/internal/programmer"
)

// Programmer simulates the debug probe wired to one board. It reaches the
// DUT currently selected by the board's debug multiplexer.
type Programmer struct {
	board *Board

	mu        sync.Mutex
	transport bool
	open      bool
	attached  bool
	calls     []string
	flashed   map[int]string
}

var _ programmer.Driver = (*Programmer)(nil)

// NewProgrammer creates a probe attached to b.
func NewProgrammer(b *Board) *Programmer {
	return &Programmer{board: b, flashed: make(map[int]string)}
}

// Calls returns the probe calls made so far.
func (p *Programmer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Flashed returns the image last loaded into slot.
func (p *Programmer) Flashed(slot int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flashed[slot]
}

// session records the call and requires an open session. It returns with
// p.mu held on success.
func (p *Programmer) session(call string) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	if !p.open {
		p.mu.Unlock()
		return programmer.ErrNotOpen
	}
	return nil
}

// SelectTransport implements programmer.Driver.
func (p *Programmer) SelectTransport() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "transport")
	p.transport = true
	return nil
}

// Open implements programmer.Driver.
func (p *Programmer) Open(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "open")
	if p.open {
		return programmer.ErrAlreadyOpen
	}
	if !p.transport {
		return fmt.Errorf("%w: no transport selected", programmer.ErrInvalidArgument)
	}
	p.open = true
	return nil
}

// SetTargetDevice implements programmer.Driver.
func (p *Programmer) SetTargetDevice(name string) error {
	if err := p.session("device " + name); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty device name", programmer.ErrInvalidArgument)
	}
	return nil
}

// CommitSelection implements programmer.Driver.
func (p *Programmer) CommitSelection() error {
	if err := p.session("si SWD"); err != nil {
		return err
	}
	p.mu.Unlock()
	return nil
}

// SetClockSpeed implements programmer.Driver.
func (p *Programmer) SetClockSpeed(khz int) error {
	if err := p.session(fmt.Sprintf("speed %d", khz)); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if khz <= 0 {
		return fmt.Errorf("%w: speed %d kHz", programmer.ErrInvalidArgument, khz)
	}
	return nil
}

// Connect implements programmer.Driver. It fails when the selected slot is
// empty, unpowered or configured to reject the probe.
func (p *Programmer) Connect(_ context.Context) error {
	if err := p.session("connect"); err != nil {
		return err
	}
	defer p.mu.Unlock()

	d, slot, err := p.board.selectedDUT()
	if err != nil {
		return fmt.Errorf("%w: Cannot connect to target: %w", programmer.ErrProgrammingFailed, err)
	}
	if d.flashFail {
		return fmt.Errorf("%w: Cannot connect to target on slot %d", programmer.ErrProgrammingFailed, slot)
	}
	p.attached = true
	return nil
}

func (p *Programmer) target(call string) error {
	if err := p.session(call); err != nil {
		return err
	}
	if !p.attached {
		p.mu.Unlock()
		return fmt.Errorf("%w: target not connected", programmer.ErrProgrammingFailed)
	}
	return nil
}

// Erase implements programmer.Driver.
func (p *Programmer) Erase(_ context.Context) error {
	if err := p.target("erase"); err != nil {
		return err
	}
	p.mu.Unlock()
	return nil
}

// FlashImage implements programmer.Driver.
func (p *Programmer) FlashImage(_ context.Context, path string, offset uint32) error {
	if err := p.target(fmt.Sprintf("loadfile %s 0x%X", path, offset)); err != nil {
		return err
	}
	defer p.mu.Unlock()
	if path == "" {
		return fmt.Errorf("%w: empty image path", programmer.ErrInvalidArgument)
	}
	_, slot, err := p.board.selectedDUT()
	if err != nil {
		return fmt.Errorf("%w: %w", programmer.ErrProgrammingFailed, err)
	}
	p.flashed[slot] = path
	return nil
}

// Reset implements programmer.Driver.
func (p *Programmer) Reset(_ context.Context) error {
	if err := p.target("r"); err != nil {
		return err
	}
	p.mu.Unlock()
	return nil
}

// Resume implements programmer.Driver.
func (p *Programmer) Resume(_ context.Context) error {
	if err := p.target("g"); err != nil {
		return err
	}
	p.mu.Unlock()
	return nil
}

// Close implements programmer.Driver.
func (p *Programmer) Close(_ context.Context) error {
	if err := p.session("exit"); err != nil {
		return err
	}
	defer p.mu.Unlock()
	p.open = false
	p.attached = false
	p.transport = false
	return nil
}
