package sim

import (
	"context"
	"fmt"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
)

// Host simulates the station computer's links to the probes and boards.
type Host struct {
	boards []*Board
}

var _ board.Host = (*Host)(nil)

// TestConnection implements board.Host. Every simulated probe answers.
func (h *Host) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(h.boards) == 0 {
		return fmt.Errorf("%w: no probes configured", board.ErrProbeUnreachable)
	}
	return nil
}

// OpenClients implements board.Host. Boards listed as disconnected stay
// offline; it is an error only when no board connects.
func (h *Host) OpenClients(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	connected := 0
	for _, b := range h.boards {
		if b.connect() {
			connected++
		}
	}
	if connected == 0 {
		return fmt.Errorf("%w: no board reachable", board.ErrNotConnected)
	}
	return nil
}
