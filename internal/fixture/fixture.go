// Package fixture assembles the station hardware from configuration.
//
// The "sim" driver runs boards, probes and routines in memory. The
// "jlink" driver programs DUTs through J-Link Commander, one probe per
// board selected by serial number, and runs the accelerometer and radio
// tests through the configured vendor commands. Board communication is
// simulated in both cases.
package fixture

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/fixture/sim"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/process"
	"github.com/N-O-S-T/FactoryTestApp/internal/programmer"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// Logger is the logging interface used while assembling the fixture.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Runner executes external tools. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// Assembly is a ready-to-drive fixture.
type Assembly struct {
	Fixture  *sequencer.Fixture
	Routines routine.Routines

	// Sim is the simulated hardware behind the fixture.
	Sim *sim.Fixture
}

// Build assembles the fixture selected by cfg.Fixture.Driver.
//
// Parameters:
//   - cfg: Validated application configuration
//   - runner: Runs J-Link Commander and vendor tools (jlink driver only)
//   - logger: Logger for assembly decisions (may be nil)
//
// Returns:
//   - *Assembly: Fixture and routines for the sequencer
//   - error: if the driver is unknown
func Build(cfg *config.Config, runner Runner, logger Logger) (*Assembly, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	hw := sim.New(cfg.Fixture)
	a := &Assembly{
		Fixture: &sequencer.Fixture{
			SlotsPerBoard: cfg.Fixture.SlotsPerBoard,
			PowerBoardID:  cfg.Fixture.PowerBoardID,
		},
		Sim: hw,
	}

	switch cfg.Fixture.Driver {
	case "sim":
		a.Fixture.Host = hw.Host
		a.Routines = hw.Routines
		for i, b := range hw.Boards {
			a.Fixture.Stations = append(a.Fixture.Stations, sequencer.Station{
				Number:     b.BoardID(),
				Board:      b,
				Programmer: hw.Programmers[i],
			})
		}

	case "jlink":
		a.Fixture.Host = &probeHost{binary: cfg.Programmer.Binary, next: hw.Host}
		for i, b := range hw.Boards {
			jl := programmer.NewJLink(programmer.JLinkConfig{
				Binary:      cfg.Programmer.Binary,
				ProbeSerial: cfg.Fixture.Boards[i].ProbeSerial,
				Timeout:     cfg.Programmer.Timeout,
			}, runner)
			a.Fixture.Stations = append(a.Fixture.Stations, sequencer.Station{
				Number:     b.BoardID(),
				Board:      b,
				Programmer: jl,
			})
		}

		if len(cfg.Checks.AccelerometerCommand) > 0 && len(cfg.Checks.RadioCommand) > 0 {
			a.Routines = &routine.Standard{
				Runner:               runner,
				AccelerometerCommand: cfg.Checks.AccelerometerCommand,
				RadioCommand:         cfg.Checks.RadioCommand,
				Timeout:              cfg.Checks.CommandTimeout,
			}
		} else {
			logger.Warn("accelerometer or radio command not configured, using simulated routines")
			a.Routines = hw.Routines
		}

	default:
		return nil, fmt.Errorf("unknown fixture driver %q", cfg.Fixture.Driver)
	}

	logger.Info("fixture assembled",
		"driver", cfg.Fixture.Driver,
		"boards", len(a.Fixture.Stations),
		"slots_per_board", a.Fixture.SlotsPerBoard,
	)
	return a, nil
}

// probeHost checks that J-Link Commander is installed before the
// simulated board links are tested.
type probeHost struct {
	binary string
	next   board.Host
}

func (h *probeHost) TestConnection(ctx context.Context) error {
	if _, err := exec.LookPath(h.binary); err != nil {
		return fmt.Errorf("%w: %w", board.ErrProbeUnreachable, err)
	}
	return h.next.TestConnection(ctx)
}

func (h *probeHost) OpenClients(ctx context.Context) error {
	return h.next.OpenClients(ctx)
}
