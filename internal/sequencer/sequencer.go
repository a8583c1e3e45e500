package sequencer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
)

// FlashMode selects whether programming writes images to the DUT.
type FlashMode string

const (
	// FlashDryRun runs the probe session without erase or image load.
	FlashDryRun FlashMode = "dry-run"

	// FlashLive erases the DUT and loads the configured image.
	FlashLive FlashMode = "live"
)

// ErrorPolicy decides what a programming stage does after a slot fails.
type ErrorPolicy string

const (
	// ContinueOnError records the failure and moves to the next slot.
	ContinueOnError ErrorPolicy = "continue"

	// AbortOnError stops the stage at the first failed slot.
	AbortOnError ErrorPolicy = "abort"
)

// Config holds the sequencer's test parameters.
type Config struct {
	ErrorPolicy ErrorPolicy

	// DetectPasses is how many times a full cycle runs detection. The
	// first reading after power-up is unreliable, so the default is 2.
	DetectPasses int

	FlashMode       FlashMode
	TargetDevice    string
	SpeedKHz        int
	TestImage       string
	ProductionImage string
	ImageOffset     uint32

	// Output12VEnabled sends the 12 V output command during the 12 V
	// test. No verdict is derived from it.
	Output12VEnabled bool

	Radio routine.RadioParams
}

// Logger is the logging interface used by the sequencer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options carries optional collaborators. Zero values select the system
// clock, no observer and no logging.
type Options struct {
	Clock    Clock
	Observer Observer
	Logger   Logger
}

// Sequencer runs the test stages against a fixture and records results in
// a device registry.
//
// Stages run one at a time. Run and Start enforce this across callers;
// the stage methods themselves assume the caller owns the fixture.
type Sequencer struct {
	fixture  *Fixture
	registry *dut.Registry
	routines routine.Routines
	cfg      Config

	clock    Clock
	observer Observer
	logger   Logger

	ops []Operation

	busy sync.Mutex

	mu     sync.Mutex
	runID  string
	active string
}

// New creates a sequencer.
//
// Parameters:
//   - fixture: Boards, probes and host connection to drive
//   - registry: Device registry receiving detection and check results
//   - routines: Chip ID, accelerometer and radio routines
//   - cfg: Test parameters; zero fields take defaults
//   - opts: Clock, observer and logger
func New(fixture *Fixture, registry *dut.Registry, routines routine.Routines, cfg Config, opts Options) *Sequencer {
	if cfg.ErrorPolicy == "" {
		cfg.ErrorPolicy = ContinueOnError
	}
	if cfg.FlashMode == "" {
		cfg.FlashMode = FlashDryRun
	}
	if cfg.DetectPasses < 1 {
		cfg.DetectPasses = 2
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Sequencer{
		fixture:  fixture,
		registry: registry,
		routines: routines,
		cfg:      cfg,
		clock:    opts.Clock,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	s.ops = s.operations()
	return s
}

// Registry returns the device registry the sequencer writes to.
func (s *Sequencer) Registry() *dut.Registry {
	return s.registry
}

// Fixture returns the fixture being driven.
func (s *Sequencer) Fixture() *Fixture {
	return s.fixture
}

// RunID returns the id of the current run, or "" before the first stage.
func (s *Sequencer) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// beginRun resets the registry and starts a new run id.
func (s *Sequencer) beginRun() string {
	s.registry.BeginRun()
	return s.newRun()
}

// newRun starts a new run id and announces it to observers.
func (s *Sequencer) newRun() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()

	s.logger.Info("run started", "run_id", id)
	s.observer.RunStarted(id)
	return id
}

// ensureRun returns the current run id, starting a run for stages invoked
// before any full cycle.
func (s *Sequencer) ensureRun() string {
	s.mu.Lock()
	id := s.runID
	s.mu.Unlock()
	if id != "" {
		return id
	}

	id = uuid.NewString()
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
	s.observer.RunStarted(id)
	return id
}

// stage runs fn as a named stage, timing it and reporting the outcome to
// observers. A non-empty hint is shown while the stage runs and replaced
// by READY afterwards.
func (s *Sequencer) stage(ctx context.Context, name, hint string, fn func(ctx context.Context, rep *StageReport) error) error {
	rep := StageReport{
		Stage:   name,
		RunID:   s.ensureRun(),
		Started: s.clock.Now(),
	}
	if hint != "" {
		s.observer.Progress(hint)
	}

	err := fn(ctx, &rep)

	rep.Duration = s.clock.Now().Sub(rep.Started)
	rep.Err = err
	if hint != "" {
		s.observer.Progress("READY")
	}
	s.observer.StageFinished(rep)

	if err != nil {
		s.logger.Warn("stage ended with error", "stage", name, "error", err)
	} else {
		s.logger.Debug("stage finished", "stage", name, "duration", rep.Duration, "failures", rep.Failures())
	}
	return err
}

// forEachTestable visits every testable slot in fixture order. The
// context is checked before each slot.
func (s *Sequencer) forEachTestable(ctx context.Context, fn func(st Station, slot dut.Slot) error) error {
	for n := 1; n <= s.fixture.SlotsPerBoard; n++ {
		for _, st := range s.fixture.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			slot := dut.Slot{Board: st.Number, Number: n}
			if !s.registry.IsTestable(slot) {
				continue
			}
			if err := fn(st, slot); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sequencer) setFlag(slot dut.Slot, f dut.Flag, v bool) {
	if err := s.registry.SetFlag(slot, f, v); err != nil {
		s.logger.Error("registry update failed", "dut", slot.String(), "flag", f.String(), "error", err)
	}
}

func (s *Sequencer) recordError(slot dut.Slot, msg string) {
	if err := s.registry.AppendError(slot, msg); err != nil {
		s.logger.Error("registry update failed", "dut", slot.String(), "error", err)
	}
}

func (s *Sequencer) success(msg string, args ...any) {
	s.logger.Info(msg, append(args, "result", "pass")...)
}

// PowerOn switches the supply to every DUT through the power board.
func (s *Sequencer) PowerOn(ctx context.Context) error {
	return s.stage(ctx, OpPowerOn, "", func(ctx context.Context, _ *StageReport) error {
		return s.powerBank(ctx, true)
	})
}

// PowerOff removes the supply from every DUT.
func (s *Sequencer) PowerOff(ctx context.Context) error {
	return s.stage(ctx, OpPowerOff, "", func(ctx context.Context, _ *StageReport) error {
		return s.powerBank(ctx, false)
	})
}

func (s *Sequencer) powerBank(ctx context.Context, on bool) error {
	st, ok := s.fixture.PowerStation()
	if !ok {
		return fmt.Errorf("%w: board id %d", ErrNoPowerBoard, s.fixture.PowerBoardID)
	}

	if on {
		if err := st.Board.PowerOn(ctx, 1); err != nil {
			return fmt.Errorf("powering on DUTs: %w", err)
		}
		s.logger.Info("all connected DUTs are switched on")
		return nil
	}

	if err := st.Board.PowerOff(ctx, 1); err != nil {
		return fmt.Errorf("powering off DUTs: %w", err)
	}
	s.logger.Info("all connected DUTs are switched off")
	return nil
}
