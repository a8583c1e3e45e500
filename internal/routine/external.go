package routine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/process"
)

// Runner executes an external tool. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// Standard reads the chip ID over the railtest shell and delegates the
// accelerometer and radio tests to vendor command-line tools.
//
// Command arguments may contain placeholders that are expanded per slot:
// {board}, {slot}, {module}, {channel}, {power}, {rssi_min}, {rssi_max}
// and {samples}. A tool passes by exiting with status 0.
type Standard struct {
	Runner               Runner
	AccelerometerCommand []string
	RadioCommand         []string
	Timeout              time.Duration
}

// ReadChipID implements Routines.
func (s *Standard) ReadChipID(ctx context.Context, b board.Driver, slot int) (string, error) {
	return ReadChipID(ctx, b, slot)
}

// TestAccelerometer implements Routines.
func (s *Standard) TestAccelerometer(ctx context.Context, b board.Driver, slot int) error {
	return s.run(ctx, "accelerometer", s.AccelerometerCommand, placeholders(b, slot, RadioParams{}))
}

// TestRadio implements Routines.
func (s *Standard) TestRadio(ctx context.Context, b board.Driver, slot int, p RadioParams) error {
	return s.run(ctx, "radio", s.RadioCommand, placeholders(b, slot, p))
}

func placeholders(b board.Driver, slot int, p RadioParams) *strings.Replacer {
	return strings.NewReplacer(
		"{board}", strconv.Itoa(b.BoardID()),
		"{slot}", strconv.Itoa(slot),
		"{module}", p.ModuleID,
		"{channel}", strconv.Itoa(p.Channel),
		"{power}", strconv.Itoa(p.Power),
		"{rssi_min}", strconv.Itoa(p.RSSIMin),
		"{rssi_max}", strconv.Itoa(p.RSSIMax),
		"{samples}", strconv.Itoa(p.Samples),
	)
}

func (s *Standard) run(ctx context.Context, name string, command []string, r *strings.Replacer) error {
	if len(command) == 0 {
		return fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}

	args := make([]string, len(command)-1)
	for i, a := range command[1:] {
		args[i] = r.Replace(a)
	}

	res, err := s.Runner.Run(ctx, process.Config{
		Name:    name,
		Binary:  command[0],
		Args:    args,
		Timeout: s.Timeout,
	})
	if err != nil {
		return fmt.Errorf("%s test: %w", name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %s exit status %d: %s", ErrTestFailed, name, res.ExitCode, lastLine(res.Output()))
	}
	return nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
