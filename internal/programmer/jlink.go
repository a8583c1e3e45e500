package programmer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/process"
)

// Runner executes an external tool. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// failureMarkers are J-Link Commander output fragments that mean the
// session failed even when the exit status is zero.
var failureMarkers = []string{
	"Cannot connect to target",
	"Could not connect",
	"Connecting to J-Link via USB...FAILED",
	"ERROR:",
	"Failed to",
}

// JLinkConfig configures a J-Link Commander driver.
type JLinkConfig struct {
	// Binary is the J-Link Commander executable. Default "JLinkExe".
	Binary string

	// ProbeSerial selects the probe by USB serial number; empty uses the
	// only attached probe.
	ProbeSerial string

	// Timeout bounds one Commander run.
	Timeout time.Duration
}

// JLink drives a SEGGER J-Link probe through J-Link Commander. Session
// calls build a command script which Close runs in a single Commander
// invocation, so errors from Connect, Erase and FlashImage surface at
// Close.
type JLink struct {
	cfg    JLinkConfig
	runner Runner

	mu        sync.Mutex
	transport string
	open      bool
	script    []string
	last      process.Result
}

// NewJLink creates a J-Link driver that executes through runner.
func NewJLink(cfg JLinkConfig, runner Runner) *JLink {
	if cfg.Binary == "" {
		cfg.Binary = "JLinkExe"
	}
	return &JLink{cfg: cfg, runner: runner}
}

func (j *JLink) add(cmd string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.open {
		return ErrNotOpen
	}
	j.script = append(j.script, cmd)
	return nil
}

// SelectTransport selects the probe over USB, by serial number when one
// is configured. It must precede Open.
func (j *JLink) SelectTransport() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transport = "usb"
	if j.cfg.ProbeSerial != "" {
		j.transport = "SelectEmuBySN " + j.cfg.ProbeSerial
	}
	return nil
}

// Open starts a new command script on the selected transport.
func (j *JLink) Open(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.open {
		return ErrAlreadyOpen
	}
	if j.transport == "" {
		return fmt.Errorf("%w: no transport selected", ErrInvalidArgument)
	}
	j.open = true
	j.script = append(j.script[:0], j.transport)
	return nil
}

// SetTargetDevice names the target MCU, e.g. "EFR32FG12PXXXF1024".
func (j *JLink) SetTargetDevice(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty device name", ErrInvalidArgument)
	}
	return j.add("device " + name)
}

// CommitSelection selects the SWD target interface.
func (j *JLink) CommitSelection() error {
	return j.add("si SWD")
}

// SetClockSpeed sets the SWD clock in kHz.
func (j *JLink) SetClockSpeed(khz int) error {
	if khz <= 0 {
		return fmt.Errorf("%w: speed %d kHz", ErrInvalidArgument, khz)
	}
	return j.add(fmt.Sprintf("speed %d", khz))
}

// Connect attaches to the target.
func (j *JLink) Connect(_ context.Context) error {
	return j.add("connect")
}

// Erase erases the whole flash.
func (j *JLink) Erase(_ context.Context) error {
	return j.add("erase")
}

// FlashImage loads path at offset.
func (j *JLink) FlashImage(_ context.Context, path string, offset uint32) error {
	if path == "" {
		return fmt.Errorf("%w: empty image path", ErrInvalidArgument)
	}
	return j.add(fmt.Sprintf("loadfile %s 0x%X", path, offset))
}

// Reset resets the target.
func (j *JLink) Reset(_ context.Context) error {
	return j.add("r")
}

// Resume starts the target.
func (j *JLink) Resume(_ context.Context) error {
	return j.add("g")
}

// Close runs the collected script and ends the session. The session is
// closed even when the run fails.
func (j *JLink) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.open {
		j.mu.Unlock()
		return ErrNotOpen
	}
	script := append(append([]string(nil), j.script...), "exit")
	j.open = false
	j.script = j.script[:0]
	j.mu.Unlock()

	f, err := os.CreateTemp("", "jlink-*.jlink")
	if err != nil {
		return fmt.Errorf("creating command file: %w", err)
	}
	defer os.Remove(f.Name()) //nolint:errcheck // Temp file cleanup

	if _, err := f.WriteString(strings.Join(script, "\n") + "\n"); err != nil {
		f.Close() //nolint:errcheck // Error path
		return fmt.Errorf("writing command file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing command file: %w", err)
	}

	res, err := j.runner.Run(ctx, process.Config{
		Name:    "jlink",
		Binary:  j.cfg.Binary,
		Args:    []string{"-NoGui", "1", "-ExitOnError", "1", "-AutoConnect", "0", "-CommandFile", f.Name()},
		Timeout: j.cfg.Timeout,
	})

	j.mu.Lock()
	j.last = res
	j.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrProgrammingFailed, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: exit status %d", ErrProgrammingFailed, res.ExitCode)
	}
	if marker := findFailure(res.Output()); marker != "" {
		return fmt.Errorf("%w: %s", ErrProgrammingFailed, marker)
	}
	return nil
}

// LastResult returns the output of the most recent Commander run.
func (j *JLink) LastResult() process.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

func findFailure(output string) string {
	for _, marker := range failureMarkers {
		if strings.Contains(output, marker) {
			return marker
		}
	}
	return ""
}
