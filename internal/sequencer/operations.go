package sequencer

import (
	"context"
	"fmt"
)

// Operation slugs. Stage reports carry the slug of the stage that
// produced them.
const (
	OpFullCycle          = "full-cycle"
	OpTestConnection     = "test-connection"
	OpOpenClients        = "open-clients"
	OpDetect             = "detect"
	OpDownloadTest       = "download-test-firmware"
	OpCheckBoardCurrent  = "check-board-current"
	OpReadTemperature    = "read-temperature"
	OpPowerOn            = "power-on"
	OpPowerOff           = "power-off"
	OpReadChipIDs        = "read-chip-ids"
	OpReadRTC            = "read-rtc"
	OpTestRTC            = "test-rtc"
	OpCheckAIN           = "check-ain"
	OpTestAccelerometer  = "test-accelerometer"
	OpTestRadio          = "test-radio"
	OpTestDALI           = "test-dali"
	OpTest12V            = "test-12v"
	OpFinalize           = "finalize"
	OpDownloadProduction = "download-production-firmware"
)

// Operation is an operator-triggerable entry point.
type Operation struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`

	run func(ctx context.Context) error
}

// operations lists the menu in display order.
func (s *Sequencer) operations() []Operation {
	return []Operation{
		{Slug: OpFullCycle, Label: "Full cycle testing", run: s.FullCycle},
		{Slug: OpTestConnection, Label: "Test connection to JLink", run: s.TestConnection},
		{Slug: OpOpenClients, Label: "Establish connection to sockets", run: s.OpenClients},
		{Slug: OpDetect, Label: "Detect DUTs", run: s.Redetect},
		{Slug: OpDownloadTest, Label: "Download Railtest", run: s.DownloadTestFirmware},
		{Slug: OpCheckBoardCurrent, Label: "Check board current", run: s.CheckBoardCurrent},
		{Slug: OpReadTemperature, Label: "Read Temperature", run: s.ReadTemperature},
		{Slug: OpPowerOn, Label: "Supply power to DUTs", run: s.PowerOn},
		{Slug: OpPowerOff, Label: "Power off DUTs", run: s.PowerOff},
		{Slug: OpReadChipIDs, Label: "Read unique device identifiers (ID)", run: s.ReadChipIDs},
		{Slug: OpReadRTC, Label: "Read Real time clock (RTC) values", run: s.ReadRTC},
		{Slug: OpTestRTC, Label: "Test Real time clock (RTC) module", run: s.TestRTC},
		{Slug: OpCheckAIN, Label: "Check voltage on AIN 1 (3.3V)", run: s.CheckAINVoltage},
		{Slug: OpTestAccelerometer, Label: "Test accelerometer", run: s.TestAccelerometer},
		{Slug: OpTestRadio, Label: "Test radio interface", run: s.TestRadio},
		{Slug: OpTestDALI, Label: "Test DALI", run: s.TestDALI},
		{Slug: OpTest12V, Label: "Test 12V output", run: s.Test12VOutput},
		{Slug: OpFinalize, Label: "Check Testing Completion", run: s.Finalize},
		{Slug: OpDownloadProduction, Label: "Download Software", run: s.DownloadProductionFirmware},
	}
}

// Operations returns the operator menu in display order.
func (s *Sequencer) Operations() []Operation {
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// Lookup finds an operation by slug.
func (s *Sequencer) Lookup(slug string) (Operation, bool) {
	for _, op := range s.ops {
		if op.Slug == slug {
			return op, true
		}
	}
	return Operation{}, false
}

// Active returns the slug of the running operation, or "".
func (s *Sequencer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Run executes the named operation and waits for it.
//
// Returns:
//   - ErrUnknownOperation if slug is not registered
//   - ErrBusy if another operation is running
//   - otherwise the operation's own error
func (s *Sequencer) Run(ctx context.Context, slug string) error {
	op, err := s.acquire(slug)
	if err != nil {
		return err
	}
	defer s.release()
	return op.run(ctx)
}

// Start begins the named operation in the background. Acquisition errors
// are returned immediately; the operation's result is delivered on the
// returned channel, which is closed afterwards.
func (s *Sequencer) Start(ctx context.Context, slug string) (<-chan error, error) {
	op, err := s.acquire(slug)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer s.release()
		done <- op.run(ctx)
	}()
	return done, nil
}

func (s *Sequencer) acquire(slug string) (Operation, error) {
	op, ok := s.Lookup(slug)
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, slug)
	}
	if !s.busy.TryLock() {
		return Operation{}, fmt.Errorf("%w: %s", ErrBusy, s.Active())
	}

	s.mu.Lock()
	s.active = slug
	s.mu.Unlock()
	s.logger.Info("operation started", "operation", slug)
	return op, nil
}

func (s *Sequencer) release() {
	s.mu.Lock()
	slug := s.active
	s.active = ""
	s.mu.Unlock()
	s.busy.Unlock()
	s.logger.Info("operation finished", "operation", slug)
}
