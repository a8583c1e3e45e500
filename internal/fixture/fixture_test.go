package fixture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/programmer"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// instantClock reports wall time but never waits.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestBuild_SimFullCycle(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Simulation.Slots = []config.SimSlotConfig{
		{Board: 1, Slot: 1, RTCFail: true},
		{Board: 2, Slot: 2, DALIFail: true},
		{Board: 3, Slot: 1, Absent: true},
		{Board: 4, Slot: 3, FlashFail: true},
		{Board: 5, Slot: 2, AINRaw: 69000},
	}

	a, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(a.Fixture.Stations) != 5 {
		t.Fatalf("stations = %d, want 5", len(a.Fixture.Stations))
	}

	seqCfg, err := sequencer.ConfigFrom(cfg)
	if err != nil {
		t.Fatalf("ConfigFrom() error = %v", err)
	}
	reg := dut.NewRegistry()
	seq := sequencer.New(a.Fixture, reg, a.Routines, seqCfg, sequencer.Options{Clock: instantClock{}})

	if err := seq.FullCycle(context.Background()); err != nil {
		t.Fatalf("FullCycle() error = %v", err)
	}

	failed := map[dut.Slot]bool{
		{Board: 1, Number: 1}: true,
		{Board: 2, Number: 2}: true,
		{Board: 5, Number: 2}: true,
	}
	absent := dut.Slot{Board: 3, Number: 1}

	for _, rec := range reg.Snapshot() {
		switch {
		case rec.Slot == absent:
			if rec.Testable() || rec.State != dut.StateUnknown {
				t.Errorf("%s: absent slot = %+v", rec.Slot, rec)
			}
		case failed[rec.Slot]:
			if rec.State != dut.StateFailed {
				t.Errorf("%s: state = %v, want FAILED", rec.Slot, rec.State)
			}
		default:
			if rec.State != dut.StateProgrammedOK {
				t.Errorf("%s: state = %v, want PROGRAMMED_OK (%v)", rec.Slot, rec.State, rec.Errors)
			}
		}
	}

	flashFail, _ := reg.Get(dut.Slot{Board: 4, Number: 3})
	if len(flashFail.Errors) == 0 || !strings.Contains(flashFail.Errors[0], "Cannot connect to target") {
		t.Errorf("probe failure not recorded: %v", flashFail.Errors)
	}

	if got := a.Sim.Boards[0].Completed(); len(got) != 3 {
		t.Errorf("board 1 completed slots = %v, want 3", got)
	}
	if got := a.Sim.Boards[2].Completed(); len(got) != 2 {
		t.Errorf("board 3 completed slots = %v, want 2", got)
	}
}

func TestBuild_JLinkDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Driver = "jlink"
	cfg.Fixture.Boards[0].ProbeSerial = "801000123"
	cfg.Checks.AccelerometerCommand = []string{"accel-test", "--slot", "{slot}"}
	cfg.Checks.RadioCommand = []string{"rf-test", "--channel", "{channel}"}

	a, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := a.Fixture.Stations[0].Programmer.(*programmer.JLink); !ok {
		t.Errorf("programmer = %T, want *programmer.JLink", a.Fixture.Stations[0].Programmer)
	}
	if _, ok := a.Routines.(*routine.Standard); !ok {
		t.Errorf("routines = %T, want *routine.Standard", a.Routines)
	}

	cfg.Checks.RadioCommand = nil
	a, err = Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := a.Routines.(*routine.Standard); ok {
		t.Error("incomplete commands should fall back to simulated routines")
	}
}

func TestBuild_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Driver = "serial"

	if _, err := Build(cfg, nil, nil); err == nil {
		t.Error("Build() error = nil, want unknown driver")
	}
}

func TestProbeHost_MissingBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Fixture.Driver = "jlink"
	cfg.Programmer.Binary = "/nonexistent/JLinkExe"

	a, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := a.Fixture.Host.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection() error = nil, want probe unreachable")
	}
}
