package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
)

// Fixture is a complete simulated fixture built from configuration.
type Fixture struct {
	Boards      []*Board
	Programmers []*Programmer
	Host        *Host
	Routines    *Routines
}

// New builds a simulated fixture with one board and probe per configured
// board. DUTs are present in every slot unless marked absent.
func New(cfg config.FixtureConfig) *Fixture {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock is New with an injected wall clock for the DUT RTCs.
func NewWithClock(cfg config.FixtureConfig, now func() time.Time) *Fixture {
	b := &bank{}
	f := &Fixture{Routines: &Routines{}}

	disconnected := make(map[int]bool, len(cfg.Simulation.Disconnected))
	for _, n := range cfg.Simulation.Disconnected {
		disconnected[n] = true
	}

	for _, bc := range cfg.Boards {
		brd := newBoard(bc, cfg, b, now)
		brd.unreachable = disconnected[bc.Number]
		f.Boards = append(f.Boards, brd)
		f.Programmers = append(f.Programmers, NewProgrammer(brd))
	}
	f.Host = &Host{boards: f.Boards}
	return f
}

// bank is the DUT supply switched by the power board.
type bank struct {
	mu  sync.Mutex
	on  bool
	gen int
}

func (b *bank) set(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.on && !on {
		b.gen++
	}
	b.on = on
}

func (b *bank) state() (on bool, gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on, b.gen
}

// dutState is one simulated device.
type dutState struct {
	present   bool
	ain       int
	chipID    string
	daliFail  bool
	rtcFail   bool
	accelFail bool
	radioFail bool
	flashFail bool

	rtcSet   time.Time
	rtcAt    time.Time
	rtcGen   int
	rtcReads int
}

func newDUT(board, slot int, sim config.SimulationConfig) *dutState {
	d := &dutState{
		present: true,
		ain:     sim.AINRaw,
		chipID:  fmt.Sprintf("000B57FF%04X%04X", board, slot),
	}
	for _, o := range sim.Slots {
		if o.Board != board || o.Slot != slot {
			continue
		}
		d.present = !o.Absent
		if o.AINRaw != 0 {
			d.ain = o.AINRaw
		}
		if o.ChipID != "" {
			d.chipID = o.ChipID
		}
		d.daliFail = o.DALIFail
		d.rtcFail = o.RTCFail
		d.accelFail = o.AccelFail
		d.radioFail = o.RadioFail
		d.flashFail = o.FlashFail
	}
	return d
}
