package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
)

// ─── Call Log ───────────────────────────────────────────────────────────────

// callLog records calls across all fakes so tests can assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// matching returns the calls starting with prefix.
func (l *callLog) matching(prefix string) []string {
	var out []string
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

// ─── Board ──────────────────────────────────────────────────────────────────

var errNoReply = errors.New("fake: no reply")

// fakeBoard answers like a measuring board with one healthy DUT per
// configured slot.
type fakeBoard struct {
	id  int
	log *callLog

	disconnected bool
	detect       map[int]int
	detectErr    map[int]error
	ain          map[int]int
	current      int
	temp         int
	tempErr      error
	reply        func(slot int, cmd string) ([]string, error)

	mu       sync.Mutex
	timeouts []time.Duration
}

var _ board.Driver = (*fakeBoard)(nil)
var _ board.CurrentSensor = (*fakeBoard)(nil)
var _ board.TemperatureSensor = (*fakeBoard)(nil)

func newFakeBoard(id int, log *callLog) *fakeBoard {
	return &fakeBoard{
		id:        id,
		log:       log,
		detect:    map[int]int{},
		detectErr: map[int]error{},
		ain:       map[int]int{},
		current:   125,
		temp:      2048,
	}
}

func (b *fakeBoard) BoardID() int      { return b.id }
func (b *fakeBoard) IsConnected() bool { return !b.disconnected }

func (b *fakeBoard) PowerOn(_ context.Context, slot int) error {
	b.log.add("B%d.PowerOn(%d)", b.id, slot)
	return nil
}

func (b *fakeBoard) PowerOff(_ context.Context, slot int) error {
	b.log.add("B%d.PowerOff(%d)", b.id, slot)
	return nil
}

func (b *fakeBoard) SelectDebugPath(_ context.Context, slot int) error {
	b.log.add("B%d.SelectDebugPath(%d)", b.id, slot)
	return nil
}

func (b *fakeBoard) ReadAnalog(_ context.Context, slot, ch, gain int) (int, error) {
	b.log.add("B%d.ReadAnalog(%d,%d,%d)", b.id, slot, ch, gain)
	switch ch {
	case DetectChannel:
		if err := b.detectErr[slot]; err != nil {
			return 0, err
		}
		return b.detect[slot], nil
	case AINChannel:
		return b.ain[slot], nil
	}
	return 0, nil
}

func (b *fakeBoard) SendBusCommand(_ context.Context, slot int, cmd string) ([]string, error) {
	b.log.add("B%d.Send(%d,%s)", b.id, slot, cmd)
	if b.reply != nil {
		return b.reply(slot, cmd)
	}
	return defaultReply(cmd)
}

func (b *fakeBoard) SetResponseTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeouts = append(b.timeouts, d)
}

func (b *fakeBoard) DALIBusOn(context.Context) error {
	b.log.add("B%d.DALIBusOn", b.id)
	return nil
}

func (b *fakeBoard) DALIBusOff(context.Context) error {
	b.log.add("B%d.DALIBusOff", b.id)
	return nil
}

func (b *fakeBoard) MarkSlotTestComplete(_ context.Context, slot int) error {
	b.log.add("B%d.Complete(%d)", b.id, slot)
	return nil
}

func (b *fakeBoard) ReadSupplyCurrent(context.Context) (int, error) {
	b.log.add("B%d.ReadSupplyCurrent", b.id)
	return b.current, nil
}

func (b *fakeBoard) ReadTemperature(context.Context) (int, error) {
	b.log.add("B%d.ReadTemperature", b.id)
	return b.temp, b.tempErr
}

// testYear is the two-digit year of fakeClock's time.
const testYear = "26"

func defaultReply(cmd string) ([]string, error) {
	switch {
	case cmd == "rtc":
		return rtcReply(testYear), nil
	case cmd == daliQueryCommand:
		return []string{"{{(dali)}{error:0}{response:0x00}}"}, nil
	case strings.HasPrefix(cmd, "srtc"), cmd == daliClearCommand, cmd == output12VCommand:
		return []string{"ok"}, nil
	}
	return nil, errNoReply
}

func rtcReply(yy string) []string {
	return []string{"{{(rtc)}", "{year:" + yy + "}", "{month:3}", "{day:5}", "{hour:7}", "{min:8}", "{sec:12}}"}
}

// ─── Programmer ─────────────────────────────────────────────────────────────

type fakeProgrammer struct {
	board int
	log   *callLog

	// failOn names a method that returns an error.
	failOn string
}

func (p *fakeProgrammer) call(name string) error {
	p.log.add("P%d.%s", p.board, name)
	if p.failOn == name {
		return fmt.Errorf("fake %s failed", name)
	}
	return nil
}

func (p *fakeProgrammer) SelectTransport() error            { return p.call("SelectTransport") }
func (p *fakeProgrammer) Open(context.Context) error        { return p.call("Open") }
func (p *fakeProgrammer) SetTargetDevice(name string) error { return p.call("SetTargetDevice " + name) }
func (p *fakeProgrammer) CommitSelection() error            { return p.call("CommitSelection") }
func (p *fakeProgrammer) SetClockSpeed(khz int) error       { return p.call(fmt.Sprintf("SetClockSpeed %d", khz)) }
func (p *fakeProgrammer) Connect(context.Context) error     { return p.call("Connect") }
func (p *fakeProgrammer) Erase(context.Context) error       { return p.call("Erase") }
func (p *fakeProgrammer) Reset(context.Context) error       { return p.call("Reset") }
func (p *fakeProgrammer) Resume(context.Context) error      { return p.call("Resume") }
func (p *fakeProgrammer) Close(context.Context) error       { return p.call("Close") }
func (p *fakeProgrammer) FlashImage(_ context.Context, path string, offset uint32) error {
	return p.call(fmt.Sprintf("FlashImage %s 0x%X", path, offset))
}

// ─── Host ───────────────────────────────────────────────────────────────────

type fakeHost struct {
	log     *callLog
	connErr error
	openErr error
}

func (h *fakeHost) TestConnection(context.Context) error {
	h.log.add("Host.TestConnection")
	return h.connErr
}

func (h *fakeHost) OpenClients(context.Context) error {
	h.log.add("Host.OpenClients")
	return h.openErr
}

// ─── Routines ───────────────────────────────────────────────────────────────

type fakeRoutines struct {
	log      *callLog
	chipIDs  map[dut.Slot]string
	accelErr map[dut.Slot]error
	radioErr map[dut.Slot]error

	// block, when set, holds TestAccelerometer until closed.
	block chan struct{}
}

func newFakeRoutines(log *callLog) *fakeRoutines {
	return &fakeRoutines{
		log:      log,
		chipIDs:  map[dut.Slot]string{},
		accelErr: map[dut.Slot]error{},
		radioErr: map[dut.Slot]error{},
	}
}

var _ routine.Routines = (*fakeRoutines)(nil)

func (r *fakeRoutines) ReadChipID(_ context.Context, b board.Driver, slot int) (string, error) {
	r.log.add("R.ReadChipID(%d,%d)", b.BoardID(), slot)
	id, ok := r.chipIDs[dut.Slot{Board: b.BoardID(), Number: slot}]
	if !ok {
		return "", routine.ErrBadResponse
	}
	return id, nil
}

func (r *fakeRoutines) TestAccelerometer(ctx context.Context, b board.Driver, slot int) error {
	r.log.add("R.TestAccelerometer(%d,%d)", b.BoardID(), slot)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.accelErr[dut.Slot{Board: b.BoardID(), Number: slot}]
}

func (r *fakeRoutines) TestRadio(_ context.Context, b board.Driver, slot int, p routine.RadioParams) error {
	r.log.add("R.TestRadio(%d,%d,%s)", b.BoardID(), slot, p.ModuleID)
	return r.radioErr[dut.Slot{Board: b.BoardID(), Number: slot}]
}

// ─── Clock ──────────────────────────────────────────────────────────────────

type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 5, 7, 8, 9, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep()
	}
	return ctx.Err()
}

// ─── Observer ───────────────────────────────────────────────────────────────

type recordingObserver struct {
	mu        sync.Mutex
	runs      []string
	progress  []string
	readings  []string
	completed []dut.Record
	stages    []StageReport
}

func (o *recordingObserver) RunStarted(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, id)
}

func (o *recordingObserver) Progress(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, msg)
}

func (o *recordingObserver) Measurement(slot dut.Slot, check string, raw int, pass bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readings = append(o.readings, fmt.Sprintf("%s %s %d %t", slot, check, raw, pass))
}

func (o *recordingObserver) SlotCompleted(rec dut.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, rec)
}

func (o *recordingObserver) StageFinished(r StageReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, r)
}

func (o *recordingObserver) stageNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.stages))
	for i, r := range o.stages {
		out[i] = r.Stage
	}
	return out
}

// ─── Harness ────────────────────────────────────────────────────────────────

type harness struct {
	log      *callLog
	boards   []*fakeBoard
	progs    []*fakeProgrammer
	host     *fakeHost
	routines *fakeRoutines
	clock    *fakeClock
	observer *recordingObserver
	registry *dut.Registry
	fixture  *Fixture
	cfg      Config
}

// newHarness builds a fixture with one station per board id. The last id
// is the power board. Every slot reads as present with healthy values and
// a chip ID until a test changes it.
func newHarness(slots int, ids ...int) *harness {
	h := &harness{
		log:      &callLog{},
		clock:    newFakeClock(),
		observer: &recordingObserver{},
		registry: dut.NewRegistry(),
		cfg: Config{
			TargetDevice: "EFR32FG12PXXXF1024",
			SpeedKHz:     5000,
			Radio:        routine.RadioParams{ModuleID: "A5XK3RJTA", Channel: 19, Power: 80, RSSIMin: -60, RSSIMax: 60, Samples: 7},
		},
	}
	h.host = &fakeHost{log: h.log}
	h.routines = newFakeRoutines(h.log)
	h.fixture = &Fixture{SlotsPerBoard: slots, PowerBoardID: ids[len(ids)-1], Host: h.host}

	for _, id := range ids {
		b := newFakeBoard(id, h.log)
		p := &fakeProgrammer{board: id, log: h.log}
		for n := 1; n <= slots; n++ {
			b.detect[n] = 48000
			b.ain[n] = 71000
			h.routines.chipIDs[dut.Slot{Board: id, Number: n}] = fmt.Sprintf("CHIP%d%d", id, n)
		}
		h.boards = append(h.boards, b)
		h.progs = append(h.progs, p)
		h.fixture.Stations = append(h.fixture.Stations, Station{Number: id, Board: b, Programmer: p})
	}
	return h
}

func (h *harness) sequencer() *Sequencer {
	return New(h.fixture, h.registry, h.routines, h.cfg, Options{
		Clock:    h.clock,
		Observer: h.observer,
	})
}

func (h *harness) record(board, slot int) dut.Record {
	rec, err := h.registry.Get(dut.Slot{Board: board, Number: slot})
	if err != nil {
		panic(err)
	}
	return rec
}

// markTestable classifies every slot as present without running detection.
func (h *harness) markTestable() {
	for _, slot := range h.fixture.Slots() {
		if err := h.registry.Classify(slot, true); err != nil {
			panic(err)
		}
	}
}
