package sim

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
)

// rtcEpoch is where a DUT clock starts when it was never set or lost
// its time.
var rtcEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Board simulates one measuring board and the DUTs seated on it.
type Board struct {
	number      int
	serial      string
	slots       int
	powerBoard  bool
	unreachable bool
	sim         config.SimulationConfig
	bank        *bank
	now         func() time.Time

	mu        sync.Mutex
	connected bool
	timeout   time.Duration
	selected  int
	daliOn    bool
	slotPower map[int]bool
	duts      map[int]*dutState
	completed []int
	calls     []string
}

var (
	_ board.Driver        = (*Board)(nil)
	_ board.CurrentSensor     = (*Board)(nil)
	_ board.TemperatureSensor = (*Board)(nil)
)

func newBoard(bc config.BoardConfig, cfg config.FixtureConfig, b *bank, now func() time.Time) *Board {
	brd := &Board{
		number:     bc.Number,
		serial:     bc.Serial,
		slots:      cfg.SlotsPerBoard,
		powerBoard: bc.Number == cfg.PowerBoardID,
		sim:        cfg.Simulation,
		bank:       b,
		now:        now,
		timeout:    10 * time.Second,
		slotPower:  make(map[int]bool),
		duts:       make(map[int]*dutState),
	}
	for n := 1; n <= cfg.SlotsPerBoard; n++ {
		brd.duts[n] = newDUT(bc.Number, n, cfg.Simulation)
	}
	return brd
}

// Serial returns the board's serial number.
func (b *Board) Serial() string { return b.serial }

// BoardID implements board.Driver.
func (b *Board) BoardID() int { return b.number }

// IsConnected implements board.Driver.
func (b *Board) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Calls returns the driver calls made so far.
func (b *Board) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Completed returns the slots marked complete, in call order.
func (b *Board) Completed() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.completed...)
}

// connect is called by Host.OpenClients.
func (b *Board) connect() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = !b.unreachable
	return b.connected
}

// begin records a call and checks the link. It returns with b.mu held on
// success.
func (b *Board) begin(ctx context.Context, format string, args ...any) error {
	if b.sim.Latency > 0 {
		t := time.NewTimer(b.sim.Latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	if !b.connected {
		b.mu.Unlock()
		return fmt.Errorf("%w: board %d", board.ErrNotConnected, b.number)
	}
	return nil
}

func (b *Board) checkSlot(slot int) error {
	if slot < 1 || slot > b.slots {
		return fmt.Errorf("%w: %d", board.ErrInvalidSlot, slot)
	}
	return nil
}

// dut returns the powered, seated DUT in slot. Callers hold b.mu.
func (b *Board) dut(slot int) (*dutState, error) {
	if err := b.checkSlot(slot); err != nil {
		return nil, err
	}
	d := b.duts[slot]
	on, _ := b.bank.state()
	if !d.present || !(on || b.slotPower[slot]) {
		return nil, fmt.Errorf("%w: board %d slot %d", board.ErrNoResponse, b.number, slot)
	}
	return d, nil
}

// PowerOn implements board.Driver. Slot 1 of the power board switches the
// whole bank.
func (b *Board) PowerOn(ctx context.Context, slot int) error {
	return b.power(ctx, slot, true)
}

// PowerOff implements board.Driver.
func (b *Board) PowerOff(ctx context.Context, slot int) error {
	return b.power(ctx, slot, false)
}

func (b *Board) power(ctx context.Context, slot int, on bool) error {
	if err := b.begin(ctx, "power(%d,%t)", slot, on); err != nil {
		return err
	}
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	b.slotPower[slot] = on
	if b.powerBoard && slot == 1 {
		b.bank.set(on)
	}
	return nil
}

// SelectDebugPath implements board.Driver.
func (b *Board) SelectDebugPath(ctx context.Context, slot int) error {
	if err := b.begin(ctx, "swd(%d)", slot); err != nil {
		return err
	}
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	b.selected = slot
	return nil
}

// ReadAnalog implements board.Driver. Channel 4 reads the DUT supply
// sense, channel 1 the DUT's 3.3 V rail.
func (b *Board) ReadAnalog(ctx context.Context, slot, ch, _ int) (int, error) {
	if err := b.begin(ctx, "ain(%d,%d)", slot, ch); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()

	d, err := b.dut(slot)
	if err != nil {
		return 0, err
	}
	switch ch {
	case 4:
		return b.sim.DetectRaw, nil
	case 1:
		return d.ain, nil
	default:
		return 0, nil
	}
}

// SendBusCommand implements board.Driver with a subset of the railtest
// shell.
func (b *Board) SendBusCommand(ctx context.Context, slot int, command string) ([]string, error) {
	if err := b.begin(ctx, "cmd(%d,%s)", slot, command); err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	d, err := b.dut(slot)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return []string{"{{(none)}{error:unknown command}}"}, nil
	}

	switch fields[0] {
	case "srtc":
		return b.setRTC(d, fields[1:]), nil
	case "rtc":
		return b.readRTC(d), nil
	case "dali":
		return b.dali(d, fields[1:]), nil
	case "getmemw":
		return chipIDReply(d.chipID), nil
	case "12vout":
		return []string{"{{(12vout)}{status:ok}}"}, nil
	default:
		return []string{fmt.Sprintf("{{(%s)}{error:unknown command}}", fields[0])}, nil
	}
}

func (b *Board) setRTC(d *dutState, args []string) []string {
	if len(args) != 6 {
		return []string{"{{(srtc)}{error:bad arguments}}"}
	}
	v := make([]int, 6)
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return []string{"{{(srtc)}{error:bad arguments}}"}
		}
		v[i] = n
	}

	_, gen := b.bank.state()
	d.rtcSet = time.Date(2000+v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC)
	d.rtcAt = b.now()
	d.rtcGen = gen
	return []string{"{{(srtc)}{status:ok}}"}
}

func (b *Board) readRTC(d *dutState) []string {
	d.rtcReads++
	if b.sim.RTCShortFirst && d.rtcReads == 1 {
		return []string{"{{(rtc)}"}
	}

	t := rtcEpoch
	_, gen := b.bank.state()
	if !d.rtcSet.IsZero() && !(d.rtcFail && gen != d.rtcGen) {
		t = d.rtcSet.Add(b.now().Sub(d.rtcAt))
	}
	return []string{
		"{{(rtc)}",
		fmt.Sprintf("{year:%02d}", t.Year()%100),
		fmt.Sprintf("{month:%d}", int(t.Month())),
		fmt.Sprintf("{day:%d}", t.Day()),
		fmt.Sprintf("{hour:%d}", t.Hour()),
		fmt.Sprintf("{min:%d}", t.Minute()),
		fmt.Sprintf("{sec:%d}}", t.Second()),
	}
}

func (b *Board) dali(d *dutState, args []string) []string {
	if len(args) == 0 {
		return []string{"{{(dali)}{error:bad arguments}}"}
	}
	switch {
	case !b.daliOn:
		return []string{"{{(dali)}{error:2}{response:bus off}}"}
	case strings.EqualFold(args[0], "0xFE80"):
		return []string{"{{(dali)}{error:0}}"}
	case d.daliFail:
		return []string{"{{(dali)}{error:1}{response:0x00}}"}
	default:
		return []string{"{{(dali)}{error:0}{response:0x00}}"}
	}
}

// chipIDReply formats a 16 hex digit id the way getmemw prints the two
// words, low word first.
func chipIDReply(id string) []string {
	id = strings.ToUpper(id)
	if len(id) < 16 {
		id = strings.Repeat("0", 16-len(id)) + id
	}
	hi, lo := id[len(id)-16:len(id)-8], id[len(id)-8:]
	return []string{
		"{{(getmemw)}{address:0x0fe081f0}}",
		"{{0x" + lo + "}}",
		"{{0x" + hi + "}}",
	}
}

// SetResponseTimeout implements board.Driver.
func (b *Board) SetResponseTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// ResponseTimeout returns the last timeout set.
func (b *Board) ResponseTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeout
}

// DALIBusOn implements board.Driver.
func (b *Board) DALIBusOn(ctx context.Context) error {
	if err := b.begin(ctx, "daliOn"); err != nil {
		return err
	}
	defer b.mu.Unlock()
	b.daliOn = true
	return nil
}

// DALIBusOff implements board.Driver.
func (b *Board) DALIBusOff(ctx context.Context) error {
	if err := b.begin(ctx, "daliOff"); err != nil {
		return err
	}
	defer b.mu.Unlock()
	b.daliOn = false
	return nil
}

// MarkSlotTestComplete implements board.Driver.
func (b *Board) MarkSlotTestComplete(ctx context.Context, slot int) error {
	if err := b.begin(ctx, "complete(%d)", slot); err != nil {
		return err
	}
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	b.completed = append(b.completed, slot)
	return nil
}

// ReadSupplyCurrent implements board.CurrentSensor.
func (b *Board) ReadSupplyCurrent(ctx context.Context) (int, error) {
	if err := b.begin(ctx, "csa"); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	return b.sim.CurrentRaw, nil
}

// ReadTemperature implements board.TemperatureSensor.
func (b *Board) ReadTemperature(ctx context.Context) (int, error) {
	if err := b.begin(ctx, "temp"); err != nil {
		return 0, err
	}
	defer b.mu.Unlock()
	return b.sim.TempRaw, nil
}

// selectedDUT returns the DUT behind the debug multiplexer.
func (b *Board) selectedDUT() (*dutState, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected == 0 {
		return nil, 0, fmt.Errorf("%w: no debug path selected on board %d", board.ErrNoResponse, b.number)
	}
	d, err := b.dut(b.selected)
	return d, b.selected, err
}

// slotDUT returns the DUT in slot for the routines.
func (b *Board) slotDUT(slot int) (*dutState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, fmt.Errorf("%w: board %d", board.ErrNotConnected, b.number)
	}
	return b.dut(slot)
}
