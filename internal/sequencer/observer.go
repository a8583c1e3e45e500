package sequencer

import (
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// Observer receives progress from a running operation. Calls are made
// synchronously on the sequencer goroutine, so implementations must not
// block.
type Observer interface {
	// RunStarted announces a new run id. Every later event belongs to
	// that run until the next RunStarted.
	RunStarted(runID string)

	// Progress carries the single-line status shown to the operator.
	Progress(msg string)

	// Measurement reports a raw reading and its verdict. Board-level
	// readings use slot number 0.
	Measurement(slot dut.Slot, check string, raw int, pass bool)

	// SlotCompleted is called once per slot and run when its verdict is
	// final.
	SlotCompleted(rec dut.Record)

	// StageFinished is called after every stage, including stages run
	// on their own.
	StageFinished(report StageReport)
}

// NopObserver ignores all events. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RunStarted(string)                       {}
func (NopObserver) Progress(string)                         {}
func (NopObserver) Measurement(dut.Slot, string, int, bool) {}
func (NopObserver) SlotCompleted(dut.Record)                {}
func (NopObserver) StageFinished(StageReport)               {}

// Observers fans events out to each element in order.
type Observers []Observer

func (o Observers) RunStarted(runID string) {
	for _, ob := range o {
		ob.RunStarted(runID)
	}
}

func (o Observers) Progress(msg string) {
	for _, ob := range o {
		ob.Progress(msg)
	}
}

func (o Observers) Measurement(slot dut.Slot, check string, raw int, pass bool) {
	for _, ob := range o {
		ob.Measurement(slot, check, raw, pass)
	}
}

func (o Observers) SlotCompleted(rec dut.Record) {
	for _, ob := range o {
		ob.SlotCompleted(*rec.DeepCopy())
	}
}

func (o Observers) StageFinished(report StageReport) {
	for _, ob := range o {
		ob.StageFinished(report)
	}
}

// SlotResult is the outcome of one slot within a stage.
type SlotResult struct {
	Slot dut.Slot
	Err  error
}

// OK reports whether the slot step succeeded.
func (r SlotResult) OK() bool { return r.Err == nil }

// StageReport describes one finished stage.
type StageReport struct {
	Stage    string
	RunID    string
	Started  time.Time
	Duration time.Duration
	Results  []SlotResult
	Err      error
}

// Failures returns the number of failed slot results.
func (r StageReport) Failures() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}
