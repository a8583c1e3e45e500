package sequencer

import (
	"context"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// Presence detection reads the DUT supply sense line.
const (
	DetectChannel = 4
	DetectGain    = 0

	// DetectTimeout is the board response timeout while probing an
	// empty slot, which would otherwise stall for the full default.
	DetectTimeout = 300 * time.Millisecond

	// DefaultResponseTimeout is restored after each probe.
	DefaultResponseTimeout = 10 * time.Second

	detectLow  = 45000
	detectHigh = 52000
)

// ClassifyPresence reports whether a detection reading indicates a seated
// DUT. Both bounds are exclusive.
func ClassifyPresence(raw int) bool {
	return raw > detectLow && raw < detectHigh
}

// Detect powers the bank and classifies every slot on every connected
// board as present or absent. Slots on disconnected boards are left
// untouched.
func (s *Sequencer) Detect(ctx context.Context) error {
	return s.stage(ctx, OpDetect, "Detecting DUTs in the testing fixture...", s.detect)
}

// Redetect starts a new run and then detects. Completion marks are
// cleared so freshly seated DUTs can be reported complete again, while
// verification flags of earlier stages are kept.
func (s *Sequencer) Redetect(ctx context.Context) error {
	s.registry.ResetCompletion()
	s.newRun()
	return s.Detect(ctx)
}

func (s *Sequencer) detect(ctx context.Context, rep *StageReport) error {
	if err := s.powerBank(ctx, true); err != nil {
		s.logger.Warn("detection continues without bank power", "error", err)
	}

	for n := 1; n <= s.fixture.SlotsPerBoard; n++ {
		for _, st := range s.fixture.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !st.Board.IsConnected() {
				continue
			}

			slot := dut.Slot{Board: st.Number, Number: n}
			present := s.probe(ctx, st, slot)
			if err := s.registry.Classify(slot, present); err != nil {
				rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
				s.logger.Error("classifying slot failed", "dut", slot.String(), "error", err)
				continue
			}
			rep.Results = append(rep.Results, SlotResult{Slot: slot})

			if present {
				s.success("device detected", "dut", slot.String())
			}
		}
	}
	return nil
}

func (s *Sequencer) probe(ctx context.Context, st Station, slot dut.Slot) bool {
	st.Board.SetResponseTimeout(DetectTimeout)
	defer st.Board.SetResponseTimeout(DefaultResponseTimeout)

	raw, err := st.Board.ReadAnalog(ctx, slot.Number, DetectChannel, DetectGain)
	if err != nil {
		s.logger.Debug("no response from slot", "dut", slot.String(), "error", err)
		return false
	}

	present := ClassifyPresence(raw)
	s.observer.Measurement(slot, "detect", raw, present)
	return present
}
