package sequencer

import (
	"context"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// Finalize turns the check flags of every testable slot into a verdict:
// PROGRAMMED_OK when the chip ID is known and all five checks passed,
// FAILED otherwise. The board is told the slot is complete once per run.
//
// Finalize only reads flags and chip IDs, so repeating it yields the same
// states.
func (s *Sequencer) Finalize(ctx context.Context) error {
	return s.stage(ctx, OpFinalize, "", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			rec, err := s.registry.Get(slot)
			if err != nil {
				rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
				return nil
			}

			state := dut.StateFailed
			if rec.Passed() {
				state = dut.StateProgrammedOK
			}
			if err := s.registry.SetState(slot, state); err != nil {
				s.logger.Error("registry update failed", "dut", slot.String(), "error", err)
			}

			if !s.registry.MarkCompleted(slot) {
				return nil
			}

			if err := st.Board.MarkSlotTestComplete(ctx, slot.Number); err != nil {
				s.logger.Warn("marking slot complete failed", "dut", slot.String(), "error", err)
			}
			if state == dut.StateProgrammedOK {
				s.success("DUT passed", "dut", slot.String(), "chip_id", rec.ChipID)
				rep.Results = append(rep.Results, SlotResult{Slot: slot})
			} else {
				s.logger.Error("DUT failed", "dut", slot.String(), "chip_id", rec.ChipID, "errors", len(rec.Errors))
				rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: errSlotFailed})
			}

			final, err := s.registry.Get(slot)
			if err == nil {
				s.observer.SlotCompleted(final)
			}
			return nil
		})
	})
}
