package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// DownloadTestFirmware programs the test firmware into every testable
// slot.
func (s *Sequencer) DownloadTestFirmware(ctx context.Context) error {
	return s.stage(ctx, OpDownloadTest, "Downloading the Railtest...", func(ctx context.Context, rep *StageReport) error {
		return s.download(ctx, rep, s.cfg.TestImage, false)
	})
}

// DownloadProductionFirmware programs the production firmware into
// testable slots whose verdict is PROGRAMMED_OK. Failed slots never
// receive it.
func (s *Sequencer) DownloadProductionFirmware(ctx context.Context) error {
	return s.stage(ctx, OpDownloadProduction, "Downloading the software...", func(ctx context.Context, rep *StageReport) error {
		return s.download(ctx, rep, s.cfg.ProductionImage, true)
	})
}

func (s *Sequencer) download(ctx context.Context, rep *StageReport, image string, verifiedOnly bool) error {
	return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
		if verifiedOnly {
			rec, err := s.registry.Get(slot)
			if err != nil || rec.State != dut.StateProgrammedOK {
				return nil
			}
			s.logger.Info("downloading software", "dut", slot.String())
		}

		err := s.programSlot(ctx, st, slot.Number, image)
		rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
		if err == nil {
			s.logger.Debug("slot programmed", "dut", slot.String(), "mode", string(s.cfg.FlashMode))
			return nil
		}

		s.recordError(slot, fmt.Sprintf("%s: %v", rep.Stage, err))
		s.logger.Error("programming failed", "dut", slot.String(), "error", err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if s.cfg.ErrorPolicy == AbortOnError {
			return fmt.Errorf("%w: %s at %s: %w", ErrStageAborted, rep.Stage, slot, err)
		}
		return nil
	})
}

// programSlot runs one probe session against the slot. The session is
// always closed once opened; a close failure is reported when nothing
// failed before it.
func (s *Sequencer) programSlot(ctx context.Context, st Station, slot int, image string) (err error) {
	p := st.Programmer
	if p == nil {
		return fmt.Errorf("%w: board %d", ErrNoProgrammer, st.Number)
	}

	if err := st.Board.SelectDebugPath(ctx, slot); err != nil {
		return fmt.Errorf("selecting debug path: %w", err)
	}
	if err := p.SelectTransport(); err != nil {
		return fmt.Errorf("selecting transport: %w", err)
	}
	if err := p.Open(ctx); err != nil {
		return fmt.Errorf("opening probe: %w", err)
	}
	defer func() {
		if cerr := p.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("closing probe: %w", cerr)
		}
	}()

	if err := p.SetTargetDevice(s.cfg.TargetDevice); err != nil {
		return fmt.Errorf("setting target device: %w", err)
	}
	if err := p.CommitSelection(); err != nil {
		return fmt.Errorf("selecting target interface: %w", err)
	}
	if err := p.SetClockSpeed(s.cfg.SpeedKHz); err != nil {
		return fmt.Errorf("setting clock speed: %w", err)
	}
	if err := p.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to target: %w", err)
	}

	if s.cfg.FlashMode == FlashLive {
		if err := p.Erase(ctx); err != nil {
			return fmt.Errorf("erasing: %w", err)
		}
		if err := p.FlashImage(ctx, image, s.cfg.ImageOffset); err != nil {
			return fmt.Errorf("flashing %s: %w", image, err)
		}
	}

	if err := p.Reset(ctx); err != nil {
		return fmt.Errorf("resetting target: %w", err)
	}
	if err := p.Resume(ctx); err != nil {
		return fmt.Errorf("resuming target: %w", err)
	}
	return nil
}
