package sequencer

import (
	"context"
	"fmt"
)

// FullCycle runs the complete production test on every slot:
//
//	test connection, open clients, detect (twice), test firmware,
//	chip IDs, DALI, RTC, AIN, accelerometer, radio, verdicts,
//	production firmware, power off
//
// Each stage completes for all slots before the next begins. Only the
// connectivity stages are fatal; check failures are recorded per slot and
// the cycle moves on. A cancelled context or an aborted programming stage
// ends the cycle early. The bank is powered off in every case once the
// fixture has been reached.
func (s *Sequencer) FullCycle(ctx context.Context) error {
	s.beginRun()

	return s.stage(ctx, OpFullCycle, "", func(ctx context.Context, _ *StageReport) error {
		if err := s.TestConnection(ctx); err != nil {
			return err
		}
		if err := s.OpenClients(ctx); err != nil {
			return err
		}

		err := s.runStages(ctx)

		offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultResponseTimeout)
		defer cancel()
		if perr := s.PowerOff(offCtx); perr != nil {
			s.logger.Warn("powering off DUTs failed", "error", perr)
		}
		return err
	})
}

func (s *Sequencer) runStages(ctx context.Context) error {
	var steps []func(context.Context) error
	for i := 0; i < s.cfg.DetectPasses; i++ {
		steps = append(steps, s.Detect)
	}
	steps = append(steps,
		s.DownloadTestFirmware,
		s.ReadChipIDs,
		s.TestDALI,
		s.TestRTC,
		s.CheckAINVoltage,
		s.TestAccelerometer,
		s.TestRadio,
		s.Finalize,
		s.DownloadProductionFirmware,
	)

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// TestConnection checks that the debug probes and boards are reachable.
func (s *Sequencer) TestConnection(ctx context.Context) error {
	return s.stage(ctx, OpTestConnection, "Testing connection to JLink...", func(ctx context.Context, _ *StageReport) error {
		if s.fixture.Host == nil {
			return nil
		}
		if err := s.fixture.Host.TestConnection(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrFixtureUnavailable, err)
		}
		return nil
	})
}

// OpenClients connects to every measuring board.
func (s *Sequencer) OpenClients(ctx context.Context) error {
	return s.stage(ctx, OpOpenClients, "Establishing connection to sockets...", func(ctx context.Context, _ *StageReport) error {
		if s.fixture.Host == nil {
			return nil
		}
		if err := s.fixture.Host.OpenClients(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrFixtureUnavailable, err)
		}
		return nil
	})
}
