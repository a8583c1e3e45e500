package sequencer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

// Check parameters.
const (
	AINChannel = 1
	ainLow     = 70000
	ainHigh    = 72000

	supplyCurrentLow  = 110
	supplyCurrentHigh = 140

	// rtcMinTokens is the shortest complete reply to the rtc command.
	rtcMinTokens = 7

	daliClearCommand = "dali 0xFE80 16 0 0"
	daliQueryCommand = "dali 0xFF90 16 0 1000000"
	daliPassMarker   = "error:0"

	output12VCommand = "12vout 0"
)

// AINInRange reports whether an AIN1 reading is a healthy 3.3 V rail.
func AINInRange(raw int) bool {
	return raw > ainLow && raw < ainHigh
}

// SupplyCurrentInRange reports whether a board's supply current reading
// is within limits.
func SupplyCurrentInRange(raw int) bool {
	return raw > supplyCurrentLow && raw < supplyCurrentHigh
}

// RTCSetCommand builds the railtest command setting the DUT clock to t in
// UTC: "srtc YY M D H Min S" with a two-digit year and calendar month.
func RTCSetCommand(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("srtc %02d %d %d %d %d %d",
		t.Year()%100, int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// CheckAINVoltage verifies the 3.3 V rail on AIN1 of every testable slot.
func (s *Sequencer) CheckAINVoltage(ctx context.Context) error {
	return s.stage(ctx, OpCheckAIN, "Checking voltage on AIN1...", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			raw, err := st.Board.ReadAnalog(ctx, slot.Number, AINChannel, 0)
			if err != nil {
				s.setFlag(slot, dut.FlagVoltage, false)
				s.recordError(slot, fmt.Sprintf("AIN1 read failed: %v", err))
				s.logger.Error("reading AIN1 failed", "dut", slot.String(), "error", err)
				rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
				return nil
			}

			pass := AINInRange(raw)
			s.observer.Measurement(slot, "ain1", raw, pass)
			s.setFlag(slot, dut.FlagVoltage, pass)
			if pass {
				s.success("voltage on AIN1 checked", "dut", slot.String())
				rep.Results = append(rep.Results, SlotResult{Slot: slot})
				return nil
			}

			s.recordError(slot, strconv.Itoa(raw))
			s.logger.Debug("AIN1 value out of range", "dut", slot.String(), "raw", raw)
			s.logger.Error("wrong voltage on AIN1", "dut", slot.String())
			rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: fmt.Errorf("AIN1 value %d out of range", raw)})
			return nil
		})
	})
}

// TestRTC sets every DUT clock to the current UTC time, power-cycles the
// bank and reads the clocks back. A DUT passes when its clock still
// reports the current two-digit year.
func (s *Sequencer) TestRTC(ctx context.Context) error {
	return s.stage(ctx, OpTestRTC, "Testing RTC...", s.testRTC)
}

func (s *Sequencer) testRTC(ctx context.Context, rep *StageReport) error {
	now := s.clock.Now().UTC()
	set := RTCSetCommand(now)
	year := fmt.Sprintf("year:%02d", now.Year()%100)

	err := s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
		if _, err := st.Board.SendBusCommand(ctx, slot.Number, set); err != nil {
			s.logger.Debug("setting RTC failed", "dut", slot.String(), "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.powerBank(ctx, false); err != nil {
		s.logger.Warn("RTC power cycle: power off failed", "error", err)
	}
	if err := s.clock.Sleep(ctx, PowerOffDwell); err != nil {
		return err
	}
	if err := s.powerBank(ctx, true); err != nil {
		s.logger.Warn("RTC power cycle: power on failed", "error", err)
	}
	if err := s.clock.Sleep(ctx, BankSettleTime); err != nil {
		return err
	}

	return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
		resp, err := st.Board.SendBusCommand(ctx, slot.Number, "rtc")
		if err != nil || len(resp) < rtcMinTokens {
			resp, err = st.Board.SendBusCommand(ctx, slot.Number, "rtc")
		}

		pass := err == nil && strings.Contains(strings.Join(resp, " "), year)
		s.setFlag(slot, dut.FlagRTC, pass)
		if pass {
			s.success("RTC module tested", "dut", slot.String())
			rep.Results = append(rep.Results, SlotResult{Slot: slot})
			return nil
		}

		var tail []string
		if len(resp) > rtcMinTokens {
			tail = resp[rtcMinTokens:]
		}
		s.logger.Error("RTC module test failed", "dut", slot.String())
		s.logger.Debug("RTC value", "dut", slot.String(), "value", strings.Join(tail, " "), "error", err)
		if err == nil {
			err = fmt.Errorf("RTC reply lacks %s", year)
		}
		rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
		return nil
	})
}

// TestDALI checks the DALI interface of every testable slot. The DALI bus
// is switched off on every board afterwards, also when the stage is
// cancelled.
func (s *Sequencer) TestDALI(ctx context.Context) error {
	return s.stage(ctx, OpTestDALI, "Testing DALI interface...", s.testDALI)
}

func (s *Sequencer) testDALI(ctx context.Context, rep *StageReport) error {
	for _, st := range s.fixture.Stations {
		if err := st.Board.DALIBusOn(ctx); err != nil {
			s.logger.Warn("enabling DALI bus failed", "board", st.Number, "error", err)
		}
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultResponseTimeout)
		defer cancel()
		for _, st := range s.fixture.Stations {
			if err := st.Board.DALIBusOff(offCtx); err != nil {
				s.logger.Warn("disabling DALI bus failed", "board", st.Number, "error", err)
			}
		}
	}()

	return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
		if err := st.Board.SelectDebugPath(ctx, slot.Number); err != nil {
			s.logger.Warn("selecting debug path failed", "dut", slot.String(), "error", err)
		}
		if err := st.Board.PowerOn(ctx, slot.Number); err != nil {
			s.logger.Warn("powering slot failed", "dut", slot.String(), "error", err)
		}
		if err := s.clock.Sleep(ctx, DUTSettleTime); err != nil {
			return err
		}

		s.daliClear(ctx, st.Board, slot)
		resp, err := st.Board.SendBusCommand(ctx, slot.Number, daliQueryCommand)
		reply := strings.Join(resp, " ")
		if err != nil && reply == "" {
			reply = err.Error()
		}

		pass := err == nil && strings.Contains(reply, daliPassMarker)
		s.setFlag(slot, dut.FlagDALI, pass)
		if pass {
			s.success("DALI interface tested", "dut", slot.String())
			rep.Results = append(rep.Results, SlotResult{Slot: slot})
		} else {
			s.recordError(slot, reply)
			s.logger.Error("DALI test failed", "dut", slot.String())
			s.logger.Debug("DALI failure", "dut", slot.String(), "reply", reply)
			rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: fmt.Errorf("DALI reply %q", reply)})
		}

		s.daliClear(ctx, st.Board, slot)
		return nil
	})
}

func (s *Sequencer) daliClear(ctx context.Context, b board.Driver, slot dut.Slot) {
	if _, err := b.SendBusCommand(ctx, slot.Number, daliClearCommand); err != nil {
		s.logger.Debug("clearing DALI status failed", "dut", slot.String(), "error", err)
	}
}

// Test12VOutput exercises the 12 V output when enabled in the
// configuration. It never changes a verdict flag.
func (s *Sequencer) Test12VOutput(ctx context.Context) error {
	return s.stage(ctx, OpTest12V, "Testing 12V output...", func(ctx context.Context, rep *StageReport) error {
		if !s.cfg.Output12VEnabled {
			s.logger.Debug("12V output test disabled")
			return nil
		}
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			_, err := st.Board.SendBusCommand(ctx, slot.Number, output12VCommand)
			if err != nil {
				s.logger.Warn("12V output command failed", "dut", slot.String(), "error", err)
			}
			rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
			return nil
		})
	})
}

// ReadChipIDs reads the unique identifier of every testable slot.
func (s *Sequencer) ReadChipIDs(ctx context.Context) error {
	return s.stage(ctx, OpReadChipIDs, "Reading unique device identifiers...", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			id, err := s.routines.ReadChipID(ctx, st.Board, slot.Number)
			rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
			if err != nil {
				s.recordError(slot, fmt.Sprintf("chip id: %v", err))
				s.logger.Error("reading chip id failed", "dut", slot.String(), "error", err)
				return nil
			}
			if err := s.registry.SetChipID(slot, id); err != nil {
				s.logger.Error("registry update failed", "dut", slot.String(), "error", err)
			}
			s.success("chip id read", "dut", slot.String(), "chip_id", id)
			return nil
		})
	})
}

// TestAccelerometer runs the accelerometer routine on every testable slot.
func (s *Sequencer) TestAccelerometer(ctx context.Context) error {
	return s.stage(ctx, OpTestAccelerometer, "Testing accelerometer...", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			err := s.routines.TestAccelerometer(ctx, st.Board, slot.Number)
			s.routineVerdict(rep, slot, dut.FlagAccel, "accelerometer", err)
			return nil
		})
	})
}

// TestRadio runs the radio routine on every testable slot.
func (s *Sequencer) TestRadio(ctx context.Context) error {
	return s.stage(ctx, OpTestRadio, "Testing radio interface...", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			err := s.routines.TestRadio(ctx, st.Board, slot.Number, s.cfg.Radio)
			s.routineVerdict(rep, slot, dut.FlagRadio, "radio", err)
			return nil
		})
	})
}

func (s *Sequencer) routineVerdict(rep *StageReport, slot dut.Slot, flag dut.Flag, name string, err error) {
	s.setFlag(slot, flag, err == nil)
	rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
	if err == nil {
		s.success(name+" tested", "dut", slot.String())
		return
	}
	s.recordError(slot, fmt.Sprintf("%s: %v", name, err))
	s.logger.Error(name+" test failed", "dut", slot.String(), "error", err)
}

// CheckBoardCurrent reads the supply current of every connected board
// that can measure it.
func (s *Sequencer) CheckBoardCurrent(ctx context.Context) error {
	return s.stage(ctx, OpCheckBoardCurrent, "Checking board current...", func(ctx context.Context, rep *StageReport) error {
		for _, st := range s.fixture.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			sensor, ok := st.Board.(board.CurrentSensor)
			if !ok || !st.Board.IsConnected() {
				continue
			}

			pos := dut.Slot{Board: st.Number}
			raw, err := sensor.ReadSupplyCurrent(ctx)
			if err != nil {
				s.logger.Error("reading board current failed", "board", st.Number, "error", err)
				rep.Results = append(rep.Results, SlotResult{Slot: pos, Err: err})
				continue
			}

			pass := SupplyCurrentInRange(raw)
			s.observer.Measurement(pos, "supply_current", raw, pass)
			if pass {
				s.success("board current checked", "board", st.Number, "raw", raw)
				rep.Results = append(rep.Results, SlotResult{Slot: pos})
				continue
			}
			s.logger.Error("board current out of range", "board", st.Number, "raw", raw)
			rep.Results = append(rep.Results, SlotResult{Slot: pos, Err: fmt.Errorf("supply current %d out of range", raw)})
		}
		return nil
	})
}

// ReadTemperature reads the temperature channel of every connected board
// that has one. Readings are reported without limits.
func (s *Sequencer) ReadTemperature(ctx context.Context) error {
	return s.stage(ctx, OpReadTemperature, "Reading board temperature...", func(ctx context.Context, rep *StageReport) error {
		for _, st := range s.fixture.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			sensor, ok := st.Board.(board.TemperatureSensor)
			if !ok || !st.Board.IsConnected() {
				continue
			}

			pos := dut.Slot{Board: st.Number}
			raw, err := sensor.ReadTemperature(ctx)
			if err != nil {
				s.logger.Error("reading board temperature failed", "board", st.Number, "error", err)
				rep.Results = append(rep.Results, SlotResult{Slot: pos, Err: err})
				continue
			}
			s.observer.Measurement(pos, "temperature", raw, true)
			s.success("board temperature read", "board", st.Number, "raw", raw)
			rep.Results = append(rep.Results, SlotResult{Slot: pos})
		}
		return nil
	})
}

// ReadRTC logs the current RTC value of every testable slot.
func (s *Sequencer) ReadRTC(ctx context.Context) error {
	return s.stage(ctx, OpReadRTC, "Reading RTC values...", func(ctx context.Context, rep *StageReport) error {
		return s.forEachTestable(ctx, func(st Station, slot dut.Slot) error {
			resp, err := st.Board.SendBusCommand(ctx, slot.Number, "rtc")
			rep.Results = append(rep.Results, SlotResult{Slot: slot, Err: err})
			if err != nil {
				s.logger.Error("reading RTC failed", "dut", slot.String(), "error", err)
				return nil
			}
			s.logger.Info("RTC value", "dut", slot.String(), "value", strings.Join(resp, " "))
			return nil
		})
	})
}
