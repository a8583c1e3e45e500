// Package sim provides an in-memory test fixture.
//
// Boards, debug probes, the host connection and the DUT routines behave
// like the bench hardware closely enough to run every sequencer stage:
// the power board switches a shared supply bank, empty or unpowered slots
// time out, DUTs answer railtest commands (srtc, rtc, dali, getmemw,
// 12vout) and keep their RTC across a power cycle unless configured to
// lose it. Per-slot overrides in config.SimulationConfig inject faults.
//
// Every driver call is recorded so tests can assert on ordering.
package sim
