// Package sequencer runs the production test of a multi-board fixture.
//
// A Fixture holds one Station per measuring board, each with the debug
// probe wired to its slots. The Sequencer walks the stages of a test run
// over every slot, outer loop by slot number and inner loop by station:
//
//   - Detect classifies each slot as present or absent
//   - DownloadTestFirmware and DownloadProductionFirmware drive the probe
//   - the check executors (AIN, RTC, DALI, radio, accelerometer, chip ID)
//     set one verdict flag each on the slot's dut.Record
//   - Finalize turns the flags into PROGRAMMED_OK or FAILED
//
// FullCycle chains them in production order. Every stage is also
// available on its own through the operation registry (Operations, Run,
// Start), which allows one operation at a time and returns ErrBusy
// otherwise.
//
// Timed waits go through an injectable Clock. Progress, readings and
// verdicts are reported to an Observer.
package sequencer
