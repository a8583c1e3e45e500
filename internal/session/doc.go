// Package session tracks the operator session on the station and persists
// DUT verdicts.
//
// A session records who is testing which batch. Manager observes the
// sequencer: every finalised slot is counted as a pass or failure and
// buffered, and Flush writes the buffer to SQLite through Repository. The
// dut_results table keeps one row per DUT per run so a chip ID can be
// traced back to its batch, operator and failed checks.
package session
