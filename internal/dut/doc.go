// Package dut tracks the devices under test held by the fixture.
//
// Each slot has a typed Record: presence, lifecycle State, chip ID, the
// five functional verification flags and an append-only error trail.
// Detection writes presence, the check executors write flags and errors,
// and completion is the only writer of the PROGRAMMED_OK and FAILED states.
package dut
