package dut

import "errors"

var (
	// ErrInvalidSlot is returned for slot or board numbers below 1.
	ErrInvalidSlot = errors.New("dut: invalid slot")

	// ErrInvalidState is returned when decoding an unknown state name.
	ErrInvalidState = errors.New("dut: invalid state")
)
