package dut

import "fmt"

// Slot addresses one DUT position: the board number from the fixture
// configuration and the 1-based slot on that board.
type Slot struct {
	Board  int `json:"board"`
	Number int `json:"slot"`
}

// String formats the slot as "B<board>/S<slot>".
func (s Slot) String() string {
	return fmt.Sprintf("B%d/S%d", s.Board, s.Number)
}

// State is the lifecycle verdict of a DUT within one run. The numeric
// values match the encoding the fixture boards and line reports use.
type State int

const (
	StateUnknown      State = 0
	StateDetected     State = 1
	StateProgrammedOK State = 2
	StateFailed       State = 3
)

// String returns the report name of the state.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateDetected:
		return "DETECTED"
	case StateProgrammedOK:
		return "PROGRAMMED_OK"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name for JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "UNKNOWN":
		*s = StateUnknown
	case "DETECTED":
		*s = StateDetected
	case "PROGRAMMED_OK":
		*s = StateProgrammedOK
	case "FAILED":
		*s = StateFailed
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, text)
	}
	return nil
}

// Flag names one of the functional verification results.
type Flag int

const (
	FlagVoltage Flag = iota
	FlagDALI
	FlagRTC
	FlagRadio
	FlagAccel
)

// AllFlags lists every verification flag in report order.
var AllFlags = []Flag{FlagVoltage, FlagDALI, FlagRTC, FlagRadio, FlagAccel}

// String returns the column name used in reports and the database.
func (f Flag) String() string {
	switch f {
	case FlagVoltage:
		return "voltage_checked"
	case FlagDALI:
		return "dali_checked"
	case FlagRTC:
		return "rtc_checked"
	case FlagRadio:
		return "radio_checked"
	case FlagAccel:
		return "accel_checked"
	default:
		return fmt.Sprintf("Flag(%d)", int(f))
	}
}

// Record is everything known about one DUT during a run.
type Record struct {
	Slot    Slot   `json:"slot"`
	Present bool   `json:"present"`
	Checked bool   `json:"checked"`
	State   State  `json:"state"`
	ChipID  string `json:"chip_id"`

	VoltageChecked bool `json:"voltage_checked"`
	DALIChecked    bool `json:"dali_checked"`
	RTCChecked     bool `json:"rtc_checked"`
	RadioChecked   bool `json:"radio_checked"`
	AccelChecked   bool `json:"accel_checked"`

	// Errors is the append-only error trail of the run.
	Errors []string `json:"errors"`

	// Completed is set once the board has been told the slot is finished.
	Completed bool `json:"completed"`
}

// Testable reports whether executors may act on the DUT.
func (r Record) Testable() bool {
	return r.Present && r.Checked
}

// Passed reports whether the DUT has a chip ID and every verification flag.
func (r Record) Passed() bool {
	return r.ChipID != "" &&
		r.VoltageChecked &&
		r.DALIChecked &&
		r.RTCChecked &&
		r.RadioChecked &&
		r.AccelChecked
}

// Flag returns the value of one verification flag.
func (r Record) Flag(f Flag) bool {
	switch f {
	case FlagVoltage:
		return r.VoltageChecked
	case FlagDALI:
		return r.DALIChecked
	case FlagRTC:
		return r.RTCChecked
	case FlagRadio:
		return r.RadioChecked
	case FlagAccel:
		return r.AccelChecked
	default:
		return false
	}
}

func (r *Record) setFlag(f Flag, v bool) {
	switch f {
	case FlagVoltage:
		r.VoltageChecked = v
	case FlagDALI:
		r.DALIChecked = v
	case FlagRTC:
		r.RTCChecked = v
	case FlagRadio:
		r.RadioChecked = v
	case FlagAccel:
		r.AccelChecked = v
	}
}

// DeepCopy returns a copy that shares no memory with r.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Errors != nil {
		cp.Errors = make([]string, len(r.Errors))
		copy(cp.Errors, r.Errors)
	}
	return &cp
}
