package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
)

const (
	maxOperatorLength  = 100
	maxBatchLength     = 100
	maxBatchInfoLength = 1000
)

// Info describes an operator session.
type Info struct {
	ID        string    `json:"id"`
	StationID string    `json:"station_id"`
	Operator  string    `json:"operator"`
	Batch     string    `json:"batch"`
	BatchInfo string    `json:"batch_info"`
	StartedAt time.Time `json:"started_at"`
}

// Validate checks the operator-entered fields.
func (i Info) Validate() error {
	switch {
	case len(i.Operator) > maxOperatorLength:
		return fmt.Errorf("%w: operator exceeds %d characters", ErrInvalidSession, maxOperatorLength)
	case len(i.Batch) > maxBatchLength:
		return fmt.Errorf("%w: batch exceeds %d characters", ErrInvalidSession, maxBatchLength)
	case len(i.BatchInfo) > maxBatchInfoLength:
		return fmt.Errorf("%w: batch info exceeds %d characters", ErrInvalidSession, maxBatchInfoLength)
	case strings.ContainsAny(i.Operator+i.Batch, "\n\r"):
		return fmt.Errorf("%w: operator and batch must be single-line", ErrInvalidSession)
	}
	return nil
}

// Result is the persisted verdict of one DUT in one run.
type Result struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	RunID      string    `json:"run_id"`
	Slot       dut.Slot  `json:"slot"`
	ChipID     string    `json:"chip_id"`
	State      dut.State `json:"state"`
	Voltage    bool      `json:"voltage_checked"`
	DALI       bool      `json:"dali_checked"`
	RTC        bool      `json:"rtc_checked"`
	Radio      bool      `json:"radio_checked"`
	Accel      bool      `json:"accel_checked"`
	Errors     []string  `json:"errors"`
	FinishedAt time.Time `json:"finished_at"`
}

// resultFromRecord captures a finalised registry record.
func resultFromRecord(sessionID, runID string, rec dut.Record, at time.Time) Result {
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	return Result{
		SessionID:  sessionID,
		RunID:      runID,
		Slot:       rec.Slot,
		ChipID:     rec.ChipID,
		State:      rec.State,
		Voltage:    rec.VoltageChecked,
		DALI:       rec.DALIChecked,
		RTC:        rec.RTCChecked,
		Radio:      rec.RadioChecked,
		Accel:      rec.AccelChecked,
		Errors:     errs,
		FinishedAt: at,
	}
}

// Stats summarises the current session.
type Stats struct {
	Session Info `json:"session"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`

	// Pending counts verdicts not yet written to the database.
	Pending int `json:"pending"`
}

// Total returns the number of DUTs tested in the session.
func (s Stats) Total() int {
	return s.Passed + s.Failed
}
