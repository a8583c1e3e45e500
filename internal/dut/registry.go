package dut

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the record of every DUT the fixture has seen.
//
// Records are created lazily on first access and never deleted; BeginRun
// resets them for a new run. Reads return deep copies so the operator API
// can snapshot the registry while a run is writing to it.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[Slot]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[Slot]*Record)}
}

func validate(slot Slot) error {
	if slot.Board < 1 || slot.Number < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidSlot, slot)
	}
	return nil
}

// record returns the stored record, creating the default one if absent.
// Callers must hold mu for writing.
func (r *Registry) record(slot Slot) *Record {
	rec, ok := r.records[slot]
	if !ok {
		rec = &Record{Slot: slot, State: StateUnknown}
		r.records[slot] = rec
	}
	return rec
}

// Get returns a copy of the slot's record, creating the default record
// (absent, unchecked, UNKNOWN, no flags) if the slot was never touched.
func (r *Registry) Get(slot Slot) (Record, error) {
	if err := validate(slot); err != nil {
		return Record{}, err
	}

	r.mu.RLock()
	rec, ok := r.records[slot]
	if ok {
		cp := rec.DeepCopy()
		r.mu.RUnlock()
		return *cp, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.record(slot).DeepCopy(), nil
}

// IsTestable reports whether the slot is present and checked. Unknown or
// invalid slots are not testable.
func (r *Registry) IsTestable(slot Slot) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[slot]
	return ok && rec.Testable()
}

// Classify records the outcome of a detection pass.
//
// A present slot becomes checked and DETECTED. An absent slot becomes
// unchecked and UNKNOWN, and its chip ID and verification flags are
// cleared so nothing from an earlier run can leak into a verdict. The
// error trail is kept.
func (r *Registry) Classify(slot Slot, present bool) error {
	if err := validate(slot); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(slot)
	rec.Present = present
	rec.Checked = present
	if present {
		rec.State = StateDetected
		return nil
	}

	rec.State = StateUnknown
	rec.ChipID = ""
	for _, f := range AllFlags {
		rec.setFlag(f, false)
	}
	return nil
}

// SetFlag sets one verification flag.
func (r *Registry) SetFlag(slot Slot, flag Flag, value bool) error {
	if err := validate(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(slot).setFlag(flag, value)
	return nil
}

// SetChipID stores the identifier read from the DUT.
func (r *Registry) SetChipID(slot Slot, id string) error {
	if err := validate(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(slot).ChipID = id
	return nil
}

// SetState sets the lifecycle state.
func (r *Registry) SetState(slot Slot, state State) error {
	if err := validate(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(slot).State = state
	return nil
}

// AppendError adds msg to the slot's error trail.
func (r *Registry) AppendError(slot Slot, msg string) error {
	if err := validate(slot); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(slot)
	rec.Errors = append(rec.Errors, msg)
	return nil
}

// MarkCompleted flags the slot as reported complete and returns true the
// first time it is called after BeginRun or ResetCompletion.
func (r *Registry) MarkCompleted(slot Slot) bool {
	if validate(slot) != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(slot)
	if rec.Completed {
		return false
	}
	rec.Completed = true
	return true
}

// ResetCompletion clears the completion mark of every record so each slot
// can be reported complete once more. Flags and error trails are kept.
func (r *Registry) ResetCompletion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		rec.Completed = false
	}
}

// BeginRun resets every known record to the default state, error trails
// included.
func (r *Registry) BeginRun() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for slot := range r.records {
		r.records[slot] = &Record{Slot: slot, State: StateUnknown}
	}
}

// Snapshot returns copies of all records in fixture visit order: slot
// number first, then board.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot.Number != out[j].Slot.Number {
			return out[i].Slot.Number < out[j].Slot.Number
		}
		return out[i].Slot.Board < out[j].Slot.Board
	})
	return out
}
