package telemetry

import (
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/influxdb"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// PointWriter is the subset of the InfluxDB client the observer needs.
type PointWriter interface {
	WriteReading(slot influxdb.SlotTags, check string, raw int, pass bool)
	WriteVerdict(slot influxdb.SlotTags, state string, chipID string, errorCount int, at time.Time)
}

// InfluxObserver writes raw measurements and final verdicts as time-series
// points.
type InfluxObserver struct {
	sequencer.NopObserver

	w       PointWriter
	station string
	now     func() time.Time
}

var _ sequencer.Observer = (*InfluxObserver)(nil)

// NewInfluxObserver creates an observer writing points tagged with station.
func NewInfluxObserver(w PointWriter, station string) *InfluxObserver {
	return &InfluxObserver{w: w, station: station, now: time.Now}
}

func (o *InfluxObserver) tags(slot dut.Slot) influxdb.SlotTags {
	return influxdb.SlotTags{Station: o.station, Board: slot.Board, Slot: slot.Number}
}

// Measurement implements sequencer.Observer.
func (o *InfluxObserver) Measurement(slot dut.Slot, check string, raw int, pass bool) {
	o.w.WriteReading(o.tags(slot), check, raw, pass)
}

// SlotCompleted implements sequencer.Observer.
func (o *InfluxObserver) SlotCompleted(rec dut.Record) {
	o.w.WriteVerdict(o.tags(rec.Slot), rec.State.String(), rec.ChipID, len(rec.Errors), o.now())
}
