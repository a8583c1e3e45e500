package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the station.
const (
	MeasurementReading = "dut_reading"
	MeasurementVerdict = "dut_verdict"
)

// SlotTags identifies the DUT a point belongs to.
type SlotTags struct {
	Station string
	Board   int
	Slot    int
}

func (t SlotTags) tags() map[string]string {
	return map[string]string{
		"station": t.Station,
		"board":   strconv.Itoa(t.Board),
		"slot":    strconv.Itoa(t.Slot),
	}
}

// WriteReading records one raw instrument value (ADC counts, supply
// current) taken during a check.
//
// Example:
//
//	client.WriteReading(influxdb.SlotTags{Station: "s1", Board: 2, Slot: 1}, "ain1", 71012, true)
func (c *Client) WriteReading(slot SlotTags, check string, raw int, pass bool) {
	if !c.IsConnected() {
		return
	}

	tags := slot.tags()
	tags["check"] = check

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementReading,
		tags,
		map[string]interface{}{
			"raw":  raw,
			"pass": pass,
		},
		time.Now(),
	))
}

// WriteVerdict records the final state of a DUT at completion.
func (c *Client) WriteVerdict(slot SlotTags, state string, chipID string, errorCount int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := slot.tags()
	tags["state"] = state

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementVerdict,
		tags,
		map[string]interface{}{
			"chip_id": chipID,
			"errors":  errorCount,
		},
		at,
	))
}
