// Package metrics exposes sequencer activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

const namespace = "fixture"

// Metrics records stage durations, slot verdicts and raw measurements.
// It is a sequencer.Observer.
type Metrics struct {
	sequencer.NopObserver

	// Stage durations by stage name and outcome
	StageDuration *prometheus.HistogramVec

	// Slot step failures within stages
	SlotFailures *prometheus.CounterVec

	// Final verdicts by state
	Verdicts *prometheus.CounterVec

	// Measurement outcomes by check
	Checks *prometheus.CounterVec

	// Last raw reading per board, slot and check
	LastReading *prometheus.GaugeVec

	// Runs started
	Runs prometheus.Counter
}

var _ sequencer.Observer = (*Metrics)(nil)

// New creates the sequencer metrics and registers them with reg. A nil
// reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of sequencer stages by stage and outcome",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "outcome"}),

		SlotFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_slot_failures_total",
			Help:      "Slot steps that failed within a stage",
		}, []string{"stage"}),

		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dut_verdicts_total",
			Help:      "Final DUT verdicts by state",
		}, []string{"state"}),

		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Measurements taken by check and result",
		}, []string{"check", "result"}),

		LastReading: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_raw",
			Help:      "Most recent raw reading by board, slot and check",
		}, []string{"board", "slot", "check"}),

		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sequencer runs started",
		}),
	}
}

// RunStarted implements sequencer.Observer.
func (m *Metrics) RunStarted(string) {
	if m != nil {
		m.Runs.Inc()
	}
}

// Measurement implements sequencer.Observer.
func (m *Metrics) Measurement(slot dut.Slot, check string, raw int, pass bool) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(check, outcome(pass)).Inc()
	m.LastReading.WithLabelValues(strconv.Itoa(slot.Board), strconv.Itoa(slot.Number), check).Set(float64(raw))
}

// SlotCompleted implements sequencer.Observer.
func (m *Metrics) SlotCompleted(rec dut.Record) {
	if m != nil {
		m.Verdicts.WithLabelValues(rec.State.String()).Inc()
	}
}

// StageFinished implements sequencer.Observer.
func (m *Metrics) StageFinished(report sequencer.StageReport) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(report.Stage, outcome(report.Err == nil)).Observe(report.Duration.Seconds())
	if n := report.Failures(); n > 0 {
		m.SlotFailures.WithLabelValues(report.Stage).Add(float64(n))
	}
}

func outcome(pass bool) string {
	if pass {
		return "pass"
	}
	return "fail"
}
