package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/mqtt"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// queueSize bounds messages waiting for the broker. Progress beyond it is
// dropped rather than blocking the sequencer.
const queueSize = 256

// Publisher is the subset of the MQTT client the observer needs.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
	PublishRetained(topic string, payload []byte) error
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// ProgressPayload is published on fixture/{station}/progress.
type ProgressPayload struct {
	Station   string `json:"station"`
	RunID     string `json:"run_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// StagePayload is published on fixture/{station}/stage.
type StagePayload struct {
	Station    string `json:"station"`
	RunID      string `json:"run_id"`
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
	Slots      int    `json:"slots"`
	Failures   int    `json:"failures"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// SlotPayload is the retained verdict on fixture/{station}/slot/{b}/{s}/result.
type SlotPayload struct {
	Station string     `json:"station"`
	RunID   string     `json:"run_id"`
	Passed  bool       `json:"passed"`
	Record  dut.Record `json:"record"`
}

// MQTTObserver publishes progress, stage reports and retained slot
// verdicts for one station.
type MQTTObserver struct {
	sequencer.NopObserver

	pub     Publisher
	station string
	topics  mqtt.Topics
	logger  Logger

	mu     sync.Mutex
	runID  string
	queue  chan message
	closed bool
	done   chan struct{}
}

var _ sequencer.Observer = (*MQTTObserver)(nil)

// NewMQTTObserver creates the observer and starts its publishing goroutine.
// Call Close to drain the queue and stop it.
func NewMQTTObserver(pub Publisher, station string, logger Logger) *MQTTObserver {
	o := &MQTTObserver{
		pub:     pub,
		station: station,
		logger:  orNoop(logger),
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *MQTTObserver) loop() {
	defer close(o.done)
	for msg := range o.queue {
		var err error
		if msg.retained {
			err = o.pub.PublishRetained(msg.topic, msg.payload)
		} else {
			err = o.pub.PublishEvent(msg.topic, msg.payload)
		}
		if err != nil {
			o.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
		}
	}
}

// Close stops accepting messages and waits until the queue is drained.
func (o *MQTTObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()
	<-o.done
}

func (o *MQTTObserver) enqueue(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		o.logger.Error("encoding mqtt payload", "topic", topic, "error", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.Debug("dropping message", "topic", topic, "error", ErrClosed)
		return
	}
	select {
	case o.queue <- message{topic: topic, payload: payload, retained: retained}:
	default:
		o.logger.Warn("mqtt queue full, dropping message", "topic", topic)
	}
}

func (o *MQTTObserver) currentRun() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// RunStarted implements sequencer.Observer.
func (o *MQTTObserver) RunStarted(runID string) {
	o.mu.Lock()
	o.runID = runID
	o.mu.Unlock()
}

// Progress implements sequencer.Observer.
func (o *MQTTObserver) Progress(msg string) {
	o.enqueue(o.topics.Progress(o.station), ProgressPayload{
		Station:   o.station,
		RunID:     o.currentRun(),
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, false)
}

// SlotCompleted implements sequencer.Observer.
func (o *MQTTObserver) SlotCompleted(rec dut.Record) {
	o.enqueue(o.topics.SlotResult(o.station, rec.Slot.Board, rec.Slot.Number), SlotPayload{
		Station: o.station,
		RunID:   o.currentRun(),
		Passed:  rec.State == dut.StateProgrammedOK,
		Record:  rec,
	}, true)
}

// StageFinished implements sequencer.Observer.
func (o *MQTTObserver) StageFinished(report sequencer.StageReport) {
	payload := StagePayload{
		Station:    o.station,
		RunID:      report.RunID,
		Stage:      report.Stage,
		DurationMS: report.Duration.Milliseconds(),
		Slots:      len(report.Results),
		Failures:   report.Failures(),
		Timestamp:  report.Started.Add(report.Duration).UTC().Format(time.RFC3339),
	}
	if report.Err != nil {
		payload.Error = report.Err.Error()
	}
	o.enqueue(o.topics.Stage(o.station), payload, false)
}
