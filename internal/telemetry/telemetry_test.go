package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/influxdb"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/mqtt"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) PublishEvent(topic string, payload []byte) error {
	return m.record(topic, payload, false)
}

func (m *mockPublisher) PublishRetained(topic string, payload []byte) error {
	return m.record(topic, payload, true)
}

func (m *mockPublisher) record(topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, published{topic: topic, payload: payload, retained: retained})
	return m.err
}

func (m *mockPublisher) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

type reading struct {
	tags  influxdb.SlotTags
	check string
	raw   int
	pass  bool
}

type verdict struct {
	tags   influxdb.SlotTags
	state  string
	chipID string
	errors int
}

type mockWriter struct {
	readings []reading
	verdicts []verdict
}

func (m *mockWriter) WriteReading(slot influxdb.SlotTags, check string, raw int, pass bool) {
	m.readings = append(m.readings, reading{slot, check, raw, pass})
}

func (m *mockWriter) WriteVerdict(slot influxdb.SlotTags, state, chipID string, errorCount int, _ time.Time) {
	m.verdicts = append(m.verdicts, verdict{slot, state, chipID, errorCount})
}

type mockSubscriber struct {
	topic   string
	handler mqtt.MessageHandler
	err     error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if m.err != nil {
		return m.err
	}
	m.topic, m.handler = topic, handler
	return nil
}

type mockStarter struct {
	mu      sync.Mutex
	started []string
	err     error
	result  error
}

func (m *mockStarter) Start(_ context.Context, slug string) (<-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.started = append(m.started, slug)
	done := make(chan error, 1)
	done <- m.result
	close(done)
	return done, nil
}

// ─── MQTT observer ──────────────────────────────────────────────────

func TestMQTTObserver_Publishes(t *testing.T) {
	pub := &mockPublisher{}
	o := NewMQTTObserver(pub, "station-01", nil)

	o.RunStarted("run-1")
	o.Progress("Detecting DUTs in the testing fixture...")
	o.SlotCompleted(dut.Record{
		Slot:   dut.Slot{Board: 3, Number: 2},
		State:  dut.StateProgrammedOK,
		ChipID: "000B57FF00030002",
	})
	o.StageFinished(sequencer.StageReport{
		Stage:    "detect",
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Results:  []sequencer.SlotResult{{Slot: dut.Slot{Board: 1, Number: 1}, Err: errors.New("x")}},
		Err:      errors.New("stage failed"),
	})
	o.Close()

	msgs := pub.messages()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3", len(msgs))
	}

	if msgs[0].topic != "fixture/station-01/progress" || msgs[0].retained {
		t.Errorf("progress message = %+v", msgs[0])
	}
	var progress ProgressPayload
	if err := json.Unmarshal(msgs[0].payload, &progress); err != nil {
		t.Fatalf("decoding progress: %v", err)
	}
	if progress.RunID != "run-1" || progress.Message != "Detecting DUTs in the testing fixture..." {
		t.Errorf("progress = %+v", progress)
	}

	if msgs[1].topic != "fixture/station-01/slot/3/2/result" || !msgs[1].retained {
		t.Errorf("slot message = %+v", msgs[1])
	}
	var slot SlotPayload
	if err := json.Unmarshal(msgs[1].payload, &slot); err != nil {
		t.Fatalf("decoding slot: %v", err)
	}
	if !slot.Passed || slot.Record.ChipID != "000B57FF00030002" || slot.RunID != "run-1" {
		t.Errorf("slot = %+v", slot)
	}

	var stage StagePayload
	if err := json.Unmarshal(msgs[2].payload, &stage); err != nil {
		t.Fatalf("decoding stage: %v", err)
	}
	if stage.Stage != "detect" || stage.DurationMS != 1500 || stage.Failures != 1 || stage.Error != "stage failed" {
		t.Errorf("stage = %+v", stage)
	}
}

func TestMQTTObserver_PublishErrorsAreLogged(t *testing.T) {
	pub := &mockPublisher{err: mqtt.ErrNotConnected}
	o := NewMQTTObserver(pub, "station-01", nil)
	o.Progress("READY")
	o.Close()

	if got := len(pub.messages()); got != 1 {
		t.Errorf("publish attempts = %d, want 1", got)
	}
}

func TestMQTTObserver_AfterClose(t *testing.T) {
	pub := &mockPublisher{}
	o := NewMQTTObserver(pub, "station-01", nil)
	o.Close()
	o.Close()
	o.Progress("late")

	if got := len(pub.messages()); got != 0 {
		t.Errorf("published %d messages after Close, want 0", got)
	}
}

// ─── Influx observer ────────────────────────────────────────────────

func TestInfluxObserver(t *testing.T) {
	w := &mockWriter{}
	o := NewInfluxObserver(w, "station-01")

	o.Measurement(dut.Slot{Board: 2, Number: 1}, "ain", 71012, true)
	o.Measurement(dut.Slot{Board: 4}, "supply_current", 125, true)
	o.SlotCompleted(dut.Record{
		Slot:   dut.Slot{Board: 2, Number: 1},
		State:  dut.StateFailed,
		Errors: []string{"DALI: error:1", "RTC: no reply"},
	})

	if len(w.readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(w.readings))
	}
	want := reading{influxdb.SlotTags{Station: "station-01", Board: 2, Slot: 1}, "ain", 71012, true}
	if w.readings[0] != want {
		t.Errorf("reading = %+v, want %+v", w.readings[0], want)
	}
	if w.readings[1].tags.Slot != 0 || w.readings[1].check != "supply_current" {
		t.Errorf("board reading = %+v", w.readings[1])
	}

	if len(w.verdicts) != 1 {
		t.Fatalf("verdicts = %d, want 1", len(w.verdicts))
	}
	if v := w.verdicts[0]; v.state != "FAILED" || v.errors != 2 {
		t.Errorf("verdict = %+v", v)
	}
}

// ─── Command listener ───────────────────────────────────────────────

func TestCommandListener(t *testing.T) {
	sub := &mockSubscriber{}
	starter := &mockStarter{}
	l := NewCommandListener(sub, starter, "station-01", nil)

	if err := l.Listen(context.Background()); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if sub.topic != "fixture/station-01/command/+" {
		t.Errorf("subscribed to %q", sub.topic)
	}

	if err := sub.handler("fixture/station-01/command/detect", nil); err != nil {
		t.Errorf("handler(detect) error = %v", err)
	}
	if len(starter.started) != 1 || starter.started[0] != "detect" {
		t.Errorf("started = %v", starter.started)
	}

	err := sub.handler("fixture/other/command/detect", nil)
	if !errors.Is(err, sequencer.ErrUnknownOperation) {
		t.Errorf("handler(foreign topic) error = %v, want ErrUnknownOperation", err)
	}
}

func TestCommandListener_Busy(t *testing.T) {
	sub := &mockSubscriber{}
	starter := &mockStarter{err: sequencer.ErrBusy}
	l := NewCommandListener(sub, starter, "station-01", nil)

	if err := l.Listen(context.Background()); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := sub.handler("fixture/station-01/command/full-cycle", nil); !errors.Is(err, sequencer.ErrBusy) {
		t.Errorf("handler() error = %v, want ErrBusy", err)
	}
}

func TestCommandListener_SubscribeError(t *testing.T) {
	sub := &mockSubscriber{err: mqtt.ErrNotConnected}
	l := NewCommandListener(sub, &mockStarter{}, "station-01", nil)

	if err := l.Listen(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Listen() error = %v, want ErrNotConnected", err)
	}
}
