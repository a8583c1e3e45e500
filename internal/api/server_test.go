package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/logging"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
	"github.com/N-O-S-T/FactoryTestApp/internal/session"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type fakeStation struct {
	mu       sync.Mutex
	started  []string
	active   string
	startErr error
	slots    []dut.Record
	panicky  bool
}

func (f *fakeStation) Operations() []sequencer.Operation {
	return []sequencer.Operation{
		{Slug: sequencer.OpFullCycle, Label: "Full cycle testing"},
		{Slug: sequencer.OpDetect, Label: "Detect DUTs"},
	}
}

func (f *fakeStation) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeStation) RunID() string { return "run-1" }

func (f *fakeStation) Slots() []dut.Record {
	if f.panicky {
		panic("registry corrupted")
	}
	return f.slots
}

func (f *fakeStation) Start(_ context.Context, slug string) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	if slug != sequencer.OpFullCycle && slug != sequencer.OpDetect {
		return nil, sequencer.ErrUnknownOperation
	}
	f.started = append(f.started, slug)
	done := make(chan error, 1)
	done <- nil
	close(done)
	return done, nil
}

type fakeSession struct {
	info    session.Info
	stats   session.Stats
	results []session.Result
	listErr error
	limit   int
}

func (f *fakeSession) Start(_ context.Context, operator, batch, batchInfo string) (session.Info, error) {
	info := session.Info{ID: "s-2", Operator: operator, Batch: batch, BatchInfo: batchInfo}
	if err := info.Validate(); err != nil {
		return session.Info{}, err
	}
	f.info = info
	return info, nil
}

func (f *fakeSession) Stats() session.Stats { return f.stats }

func (f *fakeSession) ListResults(_ context.Context, limit int) ([]session.Result, error) {
	f.limit = limit
	return f.results, f.listErr
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// testServer creates a Server backed by fakes and a private Prometheus registry.
func testServer(t *testing.T) (*Server, *fakeStation, *fakeSession) {
	t.Helper()

	st := &fakeStation{}
	sess := &fakeSession{}
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       testWSConfig(),
		Logger:   testLogger(),
		Station:  st,
		Session:  sess,
		Gatherer: reg,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv, st, sess
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Construction ───────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Station: &fakeStation{}, Session: &fakeSession{}}},
		{"no station", Deps{Logger: testLogger(), Session: &fakeSession{}}},
		{"no session", Deps{Logger: testLogger(), Station: &fakeStation{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_HealthCheck(t *testing.T) {
	srv, _, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

// ─── Health and middleware ──────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, st, _ := testServer(t)
	st.panicky = true

	w := do(t, srv, http.MethodGet, "/api/v1/slots", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", w.Code)
	}
}

// ─── Operations ─────────────────────────────────────────────────────

func TestListOperations(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/api/v1/operations", "")

	var resp struct {
		Operations []sequencer.Operation `json:"operations"`
		Active     string                `json:"active"`
	}
	decode(t, w, &resp)
	if len(resp.Operations) != 2 || resp.Operations[0].Slug != "full-cycle" || resp.Operations[0].Label != "Full cycle testing" {
		t.Errorf("operations = %+v", resp.Operations)
	}
}

func TestStartOperation(t *testing.T) {
	tests := []struct {
		name     string
		slug     string
		startErr error
		want     int
	}{
		{"accepted", "full-cycle", nil, http.StatusAccepted},
		{"unknown", "bogus", nil, http.StatusNotFound},
		{"busy", "detect", sequencer.ErrBusy, http.StatusConflict},
		{"other error", "detect", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, st, _ := testServer(t)
			st.startErr = tt.startErr

			w := do(t, srv, http.MethodPost, "/api/v1/operations/"+tt.slug, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusAccepted && (len(st.started) != 1 || st.started[0] != tt.slug) {
				t.Errorf("started = %v", st.started)
			}
		})
	}
}

func TestListSlots(t *testing.T) {
	srv, st, _ := testServer(t)
	st.slots = []dut.Record{
		{Slot: dut.Slot{Board: 1, Number: 1}, Present: true, Checked: true, State: dut.StateDetected},
	}

	w := do(t, srv, http.MethodGet, "/api/v1/slots", "")
	var resp struct {
		RunID string           `json:"run_id"`
		Slots []map[string]any `json:"slots"`
	}
	decode(t, w, &resp)
	if resp.RunID != "run-1" || len(resp.Slots) != 1 {
		t.Fatalf("slots = %+v", resp)
	}
	if resp.Slots[0]["state"] != "DETECTED" {
		t.Errorf("state = %v, want DETECTED", resp.Slots[0]["state"])
	}
}

// ─── Session ────────────────────────────────────────────────────────

func TestGetSession(t *testing.T) {
	srv, _, sess := testServer(t)
	sess.stats = session.Stats{Session: session.Info{ID: "s-1", Operator: "alice"}, Passed: 12, Failed: 3, Pending: 1}

	w := do(t, srv, http.MethodGet, "/api/v1/session", "")
	var resp map[string]any
	decode(t, w, &resp)
	if resp["passed"] != float64(12) || resp["failed"] != float64(3) || resp["total"] != float64(15) {
		t.Errorf("session = %v", resp)
	}
}

func TestStartSession(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     int
		wantCode string
	}{
		{"valid", `{"operator":"alice","batch":"B42","batch_info":"rev C"}`, http.StatusOK, ""},
		{"invalid json", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"multi-line operator", `{"operator":"a\nb"}`, http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, sess := testServer(t)
			w := do(t, srv, http.MethodPut, "/api/v1/session", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.wantCode != "" {
				var e Error
				decode(t, w, &e)
				if e.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
				}
				return
			}
			if sess.info.Operator != "alice" || sess.info.BatchInfo != "rev C" {
				t.Errorf("session = %+v", sess.info)
			}
		})
	}
}

func TestListResults(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      int
		wantLimit int
	}{
		{"default limit", "", http.StatusOK, defaultResultsLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"not a number", "?limit=ten", http.StatusBadRequest, 0},
		{"too large", "?limit=10001", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, sess := testServer(t)
			w := do(t, srv, http.MethodGet, "/api/v1/results"+tt.query, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if sess.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", sess.limit, tt.wantLimit)
			}
			if tt.want == http.StatusOK {
				var resp struct {
					Results []session.Result `json:"results"`
					Count   int              `json:"count"`
				}
				decode(t, w, &resp)
				if resp.Results == nil || resp.Count != 0 {
					t.Errorf("empty results = %+v", resp)
				}
			}
		})
	}
}

func TestListResults_Error(t *testing.T) {
	srv, _, sess := testServer(t)
	sess.listErr = errors.New("database locked")

	if w := do(t, srv, http.MethodGet, "/api/v1/results", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Metrics and status ─────────────────────────────────────────────

func TestPrometheusEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fixture_test_total 1") {
		t.Errorf("scrape output missing counter:\n%s", w.Body.String())
	}
}

type fakeMQTT bool

func (f fakeMQTT) IsConnected() bool { return bool(f) }

func TestSystem(t *testing.T) {
	srv, st, _ := testServer(t)
	srv.mqtt = fakeMQTT(true)
	st.slots = []dut.Record{
		{Slot: dut.Slot{Board: 1, Number: 1}, Present: true, Checked: true},
		{Slot: dut.Slot{Board: 1, Number: 2}},
	}

	w := do(t, srv, http.MethodGet, "/api/v1/system", "")
	var resp SystemStatus
	decode(t, w, &resp)
	if resp.Station.Slots != 2 || resp.Station.Testable != 1 || resp.Station.RunID != "run-1" {
		t.Errorf("station = %+v", resp.Station)
	}
	if resp.MQTT == nil || !resp.MQTT.Connected {
		t.Errorf("mqtt = %+v", resp.MQTT)
	}
	if resp.Version != "test" || resp.Runtime.Goroutines == 0 {
		t.Errorf("status = %+v", resp)
	}
}

// ─── Hub ────────────────────────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func receive(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_ObserverEvents(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub, allChannels...)

	hub.RunStarted("run-9")
	hub.Progress("READY")
	hub.Measurement(dut.Slot{Board: 2, Number: 1}, "ain", 71000, true)
	hub.SlotCompleted(dut.Record{Slot: dut.Slot{Board: 2, Number: 1}, State: dut.StateFailed})
	hub.StageFinished(sequencer.StageReport{Stage: "detect", Duration: time.Second, Err: errors.New("x")})

	want := []string{ChannelRun, ChannelProgress, ChannelMeasurement, ChannelSlot, ChannelStage}
	for _, ch := range want {
		msg := receive(t, client)
		if msg.Type != WSTypeEvent || msg.EventType != ch {
			t.Errorf("message = %s/%s, want event/%s", msg.Type, msg.EventType, ch)
		}
		if ch == ChannelStage {
			payload, _ := msg.Payload.(map[string]any)
			if payload["error"] != "x" || payload["duration_ms"] != float64(1000) {
				t.Errorf("stage payload = %v", payload)
			}
		}
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub, ChannelSlot)

	hub.Progress("Detecting DUTs in the testing fixture...")

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newTestClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// Broadcasting to a removed client must not panic.
	client.trySend([]byte("x"))
}

// ─── WebSocket ──────────────────────────────────────────────────────

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ws
}

func TestWebSocket_ReceivesProgress(t *testing.T) {
	srv, _, _ := testServer(t)
	ws := dialWS(t, srv, "")

	srv.hub.Progress("READY")

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.EventType != ChannelProgress {
		t.Errorf("event_type = %q, want progress", msg.EventType)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["message"] != "READY" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	srv, _, _ := testServer(t)
	ws := dialWS(t, srv, "?channels=slot.completed")
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStage}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Errorf("subscribe response = %+v", resp)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong {
		t.Errorf("ping response type = %s, want pong", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "dance"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("unknown type response = %s, want error", resp.Type)
	}

	// Progress is not subscribed; the stage event must be the next frame.
	srv.hub.Progress("ignored")
	srv.hub.StageFinished(sequencer.StageReport{Stage: "finalize"})
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read stage: %v", err)
	}
	if resp.EventType != ChannelStage {
		t.Errorf("event_type = %q, want stage.finished", resp.EventType)
	}
}
