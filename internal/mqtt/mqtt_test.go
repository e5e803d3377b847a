package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/sortline/internal/logic"
)

func TestTopicsFor(t *testing.T) {
	got := TopicsFor("plant/a")
	if got.Events != "plant/a/events" || got.System != "plant/a/system" {
		t.Errorf("unexpected topics: %+v", got)
	}

	def := TopicsFor("")
	if def.Events != "sortline/line1/events" {
		t.Errorf("default events topic: got %s", def.Events)
	}
}

func TestFormatPayloadDispatched(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventDispatched,
		ItemID:    "item-1",
		Kind:      logic.KindSorter1On,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"line":{"timestamp":"2026-02-02T22:18:12Z","event":"DISPATCHED","item_id":"item-1","command":"SORTER1_ON"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	ts := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)
	tests := []struct {
		name  string
		event logic.Event
		check func(t *testing.T, p LinePayload)
	}{
		{
			name:  "state change",
			event: logic.Event{Type: logic.EventStateChange, From: logic.StateIdle, State: logic.StateRunning},
			check: func(t *testing.T, p LinePayload) {
				if p.From != "IDLE" || p.State != "RUNNING" {
					t.Errorf("from/state: got %s/%s", p.From, p.State)
				}
			},
		},
		{
			name:  "item detected",
			event: logic.Event{Type: logic.EventItemDetected, Code: 5, Category: logic.CategoryGreen, ItemID: "abc"},
			check: func(t *testing.T, p LinePayload) {
				if p.Code != 5 || p.Category != "GREEN" || p.ItemID != "abc" {
					t.Errorf("item: got %+v", p)
				}
			},
		},
		{
			name:  "schedule purged",
			event: logic.Event{Type: logic.EventPurged, Purged: 3, State: logic.StateStopped},
			check: func(t *testing.T, p LinePayload) {
				if p.Purged != 3 {
					t.Errorf("purged: got %d, want 3", p.Purged)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = ts
			payload, err := FormatPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Line.Event != string(tt.event.Type) {
				t.Errorf("event: got %s, want %s", parsed.Line.Event, tt.event.Type)
			}
			tt.check(t, parsed.Line)
		})
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 23, 18, 12, 0, loc),
		Type:      logic.EventStateChange,
	}

	payload, _ := FormatPayload(event)
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Line.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Line.Timestamp)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(logic.Event{Type: logic.EventStateChange}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Errorf("PublishSystem: %v", err)
	}
	if (NopPublisher{}).IsConnected() {
		t.Error("nop publisher should report disconnected")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	f.Publish(logic.Event{Type: logic.EventStateChange, State: logic.StateRunning})
	f.Publish(logic.Event{Type: logic.EventItemDetected, Code: 1})
	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})

	if len(f.Events()) != 2 || len(f.Payloads()) != 2 {
		t.Fatalf("expected 2 events and payloads, got %d/%d", len(f.Events()), len(f.Payloads()))
	}
	if got := f.EventsOf(logic.EventItemDetected); len(got) != 1 || got[0].Code != 1 {
		t.Errorf("EventsOf: got %+v", got)
	}
	if sys := f.SystemEvents(); len(sys) != 1 || !sys[0].Retained {
		t.Errorf("system events: got %+v", sys)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(logic.Event{}); err == nil {
		t.Error("expected Publish error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{})
	f.PublishSystem(SystemEvent{})
	f.SetConnected(true)
	f.Close()

	f.Reset()

	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 || f.Closed() || f.IsConnected() {
		t.Error("Reset should clear all recorded state")
	}
}

// stubToken is an already-completed paho token.
type stubToken struct{ err error }

func (stubToken) Wait() bool                     { return true }
func (stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Error() error                 { return t.err }
func (stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubClient records publishes. Methods the publisher never calls panic
// through the nil embedded interface.
type stubClient struct {
	paho.Client

	mu        sync.Mutex
	open      bool
	published []bufferedMsg
}

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *stubClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, bufferedMsg{topic: topic, payload: payload.([]byte), qos: qos, retained: retained})
	return stubToken{}
}

func (c *stubClient) messages() []bufferedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bufferedMsg(nil), c.published...)
}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	client := &stubClient{open: true}
	p := newPublisher(client, Options{Topics: TopicsFor("t")}, zerolog.Nop())

	if err := p.Publish(logic.Event{Type: logic.EventStateChange}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	msgs := client.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].topic != "t/events" || msgs[0].qos != 0 || msgs[0].retained {
		t.Errorf("event message: got %+v", msgs[0])
	}
	if msgs[1].topic != "t/system" || msgs[1].qos != 1 || !msgs[1].retained {
		t.Errorf("system message: got %+v", msgs[1])
	}
	if p.Buffered() != 0 {
		t.Errorf("nothing should be buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherBuffersAndReplays(t *testing.T) {
	client := &stubClient{}
	p := newPublisher(client, Options{Topics: TopicsFor("t"), BufferSize: 2}, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC) }

	for code := 1; code <= 3; code++ {
		if err := p.Publish(logic.Event{Type: logic.EventItemDetected, Code: code}); err != nil {
			t.Fatalf("Publish while disconnected should not fail: %v", err)
		}
	}
	if len(client.messages()) != 0 {
		t.Fatal("nothing should reach the client while disconnected")
	}
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", p.Buffered())
	}

	client.setOpen(true)
	p.replay()

	msgs := client.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 2 replayed + RECONNECTED, got %d", len(msgs))
	}
	for i, wantCode := range []int{2, 3} {
		var parsed Payload
		if err := json.Unmarshal(msgs[i].payload, &parsed); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if parsed.Line.Code != wantCode {
			t.Errorf("replay %d: code %d, want %d", i, parsed.Line.Code, wantCode)
		}
	}
	want := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if msgs[2].topic != "t/system" || string(msgs[2].payload) != want {
		t.Errorf("reconnected marker: got %s %s", msgs[2].topic, msgs[2].payload)
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer should be drained, got %d", p.Buffered())
	}
}
