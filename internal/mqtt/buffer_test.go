package mqtt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func fill(o *outbox, from, to int) {
	for i := from; i < to; i++ {
		o.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10, zerolog.Nop())
	got, dropped := o.drain()
	if got != nil || dropped != 0 {
		t.Errorf("empty drain: got %d items, %d dropped", len(got), dropped)
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(10, zerolog.Nop())
	fill(o, 0, 5)

	got, dropped := o.drain()
	if len(got) != 5 || dropped != 0 {
		t.Fatalf("got %d items, %d dropped; want 5, 0", len(got), dropped)
	}
	for i, msg := range got {
		if msg.payload[0] != byte(i) {
			t.Errorf("item %d: got payload %d", i, msg.payload[0])
		}
	}
	if o.len() != 0 {
		t.Errorf("len after drain: got %d", o.len())
	}
}

func TestOutboxOverflowDropsOldest(t *testing.T) {
	var logs bytes.Buffer
	o := newOutbox(5, zerolog.New(&logs))

	fill(o, 0, 8) // 3..7 kept

	got, dropped := o.drain()
	if len(got) != 5 {
		t.Fatalf("got %d items, want 5", len(got))
	}
	for i, msg := range got {
		if want := byte(i + 3); msg.payload[0] != want {
			t.Errorf("item %d: got payload %d, want %d", i, msg.payload[0], want)
		}
	}
	if dropped != 3 {
		t.Errorf("dropped: got %d, want 3", dropped)
	}
	if n := strings.Count(logs.String(), "mqtt buffer full"); n != 1 {
		t.Errorf("overflow warning logged %d times, want 1", n)
	}
}

func TestOutboxDropCountResetsOnDrain(t *testing.T) {
	var logs bytes.Buffer
	o := newOutbox(2, zerolog.New(&logs))

	fill(o, 0, 3)
	if _, dropped := o.drain(); dropped != 1 {
		t.Fatalf("first drain dropped: got %d, want 1", dropped)
	}

	fill(o, 10, 12)
	got, dropped := o.drain()
	if dropped != 0 || len(got) != 2 || got[0].payload[0] != 10 {
		t.Errorf("second cycle: got %d items, %d dropped", len(got), dropped)
	}

	fill(o, 20, 23)
	if n := strings.Count(logs.String(), "mqtt buffer full"); n != 2 {
		t.Errorf("warning should repeat after a drain, logged %d times", n)
	}
}

func TestOutboxDrainReturnsCopy(t *testing.T) {
	o := newOutbox(3, zerolog.Nop())
	fill(o, 0, 2)
	got, _ := o.drain()

	fill(o, 5, 7)
	if got[0].payload[0] != 0 || got[1].payload[0] != 1 {
		t.Errorf("drained messages changed after reuse: %v", got)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(10, zerolog.Nop())
	o.push(bufferedMsg{
		topic:    "sortline/line1/system",
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got, _ := o.drain()
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].topic != "sortline/line1/system" || string(got[0].payload) != `{"test":true}` {
		t.Errorf("got %+v", got[0])
	}
	if got[0].qos != 1 || !got[0].retained {
		t.Errorf("qos/retained: got %d/%v, want 1/true", got[0].qos, got[0].retained)
	}
}
