package bench

import (
	"fmt"
	"testing"
	"time"

	"github.com/torosent/sseflood/internal/sse"
)

func feedFrames(t *testing.T, r *sse.FrameReader, b []byte) []sse.Event {
	t.Helper()
	events, err := r.Feed(b)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	return events
}

// TestObserveMarkersBenchmarkChannel delivers the marker exactly as the e2e
// benchmark publishes it on its own channel.
func TestObserveMarkersBenchmarkChannel(t *testing.T) {
	sent := time.Now()
	frame := []byte(fmt.Sprintf("event: e2e_test\ndata: {\"channel_id\":\"e2e_bench_123\",\"marker\":\"e2e_7\",\"send_ts\":%d}\n\n", sent.UnixMilli()))
	c := NewCorrelation()
	recvAt := sent.Add(2 * time.Millisecond)

	if got := observeMarkers(c, feedFrames(t, sse.NewFrameReader(), frame), "e2e_", recvAt); got != 1 {
		t.Fatalf("stored %d markers, want 1", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	recv, ok := c.Lookup("e2e_7")
	if !ok {
		t.Fatal("marker e2e_7 not recorded")
	}
	if recv.Before(sent) {
		t.Errorf("receive time %v precedes send time %v", recv, sent)
	}
	if lat := recv.Sub(sent); lat != 2*time.Millisecond {
		t.Errorf("latency = %v, want 2ms", lat)
	}
}

func TestObserveMarkersFirstSightingWins(t *testing.T) {
	frame := []byte("event: e2e_test\ndata: {\"marker\":\"e2e_7_01hx\",\"send_ts\":1700000000000}\n\n")
	sent := time.Now()
	c := NewCorrelation()
	r := sse.NewFrameReader()

	first := sent.Add(3 * time.Millisecond)
	if got := observeMarkers(c, feedFrames(t, r, frame), "e2e_", first); got != 1 {
		t.Fatalf("first delivery stored %d markers, want 1", got)
	}
	if got := observeMarkers(c, feedFrames(t, r, frame), "e2e_", first.Add(time.Second)); got != 0 {
		t.Fatalf("duplicate delivery stored %d markers, want 0", got)
	}

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	recv, ok := c.Lookup("e2e_7_01hx")
	if !ok {
		t.Fatal("marker not recorded")
	}
	if !recv.Equal(first) {
		t.Errorf("recorded %v, want first sighting %v", recv, first)
	}
	if recv.Before(sent) {
		t.Error("receive time precedes send time")
	}
}

func TestObserveMarkersSkipsForeignPayloads(t *testing.T) {
	events := []sse.Event{
		{Data: "plain text", HasData: true},
		{Data: `{"marker":42}`, HasData: true},
		{Data: `{"marker":"bcast_x"}`, HasData: true},
		{Data: `{"other":"e2e_1"}`, HasData: true},
		{Event: "ping"},
		{Data: `{"marker":"e2e_1_a"}`, HasData: true},
	}
	c := NewCorrelation()
	if got := observeMarkers(c, events, "e2e_", time.Now()); got != 1 {
		t.Fatalf("stored %d markers, want 1", got)
	}
	if _, ok := c.Lookup("e2e_1_a"); !ok {
		t.Error("expected e2e_1_a to be recorded")
	}
}

func TestCorrelationObserve(t *testing.T) {
	c := NewCorrelation()
	t0 := time.Unix(100, 0)
	if !c.Observe("m", t0) {
		t.Fatal("first Observe should store")
	}
	if c.Observe("m", t0.Add(time.Second)) {
		t.Fatal("second Observe should not store")
	}
	if got, _ := c.Lookup("m"); !got.Equal(t0) {
		t.Errorf("Lookup() = %v, want %v", got, t0)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported a hit")
	}
}
