package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Field names a monotonic counter tracked by the Aggregator.
type Field int

const (
	FieldDispatched Field = iota
	FieldConnected
	FieldDisconnected
	FieldCancelled
	FieldMessages
)

func (f Field) String() string {
	switch f {
	case FieldDispatched:
		return "dispatched"
	case FieldConnected:
		return "connected"
	case FieldDisconnected:
		return "disconnected"
	case FieldCancelled:
		return "cancelled"
	case FieldMessages:
		return "messages"
	default:
		return "unknown"
	}
}

// Aggregator records connection lifecycle counters in a thread-safe manner.
// Failed is only ever incremented together with the error histogram, so the
// histogram always sums to Failed. Failed counts attempts that never streamed;
// a connection that fails after streaming is counted in StreamFailed and its
// own histogram, so connected+failed never exceeds total.
type Aggregator struct {
	total        int64
	start        time.Time
	dispatched   atomic.Int64
	connected    atomic.Int64
	disconnected atomic.Int64
	cancelled    atomic.Int64
	messages     atomic.Int64

	mu           sync.Mutex
	failed       int64
	errorsByKey  map[string]int64
	streamFailed int64
	streamErrors map[string]int64
	hist         *hdrhistogram.Histogram
	sumConnect   time.Duration
}

// Snapshot is a point-in-time copy of the aggregator state.
type Snapshot struct {
	Total        int64            `json:"total" yaml:"total"`
	Dispatched   int64            `json:"dispatched" yaml:"dispatched"`
	Connected    int64            `json:"connected" yaml:"connected"`
	Failed       int64            `json:"failed" yaml:"failed"`
	Disconnected int64            `json:"disconnected" yaml:"disconnected"`
	Cancelled    int64            `json:"cancelled" yaml:"cancelled"`
	Messages     int64            `json:"messages_received" yaml:"messages_received"`
	Start        time.Time        `json:"start" yaml:"start"`
	Elapsed      time.Duration    `json:"-" yaml:"-"`
	ElapsedMs    float64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	Errors       map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	StreamFailed int64            `json:"stream_failed" yaml:"stream_failed"`
	StreamErrors map[string]int64 `json:"stream_errors,omitempty" yaml:"stream_errors,omitempty"`

	ConnectLatency LatencySummary `json:"connect_latency" yaml:"connect_latency"`
}

// LatencySummary condenses the connect-latency histogram in milliseconds.
type LatencySummary struct {
	Count  int64   `json:"count" yaml:"count"`
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
}

// NewAggregator creates an aggregator expecting total connections.
func NewAggregator(total int) *Aggregator {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Aggregator{
		total:        int64(total),
		start:        time.Now(),
		errorsByKey:  make(map[string]int64),
		streamErrors: make(map[string]int64),
		hist:         h,
	}
}

// Start resets the start time used for elapsed and rate calculations.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.start = time.Now()
	a.mu.Unlock()
}

// Increment bumps the counter for f by one.
func (a *Aggregator) Increment(f Field) {
	switch f {
	case FieldDispatched:
		a.dispatched.Add(1)
	case FieldConnected:
		a.connected.Add(1)
	case FieldDisconnected:
		a.disconnected.Add(1)
	case FieldCancelled:
		a.cancelled.Add(1)
	case FieldMessages:
		a.messages.Add(1)
	}
}

// RecordError counts one failure under an already classified label.
func (a *Aggregator) RecordError(label string) {
	if label == "" {
		label = LabelUnclassified("unknown error")
	}
	a.mu.Lock()
	a.failed++
	a.errorsByKey[label]++
	a.mu.Unlock()
}

// RecordStreamError counts a connection that failed after it was streaming.
func (a *Aggregator) RecordStreamError(label string) {
	if label == "" {
		label = LabelUnclassified("unknown error")
	}
	a.mu.Lock()
	a.streamFailed++
	a.streamErrors[label]++
	a.mu.Unlock()
}

// RecordConnectLatency records the time from dial start to response headers.
func (a *Aggregator) RecordConnectLatency(latency time.Duration) {
	if latency <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	us := latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)
	a.sumConnect += latency
}

// Settled reports whether every expected connection has either connected or failed.
func (a *Aggregator) Settled() bool {
	a.mu.Lock()
	failed := a.failed
	a.mu.Unlock()
	return a.connected.Load()+failed >= a.total
}

// Snapshot returns a consistent copy of the counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Terminal counters are read before the counters they depend on, so a
	// concurrent increment can never make disconnected exceed connected.
	disconnected := a.disconnected.Load()
	cancelled := a.cancelled.Load()
	connected := a.connected.Load()
	s := Snapshot{
		Total:        a.total,
		Dispatched:   a.dispatched.Load(),
		Connected:    connected,
		Failed:       a.failed,
		StreamFailed: a.streamFailed,
		Disconnected: disconnected,
		Cancelled:    cancelled,
		Messages:     a.messages.Load(),
		Start:        a.start,
		Elapsed:      time.Since(a.start),
	}
	s.ElapsedMs = float64(s.Elapsed) / float64(time.Millisecond)

	if len(a.errorsByKey) > 0 {
		s.Errors = make(map[string]int64, len(a.errorsByKey))
		for k, v := range a.errorsByKey {
			s.Errors[k] = v
		}
	}

	if len(a.streamErrors) > 0 {
		s.StreamErrors = make(map[string]int64, len(a.streamErrors))
		for k, v := range a.streamErrors {
			s.StreamErrors[k] = v
		}
	}

	if n := a.hist.TotalCount(); n > 0 {
		s.ConnectLatency = LatencySummary{
			Count:  n,
			MinMs:  usToMs(a.hist.Min()),
			MeanMs: float64(a.sumConnect) / float64(n) / float64(time.Millisecond),
			P50Ms:  usToMs(a.hist.ValueAtQuantile(50)),
			P90Ms:  usToMs(a.hist.ValueAtQuantile(90)),
			P99Ms:  usToMs(a.hist.ValueAtQuantile(99)),
			MaxMs:  usToMs(a.hist.Max()),
		}
	}
	return s
}

// ConnectRate returns successful connections per second since start.
func (s Snapshot) ConnectRate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Connected) / s.Elapsed.Seconds()
}

// SuccessRate returns connected/total as a percentage.
func (s Snapshot) SuccessRate() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Connected) / float64(s.Total) * 100
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}
