package bench

import (
	"time"

	"github.com/torosent/sseflood/internal/metrics"
)

// Scenario names, also used as threshold metric prefixes.
const (
	ScenarioHealth            = "health"
	ScenarioConnect           = "connect"
	ScenarioConnectConcurrent = "connect_concurrent"
	ScenarioPush              = "push"
	ScenarioE2E               = "e2e"
	ScenarioBroadcast         = "broadcast"
)

// Results is the outcome of one Suite run.
type Results struct {
	Target      string          `json:"target" yaml:"target"`
	Start       time.Time       `json:"start" yaml:"start"`
	Elapsed     time.Duration   `json:"-" yaml:"-"`
	ElapsedMs   float64         `json:"elapsed_ms" yaml:"elapsed_ms"`
	Interrupted bool            `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Health      HealthResult    `json:"health" yaml:"health"`
	Connect     ConnectResult   `json:"connect" yaml:"connect"`
	Push        PushResult      `json:"push" yaml:"push"`
	E2E         E2EResult       `json:"e2e" yaml:"e2e"`
	Broadcast   BroadcastResult `json:"broadcast" yaml:"broadcast"`
}

// HealthResult reports the health probe and the best-effort stats read.
type HealthResult struct {
	LatencyMs        float64 `json:"latency_ms" yaml:"latency_ms"`
	TotalConnections *int64  `json:"total_connections,omitempty" yaml:"total_connections,omitempty"`
}

// ConnectResult covers stream establishment latency: time from request to
// the first body byte.
type ConnectResult struct {
	Single         *metrics.Summary `json:"single,omitempty" yaml:"single,omitempty"`
	SingleFailures int              `json:"single_failures" yaml:"single_failures"`
	Concurrent     *metrics.Summary `json:"concurrent,omitempty" yaml:"concurrent,omitempty"`
	Successes      int              `json:"successes" yaml:"successes"`
	Failures       int              `json:"failures" yaml:"failures"`
	ElapsedMs      float64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	Throughput     float64          `json:"throughput_per_sec" yaml:"throughput_per_sec"`
	Errors         map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// PushResult covers publish round trips.
type PushResult struct {
	Latency    *metrics.Summary `json:"latency,omitempty" yaml:"latency,omitempty"`
	Successes  int              `json:"successes" yaml:"successes"`
	Failures   int              `json:"failures" yaml:"failures"`
	ElapsedMs  float64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	Throughput float64          `json:"throughput_per_sec" yaml:"throughput_per_sec"`
	Errors     map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// E2EResult covers publish-to-receive latency on a single listener.
type E2EResult struct {
	Channel   string           `json:"channel,omitempty" yaml:"channel,omitempty"`
	Latency   *metrics.Summary `json:"latency,omitempty" yaml:"latency,omitempty"`
	Successes int              `json:"successes" yaml:"successes"`
	Failures  int              `json:"failures" yaml:"failures"`
	Timeouts  int              `json:"timeouts" yaml:"timeouts"`
	Errors    map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// BroadcastResult covers one publish fanned out to many listeners.
type BroadcastResult struct {
	Channel         string           `json:"channel,omitempty" yaml:"channel,omitempty"`
	Listeners       int              `json:"listeners" yaml:"listeners"`
	Received        int              `json:"received" yaml:"received"`
	Complete        bool             `json:"complete" yaml:"complete"`
	AllReceivedMs   float64          `json:"all_received_ms" yaml:"all_received_ms"`
	Latency         *metrics.Summary `json:"latency,omitempty" yaml:"latency,omitempty"`
	SpreadMs        float64          `json:"spread_ms" yaml:"spread_ms"`
	ConnectFailures int              `json:"connect_failures" yaml:"connect_failures"`
	Error           string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Latency returns the summary reported under a scenario name.
func (r Results) Latency(scenario string) (*metrics.Summary, bool) {
	switch scenario {
	case ScenarioConnect:
		return r.Connect.Single, true
	case ScenarioConnectConcurrent:
		return r.Connect.Concurrent, true
	case ScenarioPush:
		return r.Push.Latency, true
	case ScenarioE2E:
		return r.E2E.Latency, true
	case ScenarioBroadcast:
		return r.Broadcast.Latency, true
	default:
		return nil, false
	}
}

// summarize returns nil for an empty sample.
func summarize(s metrics.Sample) *metrics.Summary {
	sum, ok := metrics.Summarize(s)
	if !ok {
		return nil
	}
	return &sum
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
