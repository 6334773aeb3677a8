package threshold

import (
	"fmt"

	"github.com/torosent/sseflood/internal/bench"
	"github.com/torosent/sseflood/internal/metrics"
)

// StressSource exposes a stress run snapshot to thresholds.
type StressSource metrics.Snapshot

// Value implements Source.
func (s StressSource) Value(metric, aggregate string) (float64, error) {
	snap := metrics.Snapshot(s)
	switch metric {
	case "connect":
		return connectLatency(snap.ConnectLatency, aggregate)
	case "connections":
		switch aggregate {
		case "count":
			return float64(snap.Connected), nil
		case "rate":
			return snap.ConnectRate(), nil
		case "success":
			return snap.SuccessRate(), nil
		}
	case "failed":
		switch aggregate {
		case "count":
			return float64(snap.Failed), nil
		case "rate":
			return ratio(snap.Failed, snap.Total), nil
		}
	case "stream_failed":
		switch aggregate {
		case "count":
			return float64(snap.StreamFailed), nil
		case "rate":
			return ratio(snap.StreamFailed, snap.Connected), nil
		}
	case "messages":
		switch aggregate {
		case "count":
			return float64(snap.Messages), nil
		case "rate":
			if snap.Elapsed <= 0 {
				return 0, nil
			}
			return float64(snap.Messages) / snap.Elapsed.Seconds(), nil
		}
	default:
		return 0, fmt.Errorf("metric %q is not reported by stress runs", metric)
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
}

func connectLatency(l metrics.LatencySummary, aggregate string) (float64, error) {
	if l.Count == 0 {
		return 0, fmt.Errorf("no connect latency recorded")
	}
	switch aggregate {
	case "count":
		return float64(l.Count), nil
	case "min":
		return l.MinMs, nil
	case "avg", "mean":
		return l.MeanMs, nil
	case "p50":
		return l.P50Ms, nil
	case "p90":
		return l.P90Ms, nil
	case "p99":
		return l.P99Ms, nil
	case "max":
		return l.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for connect", aggregate)
	}
}

// BenchSource exposes benchmark results to thresholds.
type BenchSource bench.Results

// Value implements Source.
func (b BenchSource) Value(metric, aggregate string) (float64, error) {
	res := bench.Results(b)

	if metric == bench.ScenarioHealth {
		if aggregate == "max" || aggregate == "avg" || aggregate == "mean" {
			return res.Health.LatencyMs, nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for health", aggregate)
	}

	summary, ok := res.Latency(metric)
	if !ok {
		return 0, fmt.Errorf("metric %q is not reported by bench runs", metric)
	}

	var successes, failures int
	switch metric {
	case bench.ScenarioConnect:
		successes, failures = countOf(res.Connect.Single), res.Connect.SingleFailures
	case bench.ScenarioConnectConcurrent:
		successes, failures = res.Connect.Successes, res.Connect.Failures
	case bench.ScenarioPush:
		successes, failures = res.Push.Successes, res.Push.Failures
	case bench.ScenarioE2E:
		successes, failures = res.E2E.Successes, res.E2E.Failures
	case bench.ScenarioBroadcast:
		successes, failures = res.Broadcast.Received, res.Broadcast.Listeners-res.Broadcast.Received+res.Broadcast.ConnectFailures
	}

	switch aggregate {
	case "failures":
		return float64(failures), nil
	case "error_rate":
		return ratio(int64(failures), int64(successes+failures)), nil
	case "throughput":
		switch metric {
		case bench.ScenarioConnectConcurrent:
			return res.Connect.Throughput, nil
		case bench.ScenarioPush:
			return res.Push.Throughput, nil
		}
	case "timeouts":
		if metric == bench.ScenarioE2E {
			return float64(res.E2E.Timeouts), nil
		}
	case "received":
		if metric == bench.ScenarioBroadcast {
			return float64(res.Broadcast.Received), nil
		}
	case "spread":
		if metric == bench.ScenarioBroadcast {
			if summary == nil {
				return 0, fmt.Errorf("no broadcast deliveries recorded")
			}
			return res.Broadcast.SpreadMs, nil
		}
	default:
		if summary == nil {
			if aggregate == "count" {
				return 0, nil
			}
			return 0, fmt.Errorf("no %s samples recorded", metric)
		}
		if v, ok := summary.Value(aggregate); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
}

func countOf(s *metrics.Summary) int {
	if s == nil {
		return 0
	}
	return s.Count
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
