package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/torosent/sseflood/internal/metrics"
)

func TestAggregatorCounters(t *testing.T) {
	agg := metrics.NewAggregator(5)

	agg.Increment(metrics.FieldDispatched)
	agg.Increment(metrics.FieldConnected)
	agg.Increment(metrics.FieldConnected)
	agg.Increment(metrics.FieldMessages)
	agg.Increment(metrics.FieldDisconnected)
	agg.RecordError(metrics.LabelConnectRefused)

	snap := agg.Snapshot()
	if snap.Total != 5 {
		t.Errorf("expected total 5, got %d", snap.Total)
	}
	if snap.Connected != 2 {
		t.Errorf("expected connected 2, got %d", snap.Connected)
	}
	if snap.Failed != 1 {
		t.Errorf("expected failed 1, got %d", snap.Failed)
	}
	if snap.Disconnected != 1 {
		t.Errorf("expected disconnected 1, got %d", snap.Disconnected)
	}
	if snap.Messages != 1 {
		t.Errorf("expected messages 1, got %d", snap.Messages)
	}
	if snap.Errors[metrics.LabelConnectRefused] != 1 {
		t.Errorf("expected one ConnectRefused, got %v", snap.Errors)
	}
	if agg.Settled() {
		t.Errorf("expected aggregator not settled at 3/5")
	}
}

func TestAggregatorSnapshotIsACopy(t *testing.T) {
	agg := metrics.NewAggregator(1)
	agg.RecordError(metrics.LabelReadTimeout)

	snap := agg.Snapshot()
	snap.Errors[metrics.LabelReadTimeout] = 100

	again := agg.Snapshot()
	if again.Errors[metrics.LabelReadTimeout] != 1 {
		t.Fatalf("snapshot mutation leaked into aggregator: %v", again.Errors)
	}
}

func TestAggregatorEmptyLabelIsUnclassified(t *testing.T) {
	agg := metrics.NewAggregator(1)
	agg.RecordError("")
	snap := agg.Snapshot()
	if snap.Errors["Unclassified:unknown error"] != 1 {
		t.Fatalf("expected Unclassified label, got %v", snap.Errors)
	}
}

// TestAggregatorInvariantsUnderConcurrency hammers the aggregator from many
// goroutines while a reader checks the invariants on every snapshot.
func TestAggregatorInvariantsUnderConcurrency(t *testing.T) {
	const workers = 50
	const perWorker = 40
	total := workers * perWorker
	agg := metrics.NewAggregator(total)

	labels := []string{
		metrics.LabelConnectRefused,
		metrics.LabelConnectTimeout,
		metrics.LabelHTTPStatus(503),
	}

	done := make(chan struct{})
	violations := make(chan string, 1)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := agg.Snapshot()
			var sum int64
			for _, v := range snap.Errors {
				sum += v
			}
			if sum != snap.Failed {
				select {
				case violations <- "histogram does not sum to failed":
				default:
				}
			}
			if snap.Connected+snap.Failed > snap.Total {
				select {
				case violations <- "connected+failed exceeds total":
				default:
				}
			}
			if snap.Disconnected > snap.Connected {
				select {
				case violations <- "disconnected exceeds connected":
				default:
				}
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if (w+i)%3 == 0 {
					agg.RecordError(labels[(w+i)%len(labels)])
					continue
				}
				agg.Increment(metrics.FieldConnected)
				agg.RecordConnectLatency(time.Duration(i+1) * time.Millisecond)
				agg.Increment(metrics.FieldMessages)
				agg.Increment(metrics.FieldDisconnected)
			}
		}(w)
	}
	wg.Wait()
	close(done)

	select {
	case v := <-violations:
		t.Fatalf("invariant violated: %s", v)
	default:
	}

	snap := agg.Snapshot()
	if snap.Connected+snap.Failed != int64(total) {
		t.Fatalf("expected connected+failed == %d, got %d", total, snap.Connected+snap.Failed)
	}
	if !agg.Settled() {
		t.Fatalf("expected aggregator settled")
	}
	if snap.ConnectLatency.Count != snap.Connected {
		t.Fatalf("expected %d connect samples, got %d", snap.Connected, snap.ConnectLatency.Count)
	}
}

func TestAggregatorConnectLatencySummary(t *testing.T) {
	agg := metrics.NewAggregator(5)
	for _, ms := range []int{10, 20, 30, 40, 50} {
		agg.RecordConnectLatency(time.Duration(ms) * time.Millisecond)
	}

	lat := agg.Snapshot().ConnectLatency
	if lat.Count != 5 {
		t.Fatalf("expected 5 samples, got %d", lat.Count)
	}
	if lat.MinMs < 9.9 || lat.MinMs > 10.1 {
		t.Errorf("expected min ~10ms, got %.3f", lat.MinMs)
	}
	if lat.MaxMs < 49.9 || lat.MaxMs > 50.1 {
		t.Errorf("expected max ~50ms, got %.3f", lat.MaxMs)
	}
	if lat.MeanMs != 30 {
		t.Errorf("expected mean 30ms, got %.3f", lat.MeanMs)
	}
}

func TestAggregatorStreamErrorsKeptApartFromFailed(t *testing.T) {
	agg := metrics.NewAggregator(2)
	agg.Increment(metrics.FieldConnected)
	agg.Increment(metrics.FieldConnected)
	agg.RecordStreamError(metrics.LabelReadTimeout)

	snap := agg.Snapshot()
	if snap.Failed != 0 || len(snap.Errors) != 0 {
		t.Fatalf("stream failure must not count as a connect failure: failed=%d errors=%v", snap.Failed, snap.Errors)
	}
	if snap.StreamFailed != 1 || snap.StreamErrors[metrics.LabelReadTimeout] != 1 {
		t.Fatalf("expected one ReadTimeout stream failure, got %d %v", snap.StreamFailed, snap.StreamErrors)
	}
	if snap.Connected+snap.Failed > snap.Total {
		t.Fatalf("connected+failed exceeds total: %+v", snap)
	}
}

func TestSnapshotRates(t *testing.T) {
	snap := metrics.Snapshot{Total: 4, Connected: 3, Elapsed: 2 * time.Second}
	if got := snap.SuccessRate(); got != 75 {
		t.Errorf("expected success rate 75, got %.1f", got)
	}
	if got := snap.ConnectRate(); got != 1.5 {
		t.Errorf("expected connect rate 1.5, got %.2f", got)
	}

	empty := metrics.Snapshot{}
	if empty.SuccessRate() != 0 || empty.ConnectRate() != 0 {
		t.Errorf("expected zero rates for empty snapshot")
	}
}
