package runner_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/sse"
	"github.com/torosent/sseflood/internal/testserver"
)

func runWorker(t *testing.T, ctx context.Context, w *runner.Worker) <-chan runner.State {
	t.Helper()
	done := make(chan runner.State, 1)
	go func() { done <- w.Run(ctx) }()
	return done
}

func awaitState(t *testing.T, done <-chan runner.State) runner.State {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
		return runner.StatePending
	}
}

func TestWorkerStreamsUntilCancelled(t *testing.T) {
	svc, srv := newTarget(t)
	agg := metrics.NewAggregator(1)
	w := runner.NewWorker(0, "chan-a", runner.WorkerConfig{TargetURL: srv.URL, Aggregator: agg})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runWorker(t, ctx, w)

	waitFor(t, "subscriber", func() bool { return svc.Subscribers("chan-a") == 1 })
	if got := w.State(); got != runner.StateStreaming {
		t.Fatalf("expected streaming, got %s", got)
	}

	publish(t, srv.URL, "chan-a", `{"n":1}`)
	publish(t, srv.URL, "chan-a", `{"n":2}`)
	waitFor(t, "messages", func() bool { return agg.Snapshot().Messages == 2 })

	cancel()
	if state := awaitState(t, done); state != runner.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}

	snap := agg.Snapshot()
	if snap.Connected != 1 || snap.Disconnected != 1 || snap.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.ConnectLatency.Count != 1 {
		t.Errorf("expected one connect latency sample, got %d", snap.ConnectLatency.Count)
	}

	rec := w.Record()
	if rec.FirstByte.IsZero() || rec.LastActivity.Before(rec.FirstByte) {
		t.Errorf("expected first byte and last activity to be recorded: %+v", rec)
	}
	if rec.ConnectStart.After(rec.FirstByte) {
		t.Errorf("connect start after first byte: %+v", rec)
	}
}

func TestWorkerPeerCloseIsDisconnect(t *testing.T) {
	_, srv := newTarget(t, testserver.WithCloseAfter(50*time.Millisecond))
	agg := metrics.NewAggregator(1)
	w := runner.NewWorker(0, "chan-b", runner.WorkerConfig{TargetURL: srv.URL, Aggregator: agg})

	state := awaitState(t, runWorker(t, context.Background(), w))
	if state != runner.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
	snap := agg.Snapshot()
	if snap.Disconnected != 1 || snap.Failed != 0 || snap.StreamFailed != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestWorkerConnectFailures(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	_, rejecting := newTarget(t, testserver.WithConnectStatus(http.StatusServiceUnavailable))
	_, slow := newTarget(t, testserver.WithConnectDelay(2*time.Second))

	tests := []struct {
		name    string
		target  string
		timeout time.Duration
		label   string
	}{
		{name: "non-2xx status", target: rejecting.URL, label: "HTTPStatus:503"},
		{name: "refused", target: closedURL, label: metrics.LabelConnectRefused},
		{name: "connect timeout", target: slow.URL, timeout: 100 * time.Millisecond, label: metrics.LabelConnectTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := metrics.NewAggregator(1)
			logger := &testLogger{}
			w := runner.NewWorker(0, "chan", runner.WorkerConfig{
				TargetURL:      tt.target,
				ConnectTimeout: tt.timeout,
				Aggregator:     agg,
				FailureLogger:  logger,
			})

			if state := awaitState(t, runWorker(t, context.Background(), w)); state != runner.StateFailed {
				t.Fatalf("expected failed, got %s", state)
			}
			snap := agg.Snapshot()
			if snap.Failed != 1 || snap.Errors[tt.label] != 1 {
				t.Fatalf("expected one %s failure, got failed=%d errors=%v", tt.label, snap.Failed, snap.Errors)
			}
			if snap.Connected != 0 {
				t.Errorf("expected no connected, got %d", snap.Connected)
			}
			if w.Record().Label != tt.label {
				t.Errorf("record label = %q, want %q", w.Record().Label, tt.label)
			}
			if logger.count() != 1 {
				t.Errorf("expected one logged failure, got %d", logger.count())
			}
		})
	}
}

func TestWorkerReadTimeoutIsStreamFailure(t *testing.T) {
	_, srv := newTarget(t)
	agg := metrics.NewAggregator(1)
	w := runner.NewWorker(0, "idle", runner.WorkerConfig{
		TargetURL:   srv.URL,
		ReadTimeout: 100 * time.Millisecond,
		Aggregator:  agg,
	})

	if state := awaitState(t, runWorker(t, context.Background(), w)); state != runner.StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}
	snap := agg.Snapshot()
	if snap.Connected != 1 || snap.StreamFailed != 1 {
		t.Fatalf("expected a connected stream that failed, got %+v", snap)
	}
	if snap.StreamErrors[metrics.LabelReadTimeout] != 1 {
		t.Fatalf("expected ReadTimeout, got %v", snap.StreamErrors)
	}
	if snap.Failed != 0 {
		t.Fatalf("stream failure leaked into failed: %d", snap.Failed)
	}
}

func TestWorkerOversizedFrameIsStreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// One data line that never sees its blank line.
		_, _ = w.Write([]byte("data: " + strings.Repeat("x", sse.DefaultMaxFrameSize+1)))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	agg := metrics.NewAggregator(1)
	w := runner.NewWorker(0, "huge", runner.WorkerConfig{TargetURL: srv.URL, Aggregator: agg})

	if state := awaitState(t, runWorker(t, context.Background(), w)); state != runner.StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}
	snap := agg.Snapshot()
	if snap.Connected != 1 || snap.StreamFailed != 1 {
		t.Fatalf("expected a connected stream that failed, got %+v", snap)
	}
	want := metrics.LabelUnclassified(sse.ErrFrameTooLarge.Error())
	if snap.StreamErrors[want] != 1 {
		t.Fatalf("expected %s, got %v", want, snap.StreamErrors)
	}
	if w.Record().Label != want {
		t.Fatalf("record label = %q, want %q", w.Record().Label, want)
	}
}

func TestWorkerCancelledBeforeConnect(t *testing.T) {
	_, srv := newTarget(t)
	agg := metrics.NewAggregator(1)
	w := runner.NewWorker(0, "never", runner.WorkerConfig{TargetURL: srv.URL, Aggregator: agg})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if state := w.Run(ctx); state != runner.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
	snap := agg.Snapshot()
	if snap.Cancelled != 1 {
		t.Errorf("expected cancelled 1, got %d", snap.Cancelled)
	}
	if snap.Connected != 0 || snap.Disconnected != 0 || snap.Failed != 0 {
		t.Errorf("cancellation must not count as connect, disconnect or failure: %+v", snap)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []runner.State{runner.StatePending, runner.StateConnecting, runner.StateStreaming} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []runner.State{runner.StateDisconnected, runner.StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
