package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/sse"
)

// State is a connection's position in its lifecycle.
type State int32

const (
	StatePending State = iota
	StateConnecting
	StateStreaming
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// Record describes one connection.
type Record struct {
	Seq          int
	ChannelID    string
	State        State
	ConnectStart time.Time
	FirstByte    time.Time
	LastActivity time.Time
	Label        string // error label once failed
}

// WorkerConfig holds what a Worker needs besides its identity.
type WorkerConfig struct {
	TargetURL      string
	HTTPClient     *http.Client
	Headers        http.Header
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Aggregator     *metrics.Aggregator
	Logger         *slog.Logger
	FailureLogger  FailureLogger
}

// Worker owns a single streaming connection from connect to teardown.
type Worker struct {
	cfg WorkerConfig

	mu  sync.Mutex
	rec Record
}

// NewWorker creates a pending worker for connection seq on channelID.
func NewWorker(seq int, channelID string, cfg WorkerConfig) *Worker {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		cfg: cfg,
		rec: Record{Seq: seq, ChannelID: channelID, State: StatePending},
	}
}

// Record returns a copy of the worker's current record.
func (w *Worker) Record() Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rec.State
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.rec.State = s
	w.mu.Unlock()
}

// Run connects and streams until ctx is cancelled, the peer closes the stream
// or an error occurs. Every transition into Streaming and into a terminal
// state updates the aggregator exactly once. Run returns the terminal state.
func (w *Worker) Run(ctx context.Context) State {
	agg := w.cfg.Aggregator
	log := w.cfg.Logger.With("conn", w.rec.Seq, "channel", w.rec.ChannelID)

	w.mu.Lock()
	w.rec.State = StateConnecting
	w.rec.ConnectStart = time.Now()
	w.mu.Unlock()

	if ctx.Err() != nil {
		return w.cancelled(log)
	}

	client := sse.NewClient(sse.Config{
		URL:            StreamURL(w.cfg.TargetURL, w.rec.ChannelID),
		Headers:        w.cfg.Headers,
		HTTPClient:     w.cfg.HTTPClient,
		ConnectTimeout: w.cfg.ConnectTimeout,
		ReadTimeout:    w.cfg.ReadTimeout,
	})
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		if ctx.Err() != nil && !errors.Is(err, sse.ErrConnectTimeout) {
			return w.cancelled(log)
		}
		return w.fail(log, err, metrics.PhaseConnect, false)
	}

	agg.Increment(metrics.FieldConnected)
	agg.RecordConnectLatency(client.Metrics().ConnectLatency)
	w.setState(StateStreaming)
	log.Debug("connection streaming", "connect_latency", client.Metrics().ConnectLatency)

	err := client.Stream(ctx, func(_ []byte, events []sse.Event) bool {
		now := time.Now()
		w.mu.Lock()
		if w.rec.FirstByte.IsZero() {
			w.rec.FirstByte = now
		}
		w.rec.LastActivity = now
		w.mu.Unlock()

		for _, ev := range events {
			if ev.HasData {
				agg.Increment(metrics.FieldMessages)
			}
		}
		return true
	})

	switch {
	case err == nil, ctx.Err() != nil, errors.Is(err, io.EOF):
		agg.Increment(metrics.FieldDisconnected)
		w.setState(StateDisconnected)
		log.Debug("connection closed", "reason", disconnectReason(ctx, err))
		return StateDisconnected
	default:
		return w.fail(log, err, metrics.PhaseStream, true)
	}
}

func (w *Worker) cancelled(log *slog.Logger) State {
	w.cfg.Aggregator.Increment(metrics.FieldCancelled)
	w.setState(StateDisconnected)
	log.Debug("connection cancelled before streaming")
	return StateDisconnected
}

func (w *Worker) fail(log *slog.Logger, err error, phase metrics.Phase, streamed bool) State {
	label := metrics.Classify(err, phase)
	if streamed {
		w.cfg.Aggregator.RecordStreamError(label)
	} else {
		w.cfg.Aggregator.RecordError(label)
	}

	w.mu.Lock()
	w.rec.State = StateFailed
	w.rec.Label = label
	w.mu.Unlock()

	log.Debug("connection failed", "error", label, "cause", err)
	if w.cfg.FailureLogger != nil {
		w.cfg.FailureLogger.LogFailure(fmt.Errorf("connection %d (%s): %s: %w", w.rec.Seq, w.rec.ChannelID, label, err))
	}
	return StateFailed
}

func disconnectReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case errors.Is(err, io.EOF):
		return "closed by server"
	default:
		return "stopped"
	}
}
