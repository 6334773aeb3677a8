package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/sseflood/internal/metrics"
)

// Orchestrator ramps up connections in batches, holds them and shuts them down.
type Orchestrator struct {
	opt     Options
	agg     *metrics.Aggregator
	limiter *rate.Limiter

	mu      sync.Mutex
	workers []*Worker

	holdOnce  sync.Once
	holdTimer *time.Timer
}

// errHoldElapsed ends dispatch when the hold period runs out while the
// max-in-flight gate is still full.
var errHoldElapsed = errors.New("hold elapsed with the in-flight gate full")

// New creates an orchestrator; the options are normalized in place of defaults.
func New(opt Options) *Orchestrator {
	opt.normalize()
	return &Orchestrator{
		opt:     opt,
		agg:     metrics.NewAggregator(opt.Connections),
		limiter: opt.LimiterFactory(opt.RampRate),
	}
}

// Aggregator exposes the live statistics, e.g. for a dashboard.
func (o *Orchestrator) Aggregator() *metrics.Aggregator {
	return o.agg
}

// Records returns a copy of every dispatched connection's record.
func (o *Orchestrator) Records() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Record, len(o.workers))
	for i, w := range o.workers {
		out[i] = w.Record()
	}
	return out
}

// Run dispatches every connection, holds them and returns the final snapshot.
// Worker failures never abort the run; only ctx does.
func (o *Orchestrator) Run(ctx context.Context) metrics.Snapshot {
	log := o.opt.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.agg.Start()

	progressDone := make(chan struct{})
	go o.reportProgress(ctx, progressDone)

	var wg sync.WaitGroup
	var sem chan struct{}
	if o.opt.MaxInFlight > 0 {
		sem = make(chan struct{}, o.opt.MaxInFlight)
	}

	err := o.dispatch(ctx, &wg, sem)
	switch {
	case errors.Is(err, errHoldElapsed):
		log.Info("hold elapsed before every connection was dispatched",
			"dispatched", o.agg.Snapshot().Dispatched, "max_in_flight", o.opt.MaxInFlight)
	case err != nil:
		log.Info("ramp-up interrupted", "dispatched", o.agg.Snapshot().Dispatched, "reason", err)
	default:
		log.Info("ramp-up complete", "connections", o.opt.Connections)
		o.hold(ctx)
	}

	if o.holdTimer != nil {
		o.holdTimer.Stop()
	}
	cancel()
	o.wait(&wg)
	<-progressDone
	return o.agg.Snapshot()
}

func (o *Orchestrator) dispatch(ctx context.Context, wg *sync.WaitGroup, sem chan struct{}) error {
	n := o.opt.Connections
	ids := ChannelIDs(o.opt.ChannelMode, o.opt.ChannelPrefix, n)
	cfg := WorkerConfig{
		TargetURL:      o.opt.TargetURL,
		HTTPClient:     o.opt.HTTPClient,
		Headers:        o.opt.Headers,
		ConnectTimeout: o.opt.ConnectTimeout,
		ReadTimeout:    o.opt.ReadTimeout,
		Aggregator:     o.agg,
		Logger:         o.opt.Logger,
		FailureLogger:  o.opt.FailureLogger,
	}

	for start := 0; start < n; start += o.opt.BatchSize {
		end := min(start+o.opt.BatchSize, n)
		for i := start; i < end; i++ {
			if err := o.limiter.Wait(ctx); err != nil {
				return err
			}
			if sem != nil {
				if err := o.acquire(ctx, sem); err != nil {
					return err
				}
			}

			w := NewWorker(i, ids[i], cfg)
			o.mu.Lock()
			o.workers = append(o.workers, w)
			o.mu.Unlock()
			o.agg.Increment(metrics.FieldDispatched)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if sem != nil {
					defer func() { <-sem }()
				}
				w.Run(ctx)
			}()
		}

		o.opt.Logger.Debug("batch dispatched", "from", start, "to", end)
		if end < n && o.opt.BatchPause > 0 {
			timer := time.NewTimer(o.opt.BatchPause)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

// acquire takes a max-in-flight slot. A full gate means the run reached its
// steady state, so the hold period starts there; if it elapses before a slot
// frees up, dispatch stops with errHoldElapsed.
func (o *Orchestrator) acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-o.holdDeadline():
		return errHoldElapsed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// holdDeadline starts the hold timer on first use. It returns nil, which
// blocks forever, when Hold is zero.
func (o *Orchestrator) holdDeadline() <-chan time.Time {
	if o.opt.Hold <= 0 {
		return nil
	}
	o.holdOnce.Do(func() { o.holdTimer = time.NewTimer(o.opt.Hold) })
	return o.holdTimer.C
}

// hold keeps streams open for Hold, or until ctx is done when Hold is zero.
// It returns early once every connection has settled and none is streaming.
func (o *Orchestrator) hold(ctx context.Context) {
	deadline := o.holdDeadline()

	ticker := time.NewTicker(o.opt.ProgressInterval)
	defer ticker.Stop()

	for {
		if o.idle() {
			o.opt.Logger.Info("no active streams left; ending hold")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) idle() bool {
	if !o.agg.Settled() {
		return false
	}
	s := o.agg.Snapshot()
	return s.Connected-s.Disconnected-s.StreamFailed <= 0
}

// wait blocks until all workers return or the shutdown timeout passes.
func (o *Orchestrator) wait(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(o.opt.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		o.opt.Logger.Warn("shutdown timed out waiting for connections", "timeout", o.opt.ShutdownTimeout)
	}
}

func (o *Orchestrator) reportProgress(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if o.opt.Progress == nil {
		return
	}

	ticker := time.NewTicker(o.opt.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.opt.Progress(o.agg.Snapshot())
		}
	}
}
