// Package bench measures latency of a push service: stream establishment,
// publish round trip, publish-to-receive and broadcast fan-out.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/sse"
	"github.com/torosent/sseflood/internal/tracing"
)

// ErrUnhealthy is returned by Run when the health probe fails. No other
// scenario runs in that case.
var ErrUnhealthy = errors.New("service unhealthy")

// Suite runs the benchmark scenarios in order against one target.
type Suite struct {
	opt    Options
	tracer trace.Tracer
}

// NewSuite creates a Suite.
func NewSuite(opt Options) *Suite {
	opt.normalize()
	tracer := opt.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("sseflood")
	}
	return &Suite{opt: opt, tracer: tracer}
}

// Run executes health, connection latency, publish throughput, end-to-end
// and broadcast in sequence. Cancelling ctx stops the current scenario and
// skips the rest; the results gathered so far are returned with a nil error
// and Interrupted set.
func (s *Suite) Run(ctx context.Context) (res Results, err error) {
	res = Results{Target: s.opt.TargetURL, Start: time.Now()}
	defer func() {
		res.Elapsed = time.Since(res.Start)
		res.ElapsedMs = ms(res.Elapsed)
	}()

	health, err := s.runHealth(ctx)
	res.Health = health
	if err != nil {
		return res, err
	}

	steps := []struct {
		name string
		run  func(context.Context)
	}{
		{ScenarioConnect, func(ctx context.Context) { res.Connect = s.runConnect(ctx) }},
		{ScenarioPush, func(ctx context.Context) { res.Push = s.runPush(ctx) }},
		{ScenarioE2E, func(ctx context.Context) { res.E2E = s.runE2E(ctx) }},
		{ScenarioBroadcast, func(ctx context.Context) { res.Broadcast = s.runBroadcast(ctx) }},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		s.opt.Logger.Info("scenario started", "scenario", step.name)
		spanCtx, span := tracing.StartScenarioSpan(ctx, s.tracer, step.name)
		start := time.Now()
		step.run(spanCtx)
		tracing.EndSpan(span, nil)
		s.opt.Logger.Info("scenario finished", "scenario", step.name, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	if ctx.Err() != nil {
		res.Interrupted = true
	}
	return res, nil
}

func (s *Suite) runHealth(ctx context.Context) (HealthResult, error) {
	var res HealthResult
	ctx, span := tracing.StartScenarioSpan(ctx, s.tracer, ScenarioHealth)

	probeCtx, cancel := context.WithTimeout(ctx, s.opt.HealthTimeout)
	start := time.Now()
	err := s.opt.Publisher.Health(probeCtx)
	res.LatencyMs = ms(time.Since(start))
	cancel()
	if err != nil {
		tracing.EndSpan(span, err)
		return res, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	statsCtx, cancel := context.WithTimeout(ctx, s.opt.HealthTimeout)
	defer cancel()
	if stats, err := s.opt.Publisher.Stats(statsCtx); err == nil && stats.HasTotal {
		total := stats.TotalConnections
		res.TotalConnections = &total
	} else if err != nil {
		s.opt.Logger.Debug("stats unavailable", "err", err)
	}
	tracing.EndSpan(span, nil)
	return res, nil
}

// phaseError marks an error that surfaced after response headers arrived.
type phaseError struct {
	phase metrics.Phase
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

func classify(err error) string {
	phase := metrics.PhaseConnect
	var pe *phaseError
	if errors.As(err, &pe) {
		phase = pe.phase
	}
	return metrics.Classify(err, phase)
}

// errorCounts is a mutex-guarded error-kind histogram for one scenario.
type errorCounts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *errorCounts) add(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[label]++
}

func (c *errorCounts) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.counts) == 0 {
		return nil
	}
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (s *Suite) logFailure(scenario string, err error) {
	if s.opt.FailureLogger != nil {
		s.opt.FailureLogger.LogFailure(fmt.Errorf("%s: %w", scenario, err))
	}
}

// newStream returns an unconnected client for channel.
func (s *Suite) newStream(channel string, connectTimeout time.Duration) *sse.Client {
	return sse.NewClient(sse.Config{
		URL:            runner.StreamURL(s.opt.TargetURL, channel),
		Headers:        s.opt.Headers,
		HTTPClient:     s.opt.StreamClient,
		ConnectTimeout: connectTimeout,
	})
}

// measureTTFB opens a stream on channel and returns the time from request
// start to the first body byte. The whole measurement is bounded by timeout.
func (s *Suite) measureTTFB(ctx context.Context, channel string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := s.newStream(channel, 0)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return 0, err
	}
	if err := client.Stream(ctx, func([]byte, []sse.Event) bool { return false }); err != nil {
		return 0, &phaseError{phase: metrics.PhaseStream, err: err}
	}
	return client.Metrics().FirstByte, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
