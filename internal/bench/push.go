package bench

import (
	"context"
	"sync"
	"time"

	"github.com/torosent/sseflood/internal/metrics"
)

const (
	pushChannel   = "throughput_test"
	pushEventType = "benchmark"
)

// runPush sends PushCount publishes with at most PushConcurrency in flight
// and records each request's round trip.
func (s *Suite) runPush(ctx context.Context) PushResult {
	var res PushResult
	if s.opt.PushCount <= 0 {
		return res
	}

	var (
		mu      sync.Mutex
		sample  metrics.Sample
		errs    errorCounts
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.opt.PushConcurrency)
		started int
	)

	begin := time.Now()
dispatch:
	for i := 0; i < s.opt.PushCount; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		started++
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, s.opt.PushTimeout)
			defer cancel()
			rtt, err := s.opt.Publisher.Send(reqCtx, pushChannel, pushEventType, map[string]any{
				"seq": seq,
				"ts":  time.Now().UnixMilli(),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures++
				errs.add(classify(err))
				s.logFailure(ScenarioPush, err)
				return
			}
			sample.Add(rtt)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(begin)

	s.opt.Logger.Debug("push dispatch finished", "started", started, "requested", s.opt.PushCount)
	res.Successes = len(sample)
	res.Latency = summarize(sample)
	res.ElapsedMs = ms(elapsed)
	res.Throughput = perSecond(res.Successes, elapsed)
	res.Errors = errs.snapshot()
	return res
}
