package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/sseflood/internal/metrics"
)

// runConnect measures stream time-to-first-byte, first sequentially to get
// an unloaded baseline and then with every connection started at once.
func (s *Suite) runConnect(ctx context.Context) ConnectResult {
	var res ConnectResult
	var errs errorCounts

	var single metrics.Sample
	for i := 0; i < s.opt.WarmupSamples; i++ {
		if ctx.Err() != nil {
			break
		}
		d, err := s.measureTTFB(ctx, fmt.Sprintf("latency_test_%d", i), s.opt.WarmupTimeout)
		if err != nil {
			res.SingleFailures++
			errs.add(classify(err))
			s.logFailure(ScenarioConnect, err)
			continue
		}
		single.Add(d)
	}
	res.Single = summarize(single)

	n := s.opt.Connections
	if n <= 0 || ctx.Err() != nil {
		res.Errors = errs.snapshot()
		return res
	}

	latencies := make([]time.Duration, n)
	failed := make([]bool, n)
	start := make(chan struct{})
	var ready, done sync.WaitGroup
	ready.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			<-start
			d, err := s.measureTTFB(ctx, fmt.Sprintf("concurrent_test_%d", i), s.opt.ConcurrentTimeout)
			if err != nil {
				failed[i] = true
				errs.add(classify(err))
				s.logFailure(ScenarioConnectConcurrent, err)
				return
			}
			latencies[i] = d
		}(i)
	}
	ready.Wait()
	began := time.Now()
	close(start)
	done.Wait()
	elapsed := time.Since(began)

	var concurrent metrics.Sample
	for i := range latencies {
		if failed[i] {
			res.Failures++
			continue
		}
		concurrent.Add(latencies[i])
	}
	res.Successes = len(concurrent)
	res.Concurrent = summarize(concurrent)
	res.ElapsedMs = ms(elapsed)
	res.Throughput = perSecond(res.Successes, elapsed)
	res.Errors = errs.snapshot()
	return res
}
