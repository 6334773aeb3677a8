package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/sse"
)

const (
	e2eEventType    = "e2e_test"
	e2eMarkerPrefix = "e2e_"
)

// runE2E publishes E2EMessages uniquely marked messages to a channel with one
// open listener and measures the time from just before each publish until
// the listener saw its marker.
func (s *Suite) runE2E(ctx context.Context) E2EResult {
	res := E2EResult{Channel: fmt.Sprintf("e2e_bench_%d_%d", os.Getpid(), time.Now().Unix())}
	if s.opt.E2EMessages <= 0 {
		return res
	}
	var errs errorCounts

	listener := s.newStream(res.Channel, s.opt.ConnectTimeout)
	defer listener.Close()
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()

	if err := listener.Connect(listenCtx); err != nil {
		res.Error = fmt.Sprintf("listener connect: %v", err)
		res.Failures = s.opt.E2EMessages
		errs.add(classify(err))
		res.Errors = errs.snapshot()
		s.logFailure(ScenarioE2E, err)
		return res
	}

	corr := NewCorrelation()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := listener.Stream(listenCtx, func(_ []byte, events []sse.Event) bool {
			observeMarkers(corr, events, e2eMarkerPrefix, time.Now())
			return true
		})
		if err != nil && listenCtx.Err() == nil {
			s.opt.Logger.Warn("e2e listener ended", "channel", res.Channel, "err", err)
		}
	}()
	defer wg.Wait()
	defer stopListening()

	if sleepCtx(ctx, s.opt.E2ESettle) != nil {
		return res
	}

	var sample metrics.Sample
	for i := 0; i < s.opt.E2EMessages; i++ {
		if ctx.Err() != nil {
			break
		}
		marker := fmt.Sprintf("%s%d_%s", e2eMarkerPrefix, i, strings.ToLower(ulid.Make().String()))
		sent := time.Now()

		sendCtx, cancel := context.WithTimeout(ctx, s.opt.SendTimeout)
		_, err := s.opt.Publisher.Send(sendCtx, res.Channel, e2eEventType, map[string]any{
			"marker":  marker,
			"send_ts": sent.UnixMilli(),
		})
		cancel()
		if err != nil {
			res.Failures++
			errs.add(classify(err))
			s.logFailure(ScenarioE2E, err)
			continue
		}

		var recv time.Time
		err = runner.Poll(ctx, s.opt.Poll, func() bool {
			t, ok := corr.Lookup(marker)
			recv = t
			return ok
		})
		switch {
		case err == nil:
			sample.Add(recv.Sub(sent))
		case errors.Is(err, runner.ErrPollExhausted):
			res.Timeouts++
			res.Failures++
			s.logFailure(ScenarioE2E, fmt.Errorf("marker %s not received: %w", marker, err))
		}
	}

	res.Successes = len(sample)
	res.Latency = summarize(sample)
	res.Errors = errs.snapshot()
	return res
}
