package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/sse"
)

const broadcastEventType = "broadcast"

// arrivals collects the first time each listener saw the marker.
type arrivals struct {
	mu    sync.Mutex
	times []time.Time
}

func (a *arrivals) add(t time.Time) {
	a.mu.Lock()
	a.times = append(a.times, t)
	a.mu.Unlock()
}

func (a *arrivals) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.times)
}

func (a *arrivals) snapshot() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.times)
}

// runBroadcast opens BroadcastClients listeners on one channel, publishes a
// single marked message and measures when each listener received it.
func (s *Suite) runBroadcast(ctx context.Context) BroadcastResult {
	res := BroadcastResult{Channel: fmt.Sprintf("broadcast_bench_%d", os.Getpid())}
	n := s.opt.BroadcastClients
	if n <= 0 {
		return res
	}
	marker := "bcast_" + strings.ToLower(ulid.Make().String())
	needle := []byte(marker)

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()

	var (
		got        arrivals
		connectErr error
		mu         sync.Mutex
		connected  sync.WaitGroup
		streams    sync.WaitGroup
	)
	connected.Add(n)
	for i := 0; i < n; i++ {
		streams.Add(1)
		go func() {
			defer streams.Done()
			client := s.newStream(res.Channel, s.opt.ConnectTimeout)
			defer client.Close()

			err := client.Connect(listenCtx)
			if err != nil {
				mu.Lock()
				res.ConnectFailures++
				connectErr = err
				mu.Unlock()
				s.logFailure(ScenarioBroadcast, err)
			}
			connected.Done()
			if err != nil {
				return
			}

			// The marker may straddle two reads, so keep the tail of the
			// previous chunk.
			keep := len(needle) - 1
			var window []byte
			_ = client.Stream(listenCtx, func(chunk []byte, _ []sse.Event) bool {
				window = append(window, chunk...)
				if bytes.Contains(window, needle) {
					got.add(time.Now())
					return false
				}
				if len(window) > keep {
					window = append(window[:0], window[len(window)-keep:]...)
				}
				return true
			})
		}()
	}
	connected.Wait()
	defer streams.Wait()
	defer stopListening()

	res.Listeners = n - res.ConnectFailures
	if res.Listeners == 0 {
		res.Error = fmt.Sprintf("no listener connected: %v", connectErr)
		return res
	}

	if sleepCtx(ctx, s.opt.BroadcastSettle) != nil {
		return res
	}

	sentAt := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, s.opt.SendTimeout)
	_, err := s.opt.Publisher.Send(sendCtx, res.Channel, broadcastEventType, map[string]any{
		"marker":  marker,
		"send_ts": sentAt.UnixMilli(),
	})
	cancel()
	if err != nil {
		res.Error = fmt.Sprintf("publish: %v", err)
		s.logFailure(ScenarioBroadcast, err)
		return res
	}

	err = runner.Poll(ctx, s.opt.Poll, func() bool { return got.count() >= res.Listeners })
	if err != nil && !errors.Is(err, runner.ErrPollExhausted) {
		s.opt.Logger.Debug("broadcast wait interrupted", "err", err)
	}
	res.Complete = err == nil

	times := got.snapshot()
	res.Received = len(times)
	if len(times) == 0 {
		return res
	}
	var sample metrics.Sample
	for _, t := range times {
		sample.Add(t.Sub(sentAt))
	}
	res.Latency = summarize(sample)
	if res.Latency != nil {
		res.SpreadMs = res.Latency.Max - res.Latency.Min
		if res.Complete {
			res.AllReceivedMs = res.Latency.Max
		}
	}
	return res
}
