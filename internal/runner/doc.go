// Package runner opens and sustains large numbers of concurrent streaming
// connections against a push service.
//
// An [Orchestrator] dispatches one [Worker] per connection in batches, with an
// optional ramp rate and an optional cap on connections in flight. Each worker
// walks the lifecycle Pending → Connecting → Streaming → Disconnected or
// Failed and reports every transition to a shared metrics.Aggregator.
//
//	o := runner.New(runner.Options{
//		TargetURL:   "http://localhost:8080",
//		Connections: 10000,
//		BatchSize:   200,
//		Hold:        time.Minute,
//	})
//	snap := o.Run(ctx)
//
// Cancelling ctx stops the ramp-up, tears down every stream and returns the
// final snapshot; no per-connection failure ever aborts a run.
//
// # Channel identifiers
//
// [ChannelIDs] assigns channels in one of three modes: [ChannelRandom]
// (prefix plus a short random suffix), [ChannelShared] (the prefix itself) and
// [ChannelSequential] (prefix plus the connection index).
//
// # Polling
//
// [Poll] re-checks a condition under a [PollPolicy] and is used to wait for
// published markers to show up on a stream.
package runner
