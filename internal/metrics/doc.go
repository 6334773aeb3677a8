// Package metrics provides the counters, error taxonomy and latency statistics
// shared by the stress orchestrator and the benchmark suite.
//
// # Aggregator
//
// The [Aggregator] is the single source of truth for stress-run progress:
//
//	agg := metrics.NewAggregator(10000)
//	agg.Increment(metrics.FieldConnected)
//	agg.RecordError(metrics.Classify(err, metrics.PhaseConnect))
//	snap := agg.Snapshot()
//
// Counters are atomic; the failure count and the error-kind histogram share a
// mutex so that the histogram always sums to [Snapshot.Failed].
//
// # Error Taxonomy
//
// [Classify] maps structured transport errors onto a fixed set of labels
// (ConnectRefused, ConnectTimeout, DNSFailure, TLSFailure, ConnectionReset,
// ServerDisconnected, HTTPStatus:<code>, ReadTimeout, Cancelled and
// Unclassified:<message>). [RankErrors] turns the histogram into report rows.
//
// # Percentiles
//
// [Percentile] uses the nearest-rank method without interpolation and reports
// "no data" for empty input instead of failing:
//
//	sample := metrics.Sample{10, 20, 30, 40, 50}
//	p50, ok := metrics.Percentile(sample.Sorted(), 50) // 30, true
//
// [Summarize] condenses a [Sample] into a [Summary] for reporting.
package metrics
