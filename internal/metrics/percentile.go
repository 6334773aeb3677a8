package metrics

import (
	"sort"
	"time"
)

// Sample is a set of latency measurements in milliseconds.
type Sample []float64

// Add appends a duration converted to milliseconds.
func (s *Sample) Add(d time.Duration) {
	*s = append(*s, float64(d)/float64(time.Millisecond))
}

// Sorted returns an ascending copy; the receiver is left untouched.
func (s Sample) Sorted() []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	sort.Float64s(out)
	return out
}

// Summary holds the distribution figures reported for a scenario.
type Summary struct {
	Count int     `json:"count" yaml:"count"`
	Min   float64 `json:"min_ms" yaml:"min_ms"`
	Mean  float64 `json:"mean_ms" yaml:"mean_ms"`
	P50   float64 `json:"p50_ms" yaml:"p50_ms"`
	P95   float64 `json:"p95_ms" yaml:"p95_ms"`
	P99   float64 `json:"p99_ms" yaml:"p99_ms"`
	Max   float64 `json:"max_ms" yaml:"max_ms"`
}

// Percentile returns the nearest-rank value at floor(n*p/100), clamped to the
// last index. sorted must be in ascending order. ok is false when there is no
// data or p is outside [0,100].
func Percentile(sorted []float64, p float64) (value float64, ok bool) {
	n := len(sorted)
	if n == 0 || p < 0 || p > 100 {
		return 0, false
	}
	idx := int(float64(n) * p / 100)
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx], true
}

// Summarize computes min, mean, p50, p95, p99 and max. ok is false for an
// empty sample.
func Summarize(s Sample) (Summary, bool) {
	if len(s) == 0 {
		return Summary{}, false
	}
	sorted := s.Sorted()

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	p50, _ := Percentile(sorted, 50)
	p95, _ := Percentile(sorted, 95)
	p99, _ := Percentile(sorted, 99)
	return Summary{
		Count: len(sorted),
		Min:   sorted[0],
		Mean:  sum / float64(len(sorted)),
		P50:   p50,
		P95:   p95,
		P99:   p99,
		Max:   sorted[len(sorted)-1],
	}, true
}

// Value returns the named aggregate (min, avg, mean, p50, p95, p99, max, count).
func (s Summary) Value(aggregate string) (float64, bool) {
	switch aggregate {
	case "min":
		return s.Min, true
	case "avg", "mean":
		return s.Mean, true
	case "p50", "med", "median":
		return s.P50, true
	case "p95":
		return s.P95, true
	case "p99":
		return s.P99, true
	case "max":
		return s.Max, true
	case "count":
		return float64(s.Count), true
	default:
		return 0, false
	}
}
