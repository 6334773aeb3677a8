package bench

import (
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/sseflood/internal/sse"
)

// Correlation maps a published marker to the time it was first seen on a
// stream. Later sightings of the same marker are ignored.
type Correlation struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewCorrelation returns an empty Correlation.
func NewCorrelation() *Correlation {
	return &Correlation{seen: make(map[string]time.Time)}
}

// Observe records marker at t unless it was already recorded. It reports
// whether this call stored the entry.
func (c *Correlation) Observe(marker string, t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[marker]; ok {
		return false
	}
	c.seen[marker] = t
	return true
}

// Lookup returns when marker was first seen.
func (c *Correlation) Lookup(marker string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.seen[marker]
	return t, ok
}

// Len returns the number of distinct markers seen.
func (c *Correlation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// observeMarkers records the "marker" field of every JSON data payload in
// events that starts with prefix. Payloads that are not JSON are skipped.
func observeMarkers(c *Correlation, events []sse.Event, prefix string, at time.Time) int {
	stored := 0
	for _, ev := range events {
		if !ev.HasData || !gjson.Valid(ev.Data) {
			continue
		}
		marker := gjson.Get(ev.Data, "marker")
		if marker.Type != gjson.String || !strings.HasPrefix(marker.Str, prefix) {
			continue
		}
		if c.Observe(marker.Str, at) {
			stored++
		}
	}
	return stored
}
