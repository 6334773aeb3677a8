package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/torosent/sseflood/internal/metrics"
)

// ProgressReporter rewrites a single status line with each snapshot.
type ProgressReporter struct {
	mu      sync.Mutex
	writer  io.Writer
	printed bool
}

// NewProgressReporter creates a progress reporter writing to writer.
func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{writer: writer}
}

// Update prints the line for s. It has the runner.ProgressFunc signature.
func (p *ProgressReporter) Update(s metrics.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, "\r"+FormatProgress(s))
	p.printed = true
}

// Stop ends the status line so later output starts on a fresh line.
func (p *ProgressReporter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.writer)
		p.printed = false
	}
}

// FormatProgress renders the counters of s on one line.
func FormatProgress(s metrics.Snapshot) string {
	return fmt.Sprintf("Total: %d | Connected: %d | Failed: %d | Disconnected: %d | Messages: %d | Rate: %.1f conn/s",
		s.Total, s.Connected, s.Failed, s.Disconnected, s.Messages, s.ConnectRate())
}
