package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// HistoryEntry is one line of the run history file.
type HistoryEntry struct {
	Time       time.Time `json:"time"`
	Mode       string    `json:"mode"`
	Target     string    `json:"target"`
	Thresholds *bool     `json:"thresholds_passed,omitempty"`
	Result     any       `json:"result"`
}

// AppendHistory appends entry as a JSON line to path. A sibling ".lock" file
// serializes writers from concurrent runs.
func AppendHistory(path string, entry HistoryEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	line = append(line, '\n')

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock history file: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write history file: %w", err)
	}
	return f.Close()
}
