package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/sseflood/internal/bench"
	"github.com/torosent/sseflood/internal/config"
	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/threshold"
)

func stressSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Total:        1000,
		Dispatched:   1000,
		Connected:    900,
		Failed:       100,
		Disconnected: 12,
		Messages:     321,
		Elapsed:      3 * time.Second,
		Errors: map[string]int64{
			"ConnectRefused": 75,
			"HTTPStatus:503": 25,
		},
		StreamFailed: 4,
		StreamErrors: map[string]int64{"ServerDisconnected": 4},
		ConnectLatency: metrics.LatencySummary{
			Count: 900, MinMs: 1, MeanMs: 5, P50Ms: 4, P90Ms: 9, P99Ms: 20, MaxMs: 31,
		},
	}
}

func TestPrintStressReport(t *testing.T) {
	var buf bytes.Buffer
	PrintStressReport(&buf, stressSnapshot())

	output := buf.String()
	for _, want := range []string{
		"Stream Stress Results",
		"900 (90.0%)",
		MarkFail,
		"Connect latency (ms)",
		"20.00",
		"ConnectRefused",
		"75.0%",
		"HTTPStatus:503",
		"Stream errors",
		"ServerDisconnected",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q\n%s", want, output)
		}
	}
	if strings.Index(output, "ConnectRefused") > strings.Index(output, "HTTPStatus:503") {
		t.Error("errors should be ranked by count")
	}
}

func TestPrintStressReportNoErrors(t *testing.T) {
	var buf bytes.Buffer
	PrintStressReport(&buf, metrics.Snapshot{Total: 5, Connected: 5, Elapsed: time.Second})

	output := buf.String()
	if strings.Contains(output, "Connection errors") || strings.Contains(output, "Connect latency") {
		t.Errorf("empty sections should be omitted\n%s", output)
	}
	if !strings.Contains(output, MarkPass) {
		t.Errorf("full success should be marked %s", MarkPass)
	}
}

func benchResults() bench.Results {
	total := int64(42)
	return bench.Results{
		Target:      "http://push.local",
		Interrupted: true,
		Health:      bench.HealthResult{LatencyMs: 3.2, TotalConnections: &total},
		Connect: bench.ConnectResult{
			Single:     &metrics.Summary{Count: 10, Min: 1, Mean: 2, P50: 2, P95: 3, P99: 3, Max: 3},
			Successes:  48,
			Failures:   2,
			Throughput: 123.4,
			Errors:     map[string]int64{"ConnectTimeout": 2},
		},
		Push: bench.PushResult{
			Latency:    &metrics.Summary{Count: 200, Min: 1, Mean: 2.5, P50: 2, P95: 5, P99: 8, Max: 9},
			Successes:  200,
			Throughput: 900,
		},
		E2E: bench.E2EResult{Successes: 19, Failures: 1, Timeouts: 1},
		Broadcast: bench.BroadcastResult{
			Listeners: 10, Received: 10, Complete: true,
			AllReceivedMs: 12.5, SpreadMs: 4,
			Latency: &metrics.Summary{Count: 10, Min: 8.5, Max: 12.5},
		},
	}
}

func TestPrintBenchReport(t *testing.T) {
	var buf bytes.Buffer
	PrintBenchReport(&buf, benchResults())

	output := buf.String()
	for _, want := range []string{
		"http://push.local",
		"interrupted",
		"server reports 42 connections",
		"connect_concurrent",
		"123.4 conn/s",
		"900.0 msg/s",
		"1 not delivered in time",
		"all 10 received in 12.50ms, spread 4.00ms",
		"connect errors",
		"ConnectTimeout",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q\n%s", want, output)
		}
	}
	if strings.Contains(output, "push errors") {
		t.Error("push had no errors and should have no error table")
	}
}

func TestPrintBenchBanner(t *testing.T) {
	cfg := config.Defaults(config.ModeBench)
	var buf bytes.Buffer
	PrintBenchBanner(&buf, &cfg)

	output := buf.String()
	if !strings.Contains(output, cfg.TargetURL) || !strings.Contains(output, "CONCURRENT_CONNECTIONS") {
		t.Errorf("banner = %q", output)
	}
}

func TestPrintThresholdResults(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholdResults(&buf, []threshold.Result{
		{Pass: true, Message: "✓ e2e:p99 < 200: 12.00 < 200.00"},
		{Pass: false, Message: "✗ push:p99 < 1: 8.00 < 1.00"},
	})
	output := buf.String()
	if !strings.Contains(output, "e2e:p99 < 200") || !strings.Contains(output, "push:p99 < 1") {
		t.Errorf("threshold output = %q", output)
	}

	buf.Reset()
	PrintThresholdResults(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output for no thresholds, got %q", buf.String())
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, benchResults()); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	health := decoded["health"].(map[string]any)
	if health["total_connections"].(float64) != 42 {
		t.Errorf("total_connections = %v", health["total_connections"])
	}
	e2e := decoded["e2e"].(map[string]any)
	if _, ok := e2e["latency"]; ok {
		t.Error("empty e2e latency should be omitted")
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, stressSnapshot()); err != nil {
		t.Fatalf("PrintYAMLReport() error = %v", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["connected"] != 900 {
		t.Errorf("connected = %v", decoded["connected"])
	}
	errs := decoded["errors"].(map[string]any)
	if errs["ConnectRefused"] != 75 {
		t.Errorf("errors = %v", errs)
	}
}

func TestAppendHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	passed := true

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := AppendHistory(path, HistoryEntry{
				Time:       time.Now(),
				Mode:       "stress",
				Target:     "http://push.local",
				Thresholds: &passed,
				Result:     stressSnapshot(),
			})
			if err != nil {
				t.Errorf("AppendHistory() error = %v", err)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Mode   string         `json:"mode"`
			Passed *bool          `json:"thresholds_passed"`
			Result map[string]any `json:"result"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		if entry.Mode != "stress" || entry.Passed == nil || !*entry.Passed {
			t.Errorf("line %d = %+v", lines+1, entry)
		}
		if entry.Result["connected"].(float64) != 900 {
			t.Errorf("line %d result = %v", lines+1, entry.Result)
		}
		lines++
	}
	if lines != 8 {
		t.Errorf("history has %d lines, want 8", lines)
	}
}

func TestAppendHistoryBadPath(t *testing.T) {
	err := AppendHistory(filepath.Join(t.TempDir(), "missing", "history.jsonl"), HistoryEntry{})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
