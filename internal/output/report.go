package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/torosent/sseflood/internal/bench"
	"github.com/torosent/sseflood/internal/config"
	"github.com/torosent/sseflood/internal/metrics"
	"github.com/torosent/sseflood/internal/threshold"
)

var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#008000", Dark: "#00ff00"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#c00000", Dark: "#ff5555"}

	stylePass = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	styleWarn = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	styleFail = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// Status marks used in reports.
const (
	MarkPass = "✓"
	MarkWarn = "⚠"
	MarkFail = "✗"
)

// mark grades a success percentage: all good, mostly good, or poor.
func mark(pct float64) string {
	switch {
	case pct >= 100:
		return stylePass.Render(MarkPass)
	case pct >= 95:
		return styleWarn.Render(MarkWarn)
	default:
		return styleFail.Render(MarkFail)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func rightAlign(cols ...int) []table.ColumnConfig {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	return cfgs
}

func percent(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// PrintStressReport outputs the human-readable summary of a stress run.
func PrintStressReport(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintln(w, "\n--- Stream Stress Results ---")

	t := newTable(w, "Connections")
	t.AppendRows([]table.Row{
		{"Total", s.Total},
		{"Dispatched", s.Dispatched},
		{"Connected", fmt.Sprintf("%d (%.1f%%) %s", s.Connected, s.SuccessRate(), mark(s.SuccessRate()))},
		{"Failed", s.Failed},
		{"Disconnected", s.Disconnected},
		{"Cancelled", s.Cancelled},
		{"Failed after streaming", s.StreamFailed},
		{"Messages received", s.Messages},
		{"Duration", s.Elapsed.Round(time.Millisecond)},
		{"Connect rate", fmt.Sprintf("%.1f/s", s.ConnectRate())},
	})
	t.SetColumnConfigs(rightAlign(2))
	t.Render()

	if l := s.ConnectLatency; l.Count > 0 {
		t := newTable(w, "Connect latency (ms)")
		t.AppendHeader(table.Row{"Count", "Min", "Mean", "P50", "P90", "P99", "Max"})
		t.AppendRow(table.Row{l.Count, ff(l.MinMs), ff(l.MeanMs), ff(l.P50Ms), ff(l.P90Ms), ff(l.P99Ms), ff(l.MaxMs)})
		t.SetColumnConfigs(rightAlign(1, 2, 3, 4, 5, 6, 7))
		t.Render()
	}

	writeErrorTable(w, "Connection errors", s.Errors, s.Failed)
	writeErrorTable(w, "Stream errors", s.StreamErrors, s.StreamFailed)
}

func writeErrorTable(w io.Writer, title string, errs map[string]int64, failed int64) {
	rows := metrics.RankErrors(errs, failed)
	if len(rows) == 0 {
		return
	}
	t := newTable(w, title)
	t.AppendHeader(table.Row{"Error", "Count", "% of failed"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Label, r.Count, fmt.Sprintf("%.1f%%", r.Percent)})
	}
	t.SetColumnConfigs(rightAlign(2, 3))
	t.Render()
}

func ff(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// PrintBenchBanner prints the parameters of a bench run before it starts.
func PrintBenchBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== Push Service Latency Benchmark ===")
	fmt.Fprintf(w, "Target:                 %s\n", cfg.TargetURL)
	fmt.Fprintf(w, "Concurrent connections: %d\n", cfg.Connections)
	fmt.Fprintf(w, "Push count:             %d (concurrency %d)\n", cfg.PushCount, cfg.PushConcurrency)
	fmt.Fprintf(w, "E2E messages:           %d\n", cfg.E2EMessages)
	fmt.Fprintf(w, "Broadcast listeners:    %d\n", cfg.BroadcastClients)
	fmt.Fprintln(w, "Override with HOST, CONCURRENT_CONNECTIONS, PUSH_COUNT, PUSH_CONCURRENCY and E2E_MESSAGES.")
}

// PrintBenchReport outputs the human-readable summary of a bench run.
func PrintBenchReport(w io.Writer, r bench.Results) {
	fmt.Fprintf(w, "\n--- Benchmark Results: %s ---\n", r.Target)
	if r.Interrupted {
		fmt.Fprintf(w, "%s run interrupted, partial results\n", styleWarn.Render(MarkWarn))
	}

	health := fmt.Sprintf("Health: %s %.2fms", stylePass.Render(MarkPass), r.Health.LatencyMs)
	if r.Health.TotalConnections != nil {
		health += fmt.Sprintf(" (server reports %d connections)", *r.Health.TotalConnections)
	}
	fmt.Fprintln(w, health)

	lat := newTable(w, "Latency (ms)")
	lat.AppendHeader(table.Row{"Scenario", "Count", "Min", "Mean", "P50", "P95", "P99", "Max"})
	for _, name := range []string{
		bench.ScenarioConnect, bench.ScenarioConnectConcurrent,
		bench.ScenarioPush, bench.ScenarioE2E, bench.ScenarioBroadcast,
	} {
		s, _ := r.Latency(name)
		if s == nil {
			lat.AppendRow(table.Row{name, 0, "-", "-", "-", "-", "-", "-"})
			continue
		}
		lat.AppendRow(table.Row{name, s.Count, ff(s.Min), ff(s.Mean), ff(s.P50), ff(s.P95), ff(s.P99), ff(s.Max)})
	}
	lat.SetColumnConfigs(rightAlign(2, 3, 4, 5, 6, 7, 8))
	lat.Render()

	c, p, e, b := r.Connect, r.Push, r.E2E, r.Broadcast
	outcome := newTable(w, "Outcome")
	outcome.AppendHeader(table.Row{"Scenario", "OK", "Failed", "", "Detail"})
	outcome.AppendRows([]table.Row{
		{bench.ScenarioConnect, countOf(c.Single), c.SingleFailures, markCounts(countOf(c.Single), c.SingleFailures), ""},
		{bench.ScenarioConnectConcurrent, c.Successes, c.Failures, markCounts(c.Successes, c.Failures),
			fmt.Sprintf("%.1f conn/s over %.0fms", c.Throughput, c.ElapsedMs)},
		{bench.ScenarioPush, p.Successes, p.Failures, markCounts(p.Successes, p.Failures),
			fmt.Sprintf("%.1f msg/s over %.0fms", p.Throughput, p.ElapsedMs)},
		{bench.ScenarioE2E, e.Successes, e.Failures, markCounts(e.Successes, e.Failures),
			e2eDetail(e)},
		{bench.ScenarioBroadcast, b.Received, b.Listeners - b.Received + b.ConnectFailures,
			markCounts(b.Received, b.Listeners-b.Received+b.ConnectFailures), broadcastDetail(b)},
	})
	outcome.SetColumnConfigs(rightAlign(2, 3))
	outcome.Render()

	writeErrorTable(w, "connect errors", c.Errors, int64(c.SingleFailures+c.Failures))
	writeErrorTable(w, "push errors", p.Errors, int64(p.Failures))
	writeErrorTable(w, "e2e errors", e.Errors, int64(e.Failures))
}

func countOf(s *metrics.Summary) int {
	if s == nil {
		return 0
	}
	return s.Count
}

func markCounts(ok, failed int) string {
	if ok+failed == 0 {
		return ""
	}
	return mark(percent(int64(ok), int64(ok+failed)))
}

func broadcastDetail(b bench.BroadcastResult) string {
	if b.Error != "" {
		return b.Error
	}
	if b.Listeners == 0 {
		return ""
	}
	if !b.Complete {
		return fmt.Sprintf("%d/%d listeners received, spread %.2fms", b.Received, b.Listeners, b.SpreadMs)
	}
	return fmt.Sprintf("all %d received in %.2fms, spread %.2fms", b.Listeners, b.AllReceivedMs, b.SpreadMs)
}

func e2eDetail(e bench.E2EResult) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Timeouts > 0:
		return fmt.Sprintf("%d not delivered in time", e.Timeouts)
	default:
		return ""
	}
}

// PrintThresholdResults prints one line per evaluated threshold.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		style := stylePass
		if !r.Pass {
			style = styleFail
		}
		fmt.Fprintf(w, "  %s\n", style.Render(r.Message))
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
