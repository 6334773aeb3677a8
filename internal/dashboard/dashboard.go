// Package dashboard renders a live terminal view of a stress run.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/sseflood/internal/metrics"
)

const (
	refreshInterval = 500 * time.Millisecond
	historyLen      = 100
	maxErrorRows    = 10
)

// RunConfig holds stress run parameters for display.
type RunConfig struct {
	TargetURL   string
	Connections int
	BatchSize   int
	BatchPause  time.Duration
	RampRate    float64 // 0 = unlimited
	MaxInFlight int     // 0 = unbounded
	ChannelMode string
	Duration    time.Duration // 0 = until interrupted
	ConfigFile  string
}

// Dashboard renders a live terminal UI for stream stress metrics.
type Dashboard struct {
	snapshot     func() metrics.Snapshot
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid         *ui.Grid
	summaryPara  *widgets.Paragraph
	connGauge    *widgets.Gauge
	countersPara *widgets.Paragraph
	rateSpark    *widgets.SparklineGroup
	latencyPara  *widgets.Paragraph
	errorList    *widgets.List
	streamList   *widgets.List

	rateHistory   []float64
	lastConnected int64
	lastUpdate    time.Time
	config        RunConfig
}

// New initializes the terminal and creates a Dashboard. snapshot is polled
// on every refresh; shutdownFunc runs when the user presses q or Ctrl-C.
func New(snapshot func() metrics.Snapshot, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(snapshot, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(snapshot func() metrics.Snapshot, cfg RunConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		snapshot:     snapshot,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		rateHistory:  make([]float64, 0, historyLen),
		lastUpdate:   time.Now(),
		config:       cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Stream Stress"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.connGauge = widgets.NewGauge()
	d.connGauge.Title = "Connected / Total"
	d.connGauge.BarColor = ui.ColorGreen
	d.connGauge.BorderStyle.Fg = ui.ColorCyan
	d.connGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.countersPara = widgets.NewParagraph()
	d.countersPara.Title = "Counters"
	d.countersPara.Text = "Waiting for data..."
	d.countersPara.BorderStyle.Fg = ui.ColorCyan

	spark := widgets.NewSparkline()
	spark.Title = "New connections/s"
	spark.LineColor = ui.ColorGreen
	spark.Data = []float64{0}
	d.rateSpark = widgets.NewSparklineGroup(spark)
	d.rateSpark.Title = "Connect Rate"
	d.rateSpark.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Connect Latency"
	d.latencyPara.Text = "No data"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Connection Errors"
	d.errorList.Rows = []string{"[No failures](fg:green)"}
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.streamList = widgets.NewList()
	d.streamList.Title = "Stream Errors"
	d.streamList.Rows = []string{"[No failures](fg:green)"}
	d.streamList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(1.0, d.connGauge),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.35, d.countersPara),
			ui.NewCol(0.40, d.rateSpark),
			ui.NewCol(0.25, d.latencyPara),
		),
		ui.NewRow(0.44,
			ui.NewCol(0.5, d.errorList),
			ui.NewCol(0.5, d.streamList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Keep drawing until Stop cancels the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(d.snapshot(), time.Now())
			d.render()
		}
	}
}

// update refreshes all widget data from s.
func (d *Dashboard) update(s metrics.Snapshot, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dt := now.Sub(d.lastUpdate).Seconds(); dt > 0 {
		rate := float64(s.Connected-d.lastConnected) / dt
		if rate < 0 {
			rate = 0
		}
		d.rateHistory = append(d.rateHistory, rate)
		if len(d.rateHistory) > historyLen {
			d.rateHistory = d.rateHistory[1:]
		}
		d.rateSpark.Sparklines[0].Data = d.rateHistory
		d.rateSpark.Title = fmt.Sprintf("Connect Rate | Now: %.1f/s | Avg: %.1f/s", rate, s.ConnectRate())
	}
	d.lastConnected = s.Connected
	d.lastUpdate = now

	pct := 0
	if s.Total > 0 {
		pct = int(s.Connected * 100 / s.Total)
	}
	d.connGauge.Percent = min(pct, 100)
	d.connGauge.Label = fmt.Sprintf("%d / %d (%.1f%%)", s.Connected, s.Total, s.SuccessRate())

	d.summaryPara.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s",
		d.config.TargetURL, d.formatRunParams(), s.Elapsed.Round(time.Second))

	d.countersPara.Text = fmt.Sprintf(
		"Dispatched:    %d\nConnected:     %d\nFailed:        %d\nDisconnected:  %d\nCancelled:     %d\nStream failed: %d\nMessages:      %d",
		s.Dispatched, s.Connected, s.Failed, s.Disconnected, s.Cancelled, s.StreamFailed, s.Messages,
	)

	if l := s.ConnectLatency; l.Count > 0 {
		d.latencyPara.Text = fmt.Sprintf("Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms\nMax:  %.2fms",
			l.MinMs, l.MeanMs, l.P50Ms, l.P90Ms, l.P99Ms, l.MaxMs)
	}

	d.errorList.Rows = formatErrorRows(s.Errors, s.Failed)
	d.streamList.Rows = formatErrorRows(s.StreamErrors, s.StreamFailed)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatErrorRows(errs map[string]int64, failed int64) []string {
	rows := metrics.RankErrors(errs, failed)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > maxErrorRows {
		rows = rows[:maxErrorRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d (%.1f%%)", row.Label, row.Count, row.Percent))
	}
	return formatted
}

// formatRunParams formats the run parameters for display.
func (d *Dashboard) formatRunParams() string {
	cfg := d.config
	parts := []string{fmt.Sprintf("Connections: %d", cfg.Connections)}

	if cfg.BatchSize > 0 {
		parts = append(parts, fmt.Sprintf("Batch: %d every %s", cfg.BatchSize, cfg.BatchPause))
	}
	if cfg.RampRate > 0 {
		parts = append(parts, fmt.Sprintf("Ramp: %.0f/s", cfg.RampRate))
	} else {
		parts = append(parts, "Ramp: unlimited")
	}
	if cfg.MaxInFlight > 0 {
		parts = append(parts, fmt.Sprintf("In flight: %d", cfg.MaxInFlight))
	}
	if cfg.ChannelMode != "" {
		parts = append(parts, fmt.Sprintf("Channels: %s", cfg.ChannelMode))
	}
	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Hold: %s", cfg.Duration))
	} else {
		parts = append(parts, "Hold: until interrupted")
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
