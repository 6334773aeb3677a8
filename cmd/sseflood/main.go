package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/sseflood/internal/bench"
	"github.com/torosent/sseflood/internal/config"
	"github.com/torosent/sseflood/internal/dashboard"
	"github.com/torosent/sseflood/internal/httpclient"
	"github.com/torosent/sseflood/internal/output"
	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/threshold"
	"github.com/torosent/sseflood/internal/tracing"
)

const tracingShutdownTimeout = 5 * time.Second

// errThresholdsFailed makes the process exit non-zero after a full report.
var errThresholdsFailed = errors.New("one or more thresholds failed")

type stderrFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[sseflood] failed: %v\n", err)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sseflood",
		Short:         "Load and latency harness for server-sent event push services",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(
		newModeCmd(config.ModeStress, "Open and hold many concurrent event streams", runStress),
		newModeCmd(config.ModeBench, "Measure connect, publish, end-to-end and broadcast latency", runBench),
	)
	return root
}

type runFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error

func newModeCmd(mode config.Mode, short string, run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().FromFlags(mode, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			// Reject bad thresholds before any traffic is sent.
			if _, err := threshold.ParseMultiple(cfg.Thresholds); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cmd, cfg)
		},
	}
	config.RegisterFlags(cmd, mode)
	return cmd
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.Dashboard {
		return slog.New(slog.DiscardHandler)
	}
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func failureLogger(w io.Writer, cfg *config.Config) runner.FailureLogger {
	if !cfg.LogErrors {
		return nil
	}
	return &stderrFailureLogger{w: w}
}

func runStress(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	log := newLogger(stderr, cfg)

	headers, err := httpclient.Headers(cfg.Headers)
	if err != nil {
		return err
	}
	channelMode, err := runner.ParseChannelMode(cfg.ChannelMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := runner.Options{
		TargetURL:       cfg.TargetURL,
		Connections:     cfg.Connections,
		BatchSize:       cfg.BatchSize,
		BatchPause:      cfg.BatchPause,
		RampRate:        cfg.RampRate,
		MaxInFlight:     cfg.MaxInFlight,
		ChannelMode:     channelMode,
		ChannelPrefix:   cfg.ChannelPrefix,
		Hold:            cfg.Duration,
		ConnectTimeout:  cfg.ConnectTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		HTTPClient:      httpclient.NewStreamClient(cfg.ConnectTimeout, cfg.Connections, cfg.Insecure),
		Headers:         headers,
		Logger:          log,
		FailureLogger:   failureLogger(stderr, cfg),
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.YAMLOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(stdout)
		opts.Progress = progress.Update
	}

	orch := runner.New(opts)

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(orch.Aggregator().Snapshot, dashboard.RunConfig{
			TargetURL:   cfg.TargetURL,
			Connections: cfg.Connections,
			BatchSize:   cfg.BatchSize,
			BatchPause:  cfg.BatchPause,
			RampRate:    cfg.RampRate,
			MaxInFlight: cfg.MaxInFlight,
			ChannelMode: cfg.ChannelMode,
			Duration:    cfg.Duration,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	snap := orch.Run(ctx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	return finish(stdout, stderr, cfg, snap, threshold.StressSource(snap), func(w io.Writer) {
		output.PrintStressReport(w, snap)
	})
}

func runBench(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	log := newLogger(stderr, cfg)

	headers, err := httpclient.Headers(cfg.Headers)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown", "err", err)
		}
	}()

	publisher := httpclient.NewPublisher(cfg.TargetURL,
		httpclient.NewClient(bench.DefaultPushTimeout, cfg.Insecure),
		httpclient.WithHeaders(headers),
		httpclient.WithTracing(tp.Tracer(), tp.ShouldPropagate()),
	)
	streamConns := max(cfg.Connections, cfg.BroadcastClients) + 1

	suite := bench.NewSuite(bench.Options{
		TargetURL:        cfg.TargetURL,
		Headers:          headers,
		StreamClient:     httpclient.NewStreamClient(cfg.ConnectTimeout, streamConns, cfg.Insecure),
		Publisher:        publisher,
		Connections:      cfg.Connections,
		WarmupSamples:    cfg.WarmupSamples,
		PushCount:        cfg.PushCount,
		PushConcurrency:  cfg.PushConcurrency,
		E2EMessages:      cfg.E2EMessages,
		BroadcastClients: cfg.BroadcastClients,
		Poll:             runner.PollPolicy{Attempts: cfg.PollAttempts, Interval: cfg.PollInterval},
		ConnectTimeout:   cfg.ConnectTimeout,
		Tracer:           tp.Tracer(),
		Logger:           log,
		FailureLogger:    failureLogger(stderr, cfg),
	})

	textOutput := !cfg.JSONOutput && !cfg.YAMLOutput
	if textOutput {
		output.PrintBenchBanner(stdout, cfg)
	}

	res, err := suite.Run(ctx)
	if err != nil {
		return err
	}

	return finish(stdout, stderr, cfg, res, threshold.BenchSource(res), func(w io.Writer) {
		output.PrintBenchReport(w, res)
	})
}

// finish prints the report in the selected format, evaluates thresholds and
// appends the history line.
func finish(stdout, stderr io.Writer, cfg *config.Config, result any, src threshold.Source, printText func(io.Writer)) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(src)

	switch {
	case cfg.JSONOutput:
		err = output.PrintJSONReport(stdout, reportWithThresholds(result, results))
	case cfg.YAMLOutput:
		err = output.PrintYAMLReport(stdout, reportWithThresholds(result, results))
	default:
		printText(stdout)
		output.PrintThresholdResults(stdout, results)
	}
	if err != nil {
		return err
	}

	if cfg.HistoryFile != "" {
		entry := output.HistoryEntry{
			Time:   time.Now(),
			Mode:   string(cfg.Mode),
			Target: cfg.TargetURL,
			Result: result,
		}
		if len(results) > 0 {
			passed := threshold.AllPassed(results)
			entry.Thresholds = &passed
		}
		if err := output.AppendHistory(cfg.HistoryFile, entry); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
	}

	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

type thresholdLine struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
	Message   string  `json:"message" yaml:"message"`
}

type structuredReport struct {
	Result     any             `json:"result" yaml:"result"`
	Thresholds []thresholdLine `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

func reportWithThresholds(result any, results []threshold.Result) any {
	if len(results) == 0 {
		return result
	}
	lines := make([]thresholdLine, len(results))
	for i, r := range results {
		lines[i] = thresholdLine{Threshold: r.Threshold.Raw, Actual: r.Actual, Pass: r.Pass, Message: r.Message}
	}
	return structuredReport{Result: result, Thresholds: lines}
}
