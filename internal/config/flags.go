package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the flags of mode on a cobra command.
func RegisterFlags(cmd *cobra.Command, mode Mode) {
	configureFlags(cmd.Flags(), mode)
}

// newFlagCommand creates a cobra command with all flags of mode configured.
func newFlagCommand(mode Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sseflood " + string(mode),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags(), mode)
	return cmd
}

// configureFlags sets up the CLI flags for mode on the provided flag set.
func configureFlags(flags *pflag.FlagSet, mode Mode) {
	d := Defaults(mode)

	// Target flags
	flags.StringP("target", "u", d.TargetURL, "Base URL of the push service")
	flags.StringSliceP("header", "H", nil, "Additional request header in key=value form")
	flags.BoolP("insecure", "k", false, "Skip TLS certificate verification")
	flags.Duration("connect-timeout", d.ConnectTimeout, "Time allowed for a connection to receive response headers")

	// Load control flags
	flags.IntP("connections", "c", d.Connections, "Number of streaming connections to open")
	flags.StringP("channel-mode", "m", d.ChannelMode, "Channel assignment: random, shared or sequential")
	flags.StringP("channel-prefix", "p", d.ChannelPrefix, "Channel name prefix")

	switch mode {
	case ModeStress:
		flags.IntP("batch", "b", d.BatchSize, "Connections dispatched per batch")
		flags.Duration("batch-pause", d.BatchPause, "Pause between batches")
		flags.Float64("ramp-rate", 0, "Maximum new connections per second (0 means unlimited)")
		flags.Int("max-in-flight", 0, "Maximum concurrent connections (0 means unbounded)")
		flags.DurationP("duration", "d", 0, "How long to hold connections after ramp-up (0 means until interrupted)")
		flags.Duration("read-timeout", 0, "Fail a stream when no bytes arrive for this long (0 disables it)")
		flags.Duration("shutdown-timeout", d.ShutdownTimeout, "Max time to wait for connections to close on shutdown")
		flags.Bool("dashboard", false, "Show live terminal dashboard")
	case ModeBench:
		flags.Int("push-count", d.PushCount, "Publishes sent in the throughput scenario")
		flags.Int("push-concurrency", d.PushConcurrency, "Maximum publishes in flight")
		flags.Int("e2e-messages", d.E2EMessages, "Messages correlated in the end-to-end scenario")
		flags.Int("broadcast-clients", d.BroadcastClients, "Listeners in the broadcast scenario")
		flags.Int("warmup-samples", d.WarmupSamples, "Sequential samples before concurrent connection latency")
		flags.Int("poll-attempts", d.PollAttempts, "Checks for a published marker before giving up")
		flags.Duration("poll-interval", d.PollInterval, "Delay between marker checks")
	}

	// Output flags
	flags.BoolP("verbose", "v", false, "Log every connection event")
	flags.Bool("log-errors", false, "Log each failed connection or request to stderr")
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("yaml-output", false, "Emit YAML formatted report")
	flags.String("history-file", "", "Append a JSON line with the run result to this file")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'e2e:p99 < 200')")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", d.Tracing.SampleRate, "Trace sampling ratio between 0.0 and 1.0")
	flags.String("tracing-service-name", "", "Service name reported on spans")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the environment and the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"target":               &cfg.TargetURL,
		"channel-mode":         &cfg.ChannelMode,
		"channel-prefix":       &cfg.ChannelPrefix,
		"history-file":         &cfg.HistoryFile,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			val, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = strings.TrimSpace(val)
		}
	}

	ints := map[string]*int{
		"connections":       &cfg.Connections,
		"batch":             &cfg.BatchSize,
		"max-in-flight":     &cfg.MaxInFlight,
		"push-count":        &cfg.PushCount,
		"push-concurrency":  &cfg.PushConcurrency,
		"e2e-messages":      &cfg.E2EMessages,
		"broadcast-clients": &cfg.BroadcastClients,
		"warmup-samples":    &cfg.WarmupSamples,
		"poll-attempts":     &cfg.PollAttempts,
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			val, err := fs.GetInt(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"batch-pause":      &cfg.BatchPause,
		"duration":         &cfg.Duration,
		"connect-timeout":  &cfg.ConnectTimeout,
		"read-timeout":     &cfg.ReadTimeout,
		"shutdown-timeout": &cfg.ShutdownTimeout,
		"poll-interval":    &cfg.PollInterval,
	}
	for name, dst := range durations {
		if fs.Changed(name) {
			val, err := fs.GetDuration(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	floats := map[string]*float64{
		"ramp-rate":           &cfg.RampRate,
		"tracing-sample-rate": &cfg.Tracing.SampleRate,
	}
	for name, dst := range floats {
		if fs.Changed(name) {
			val, err := fs.GetFloat64(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	bools := map[string]*bool{
		"insecure":         &cfg.Insecure,
		"verbose":          &cfg.Verbose,
		"log-errors":       &cfg.LogErrors,
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, dst := range bools {
		if fs.Changed(name) {
			val, err := fs.GetBool(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	if fs.Changed("header") {
		vals, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	return nil
}
