// Package config loads run settings for the stress and bench commands from
// flags, the environment and an optional JSON or YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Mode selects which workload a run performs.
type Mode string

const (
	ModeStress Mode = "stress"
	ModeBench  Mode = "bench"
)

const (
	DefaultTarget          = "http://localhost:8080"
	DefaultChannelPrefix   = "stress-test"
	DefaultStressConns     = 10000
	DefaultBenchConns      = 50
	DefaultBatchSize       = 200
	DefaultBatchPause      = 10 * time.Millisecond
	DefaultConnectTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultPushCount       = 200
	DefaultPushConcurrency = 20
	DefaultE2EMessages     = 20
	DefaultBroadcast       = 10
	DefaultWarmupSamples   = 10
	DefaultPollAttempts    = 50
	DefaultPollInterval    = 100 * time.Millisecond
)

var channelModes = []string{"random", "shared", "sequential"}

type Config struct {
	Mode            Mode              `mapstructure:"-"`
	TargetURL       string            `mapstructure:"target"`
	Headers         map[string]string `mapstructure:"headers"`
	Connections     int               `mapstructure:"connections"`
	BatchSize       int               `mapstructure:"batch"`
	BatchPause      time.Duration     `mapstructure:"batch_pause"`
	RampRate        float64           `mapstructure:"ramp_rate"`
	MaxInFlight     int               `mapstructure:"max_in_flight"`
	ChannelMode     string            `mapstructure:"channel_mode"`
	ChannelPrefix   string            `mapstructure:"channel_prefix"`
	Duration        time.Duration     `mapstructure:"duration"`
	ConnectTimeout  time.Duration     `mapstructure:"connect_timeout"`
	ReadTimeout     time.Duration     `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`

	PushCount        int           `mapstructure:"push_count"`
	PushConcurrency  int           `mapstructure:"push_concurrency"`
	E2EMessages      int           `mapstructure:"e2e_messages"`
	BroadcastClients int           `mapstructure:"broadcast_clients"`
	WarmupSamples    int           `mapstructure:"warmup_samples"`
	PollAttempts     int           `mapstructure:"poll_attempts"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`

	Insecure    bool          `mapstructure:"insecure"`
	Verbose     bool          `mapstructure:"verbose"`
	LogErrors   bool          `mapstructure:"log_errors"`
	JSONOutput  bool          `mapstructure:"json_output"`
	YAMLOutput  bool          `mapstructure:"yaml_output"`
	Dashboard   bool          `mapstructure:"dashboard"`
	HistoryFile string        `mapstructure:"history_file"`
	Thresholds  []string      `mapstructure:"thresholds"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	ConfigFile  string        `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export. Tracing is off unless an
// endpoint is configured here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is known.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace headers go out on publishes.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Defaults returns the configuration used when nothing else is set.
func Defaults(mode Mode) Config {
	cfg := Config{
		Mode:             mode,
		TargetURL:        DefaultTarget,
		Headers:          map[string]string{},
		Connections:      DefaultStressConns,
		BatchSize:        DefaultBatchSize,
		BatchPause:       DefaultBatchPause,
		ChannelMode:      "random",
		ChannelPrefix:    DefaultChannelPrefix,
		ConnectTimeout:   DefaultConnectTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		PushCount:        DefaultPushCount,
		PushConcurrency:  DefaultPushConcurrency,
		E2EMessages:      DefaultE2EMessages,
		BroadcastClients: DefaultBroadcast,
		WarmupSamples:    DefaultWarmupSamples,
		PollAttempts:     DefaultPollAttempts,
		PollInterval:     DefaultPollInterval,
		Tracing:          TracingConfig{SampleRate: 1.0},
	}
	if mode == ModeBench {
		cfg.Connections = DefaultBenchConns
	}
	return cfg
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(c.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q must be an http or https URL", c.TargetURL))
	}

	switch c.Mode {
	case ModeStress, ModeBench:
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not supported", c.Mode))
	}

	// Security warnings for large runs
	if c.Connections > 5000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: %d concurrent connections configured. Ensure you have authorization to test the target system.", c.Connections))
	}
	if c.Insecure {
		warnings = append(warnings, "WARNING: TLS certificate verification is DISABLED (--insecure). Use this only against test systems.")
	}

	// Print warnings to stderr
	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.Connections < 1 {
		issues = append(issues, "connections must be >= 1")
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch must be >= 1")
	}
	if c.BatchPause < 0 {
		issues = append(issues, "batch-pause must be >= 0")
	}
	if c.RampRate < 0 {
		issues = append(issues, "ramp-rate must be >= 0")
	}
	if c.MaxInFlight < 0 {
		issues = append(issues, "max-in-flight must be >= 0")
	}
	if !validChannelMode(c.ChannelMode) {
		issues = append(issues, fmt.Sprintf("channel-mode must be one of %s, got %q", strings.Join(channelModes, ", "), c.ChannelMode))
	}
	if strings.TrimSpace(c.ChannelPrefix) == "" {
		issues = append(issues, "channel-prefix must not be empty")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.ConnectTimeout < 0 {
		issues = append(issues, "connect-timeout must be >= 0")
	}
	if c.ReadTimeout < 0 {
		issues = append(issues, "read-timeout must be >= 0")
	}
	if c.ShutdownTimeout < 0 {
		issues = append(issues, "shutdown-timeout must be >= 0")
	}

	if c.Mode == ModeBench {
		issues = append(issues, validateBench(c)...)
	}

	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	if c.Dashboard && (c.JSONOutput || c.YAMLOutput) {
		issues = append(issues, "dashboard and json-output/yaml-output are mutually exclusive")
	}
	if c.Dashboard && c.Mode == ModeBench {
		issues = append(issues, "dashboard is only available in stress mode")
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateBench(c Config) []string {
	var issues []string
	if c.PushCount < 0 {
		issues = append(issues, "push-count must be >= 0")
	}
	if c.PushConcurrency < 1 {
		issues = append(issues, "push-concurrency must be >= 1")
	}
	if c.E2EMessages < 0 {
		issues = append(issues, "e2e-messages must be >= 0")
	}
	if c.BroadcastClients < 0 {
		issues = append(issues, "broadcast-clients must be >= 0")
	}
	if c.WarmupSamples < 0 {
		issues = append(issues, "warmup-samples must be >= 0")
	}
	if c.PollAttempts < 1 {
		issues = append(issues, "poll-attempts must be >= 1")
	}
	if c.PollInterval <= 0 {
		issues = append(issues, "poll-interval must be > 0")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

func validChannelMode(mode string) bool {
	for _, m := range channelModes {
		if mode == m {
			return true
		}
	}
	return false
}
