package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// envBinding maps a setting to the environment variables that may carry it.
// Bindings for the same key accumulate and earlier names win.
type envBinding struct {
	key   string
	names []string
	mode  Mode // empty means every mode
}

var envBindings = []envBinding{
	{key: "target", names: []string{"SSEFLOOD_TARGET"}},
	{key: "target", names: []string{"HOST"}, mode: ModeBench},
	{key: "connections", names: []string{"SSEFLOOD_CONNECTIONS"}},
	{key: "connections", names: []string{"CONCURRENT_CONNECTIONS"}, mode: ModeBench},
	{key: "batch", names: []string{"SSEFLOOD_BATCH"}, mode: ModeStress},
	{key: "batch_pause", names: []string{"SSEFLOOD_BATCH_PAUSE"}, mode: ModeStress},
	{key: "ramp_rate", names: []string{"SSEFLOOD_RAMP_RATE"}, mode: ModeStress},
	{key: "max_in_flight", names: []string{"SSEFLOOD_MAX_IN_FLIGHT"}, mode: ModeStress},
	{key: "channel_mode", names: []string{"SSEFLOOD_CHANNEL_MODE"}},
	{key: "channel_prefix", names: []string{"SSEFLOOD_CHANNEL_PREFIX"}},
	{key: "duration", names: []string{"SSEFLOOD_DURATION"}, mode: ModeStress},
	{key: "connect_timeout", names: []string{"SSEFLOOD_CONNECT_TIMEOUT"}},
	{key: "read_timeout", names: []string{"SSEFLOOD_READ_TIMEOUT"}, mode: ModeStress},
	{key: "push_count", names: []string{"SSEFLOOD_PUSH_COUNT", "PUSH_COUNT"}, mode: ModeBench},
	{key: "push_concurrency", names: []string{"SSEFLOOD_PUSH_CONCURRENCY", "PUSH_CONCURRENCY"}, mode: ModeBench},
	{key: "e2e_messages", names: []string{"SSEFLOOD_E2E_MESSAGES", "E2E_MESSAGES"}, mode: ModeBench},
	{key: "broadcast_clients", names: []string{"SSEFLOOD_BROADCAST_CLIENTS"}, mode: ModeBench},
	{key: "insecure", names: []string{"SSEFLOOD_INSECURE"}},
	{key: "verbose", names: []string{"SSEFLOOD_VERBOSE"}},
	{key: "history_file", names: []string{"SSEFLOOD_HISTORY_FILE"}},
	{key: "tracing.endpoint", names: []string{"SSEFLOOD_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}},
	{key: "tracing.service_name", names: []string{"OTEL_SERVICE_NAME"}},
}

// Load parses command-line arguments for mode and merges them with the
// environment and an optional configuration file.
func (l Loader) Load(mode Mode, args []string) (*Config, error) {
	cmd := newFlagCommand(mode)
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	return l.FromFlags(mode, flagSet)
}

// FromFlags builds a Config from an already parsed flag set. Precedence is
// flag, then environment, then config file, then defaults.
func (Loader) FromFlags(mode Mode, flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	for _, b := range envBindings {
		if b.mode != "" && b.mode != mode {
			continue
		}
		if err := cfgViper.BindEnv(append([]string{b.key}, b.names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.key, err)
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults(mode)
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimRight(strings.TrimSpace(cfg.TargetURL), "/")
	cfg.ChannelMode = strings.ToLower(strings.TrimSpace(cfg.ChannelMode))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file or the environment
// to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	fields := []struct {
		key     string
		aliases []string
		set     func(interface{}) error
	}{
		{key: "target", set: stringSetter(&cfg.TargetURL)},
		{key: "connections", aliases: []string{"concurrent_connections"}, set: intSetter(&cfg.Connections)},
		{key: "batch", aliases: []string{"batch_size"}, set: intSetter(&cfg.BatchSize)},
		{key: "batch_pause", set: durationSetter(&cfg.BatchPause)},
		{key: "ramp_rate", set: floatSetter(&cfg.RampRate)},
		{key: "max_in_flight", set: intSetter(&cfg.MaxInFlight)},
		{key: "channel_mode", set: stringSetter(&cfg.ChannelMode)},
		{key: "channel_prefix", set: stringSetter(&cfg.ChannelPrefix)},
		{key: "duration", set: durationSetter(&cfg.Duration)},
		{key: "connect_timeout", set: durationSetter(&cfg.ConnectTimeout)},
		{key: "read_timeout", set: durationSetter(&cfg.ReadTimeout)},
		{key: "shutdown_timeout", set: durationSetter(&cfg.ShutdownTimeout)},
		{key: "push_count", set: intSetter(&cfg.PushCount)},
		{key: "push_concurrency", set: intSetter(&cfg.PushConcurrency)},
		{key: "e2e_messages", set: intSetter(&cfg.E2EMessages)},
		{key: "broadcast_clients", set: intSetter(&cfg.BroadcastClients)},
		{key: "warmup_samples", set: intSetter(&cfg.WarmupSamples)},
		{key: "poll_attempts", set: intSetter(&cfg.PollAttempts)},
		{key: "poll_interval", set: durationSetter(&cfg.PollInterval)},
		{key: "insecure", set: boolSetter(&cfg.Insecure)},
		{key: "verbose", set: boolSetter(&cfg.Verbose)},
		{key: "log_errors", set: boolSetter(&cfg.LogErrors)},
		{key: "json_output", set: boolSetter(&cfg.JSONOutput)},
		{key: "yaml_output", set: boolSetter(&cfg.YAMLOutput)},
		{key: "dashboard", set: boolSetter(&cfg.Dashboard)},
		{key: "history_file", set: stringSetter(&cfg.HistoryFile)},
	}

	for _, f := range fields {
		candidates := keyForms(f.key)
		for _, alias := range f.aliases {
			candidates = append(candidates, keyForms(alias)...)
		}
		raw, ok := lookupSetting(settings, candidates...)
		if !ok {
			continue
		}
		if err := f.set(raw); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}

	tc := base
	fields := []struct {
		key string
		set func(interface{}) error
	}{
		{"endpoint", stringSetter(&tc.Endpoint)},
		{"protocol", stringSetter(&tc.Protocol)},
		{"insecure", boolSetter(&tc.Insecure)},
		{"sample_rate", floatSetter(&tc.SampleRate)},
		{"service_name", stringSetter(&tc.ServiceName)},
	}
	for _, f := range fields {
		if raw, ok := lookupSetting(settings, keyForms(f.key)...); ok {
			if err := f.set(raw); err != nil {
				return TracingConfig{}, fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}

	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
