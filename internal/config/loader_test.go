package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{" 456 ", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}

	if _, err := asInt("ten"); err == nil {
		t.Error("asInt(ten) should fail")
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{"30", 30 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{10, 10 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := asDuration("soon"); err == nil {
		t.Error("asDuration(soon) should fail")
	}
}

func TestAsStringSliceSplitsCommas(t *testing.T) {
	got, err := asStringSlice("e2e:p99 < 200, push:p50 < 20,")
	if err != nil {
		t.Fatalf("asStringSlice() error = %v", err)
	}
	if len(got) != 2 || got[0] != "e2e:p99 < 200" || got[1] != "push:p50 < 20" {
		t.Fatalf("asStringSlice() = %q", got)
	}
}

func TestKeyForms(t *testing.T) {
	got := keyForms("max_in_flight")
	want := []string{"max_in_flight", "maxinflight", "max-in-flight"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keyForms() = %v, want %v", got, want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults(ModeBench)
	settings := map[string]interface{}{
		"target":                 "http://example.com",
		"concurrent_connections": 12,
		"connecttimeout":         "5s",
		"e2e-messages":           "8",
		"insecure":               "true",
		"headers": map[string]interface{}{
			"content-type": "application/json",
		},
		"tracing": map[string]interface{}{
			"protocol":     "http",
			"service_name": "bench-runner",
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Connections != 12 {
		t.Errorf("Connections = %d, want 12", cfg.Connections)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
	if cfg.E2EMessages != 8 {
		t.Errorf("E2EMessages = %d, want 8", cfg.E2EMessages)
	}
	if !cfg.Insecure {
		t.Error("Insecure = false, want true")
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.ServiceName != "bench-runner" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("tracing sample rate default lost: %g", cfg.Tracing.SampleRate)
	}
}

func TestApplyConfigSettingsReportsField(t *testing.T) {
	cfg := Defaults(ModeStress)
	err := applyConfigSettings(&cfg, map[string]interface{}{"batch": "lots"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); len(got) < 6 || got[:6] != "batch:" {
		t.Fatalf("error %q should name the setting", got)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults(ModeBench)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs, ModeBench)

	args := []string{
		"--push-count=5",
		"--poll-interval=25ms",
		"--header=x-test=123",
		"--json-output",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.PushCount != 5 {
		t.Errorf("PushCount = %d, want 5", cfg.PushCount)
	}
	if cfg.PollInterval != 25*time.Millisecond {
		t.Errorf("PollInterval = %s, want 25ms", cfg.PollInterval)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if !cfg.JSONOutput {
		t.Error("JSONOutput = false, want true")
	}
	if cfg.E2EMessages != DefaultE2EMessages {
		t.Errorf("unchanged flag overrode E2EMessages: %d", cfg.E2EMessages)
	}
}
