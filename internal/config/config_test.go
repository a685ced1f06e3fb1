package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "METRICS_ADDR",
		"SHUTDOWN_TIMEOUT", "WS_ALLOWED_ORIGINS",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_AUDIO_ENCODING", "STT_MODEL", "STT_TIMEOUT",
		"GOOGLE_APPLICATION_CREDENTIALS", "OPENAI_API_KEY", "OPENAI_BASE_URL", "STT_MOCK_DELAY",
		"WINDOW_SAMPLE_RATE_HZ", "WINDOW_LENGTH", "WINDOW_SLIDE",
		"VAD_THRESHOLD", "VAD_MEASURE", "VAD_SILENCE_GRACE",
		"SESSION_MAX_FRAME_BYTES", "SESSION_FLUSH_TIMEOUT", "SESSION_STOP_TIMEOUT",
		"SESSION_PERSIST_TIMEOUT", "SESSION_TAIL_WORDS", "SESSION_FUZZY_THRESHOLD",
		"SESSION_GATE_SILENCE", "SESSION_EVENT_BUFFER",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_FINAL", "KAFKA_TOPIC_ERROR", "KAFKA_PRINCIPAL",
		"STORAGE_SQLITE_PATH", "LOG_LEVEL", "LOG_FORMAT",
	} {
		if v, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

func mustLoad(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := mustLoad(t)

	if cfg.Service.Principal != "svc-live-transcription" {
		t.Errorf("expected default principal, got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" || cfg.Service.HTTPPort != "8080" {
		t.Errorf("unexpected default ports %s/%s", cfg.Service.HTTPPort, cfg.Service.GRPCPort)
	}
	if cfg.STT.Provider != ProviderMock {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.Window.SampleRateHz != 16000 || cfg.Window.Length != 6*time.Second || cfg.Window.Slide != 5*time.Second {
		t.Errorf("unexpected default window %+v", cfg.Window)
	}
	if cfg.VAD.Threshold != 0.08 {
		t.Errorf("expected default threshold 0.08, got %g", cfg.VAD.Threshold)
	}
	if cfg.Session.TailWords != 10 || !cfg.Session.GateSilence {
		t.Errorf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Storage.SQLitePath != "" {
		t.Errorf("expected SQLite disabled by default, got %q", cfg.Storage.SQLitePath)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STT_PROVIDER", "Google")
	t.Setenv("STT_LANGUAGE_CODE", "es-ES")
	t.Setenv("WINDOW_LENGTH", "8s")
	t.Setenv("WINDOW_SLIDE", "6s")
	t.Setenv("VAD_THRESHOLD", "0.2")
	t.Setenv("SESSION_GATE_SILENCE", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg := mustLoad(t)

	if cfg.Service.Principal != "custom-principal" || cfg.Service.GRPCPort != "9999" {
		t.Errorf("unexpected service config %+v", cfg.Service)
	}
	if cfg.STT.Provider != ProviderGoogle || cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("unexpected STT config %+v", cfg.STT)
	}
	if cfg.Window.Length != 8*time.Second || cfg.Window.Slide != 6*time.Second {
		t.Errorf("unexpected window %+v", cfg.Window)
	}
	if cfg.VAD.Threshold != 0.2 {
		t.Errorf("expected threshold 0.2, got %g", cfg.VAD.Threshold)
	}
	if cfg.Session.GateSilence {
		t.Error("expected silence gating disabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WINDOW_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("WINDOW_LENGTH", "six seconds")
	t.Setenv("VAD_THRESHOLD", "loud")
	t.Setenv("SESSION_GATE_SILENCE", "maybe")

	cfg := mustLoad(t)

	if cfg.Window.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Window.SampleRateHz)
	}
	if cfg.Window.Length != 6*time.Second {
		t.Errorf("expected default window length on invalid input, got %v", cfg.Window.Length)
	}
	if cfg.VAD.Threshold != 0.08 {
		t.Errorf("expected default threshold on invalid input, got %g", cfg.VAD.Threshold)
	}
	if !cfg.Session.GateSilence {
		t.Error("expected default gating on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := mustLoad(t)

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
stt:
  provider: openai
  apiKey: from-file
window:
  length: 4s
  slide: 3s
session:
  tailWords: 12
kafka:
  enabled: true
  brokers: [broker:9092]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SESSION_TAIL_WORDS", "8")

	cfg := mustLoad(t)

	if cfg.STT.Provider != ProviderOpenAI || cfg.STT.APIKey != "from-file" {
		t.Errorf("expected STT settings from file, got %+v", cfg.STT)
	}
	if cfg.Window.Length != 4*time.Second || cfg.Window.Slide != 3*time.Second {
		t.Errorf("expected durations from file, got %+v", cfg.Window)
	}
	if cfg.Session.TailWords != 8 {
		t.Errorf("expected env to override file, got %d", cfg.Session.TailWords)
	}
	if cfg.Window.SampleRateHz != 16000 {
		t.Errorf("expected unset keys to keep defaults, got %d", cfg.Window.SampleRateHz)
	}
	if !cfg.Kafka.Enabled || cfg.Kafka.Brokers[0] != "broker:9092" {
		t.Errorf("unexpected kafka config %+v", cfg.Kafka)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	os.WriteFile(unknown, []byte("window:\n  size: 6s\n"), 0o600)

	if _, err := LoadFile(unknown); err == nil {
		t.Error("expected unknown key to be rejected")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected missing file to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.STT.Provider = "whisper" }, "unknown provider"},
		{"openai without key", func(c *Config) { c.STT.Provider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"window not longer than slide", func(c *Config) { c.Window.Length = c.Window.Slide }, "must exceed slide"},
		{"zero slide", func(c *Config) { c.Window.Slide = 0 }, "slide must be positive"},
		{"zero sample rate", func(c *Config) { c.Window.SampleRateHz = 0 }, "sample rate"},
		{"threshold above one", func(c *Config) { c.VAD.Threshold = 1.5 }, "threshold"},
		{"zero tail words", func(c *Config) { c.Session.TailWords = 0 }, "tail words"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Window.SampleRateHz = 0
	cfg.VAD.Threshold = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "sample rate") || !strings.Contains(err.Error(), "threshold") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envValue)

			got := envOrDefaultBool("TEST_BOOL_VAR", tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	def := []string{"a"}
	tests := []struct {
		value string
		want  []string
	}{
		{"", def},
		{" , ", def},
		{"x", []string{"x"}},
		{"x, y ,z", []string{"x", "y", "z"}},
	}
	for _, tt := range tests {
		t.Setenv("TEST_LIST_VAR", tt.value)
		got := envOrDefaultList("TEST_LIST_VAR", def)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%q: got %v, want %v", tt.value, got, tt.want)
		}
	}
}
