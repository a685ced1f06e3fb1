// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables override the file; values that
// fail to parse keep the previous value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported STT providers.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
)

type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Window        WindowConfig        `yaml:"window"`
	VAD           VADConfig           `yaml:"vad"`
	Session       SessionConfig       `yaml:"session"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal       string        `yaml:"principal"`
	HTTPPort        string        `yaml:"httpPort"`
	GRPCPort        string        `yaml:"grpcPort"`
	MetricsAddr     string        `yaml:"metricsAddr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type STTConfig struct {
	Provider        string        `yaml:"provider"`
	LanguageCode    string        `yaml:"languageCode"`
	AudioEncoding   string        `yaml:"audioEncoding"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	CredentialsFile string        `yaml:"credentialsFile"` // google
	APIKey          string        `yaml:"apiKey"`          // openai
	BaseURL         string        `yaml:"baseURL"`         // openai
	MockDelay       time.Duration `yaml:"mockDelay"`
}

type WindowConfig struct {
	SampleRateHz int           `yaml:"sampleRateHz"`
	Length       time.Duration `yaml:"length"`
	Slide        time.Duration `yaml:"slide"`
}

type VADConfig struct {
	Threshold    float64       `yaml:"threshold"`
	Measure      string        `yaml:"measure"`
	SilenceGrace time.Duration `yaml:"silenceGrace"`
}

type SessionConfig struct {
	MaxFrameBytes  int           `yaml:"maxFrameBytes"`
	FlushTimeout   time.Duration `yaml:"flushTimeout"`
	StopTimeout    time.Duration `yaml:"stopTimeout"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
	TailWords      int           `yaml:"tailWords"`
	FuzzyThreshold float64       `yaml:"fuzzyThreshold"` // 0 keeps exact matching
	GateSilence    bool          `yaml:"gateSilence"`
	EventBuffer    int           `yaml:"eventBuffer"`
}

type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	TopicFinal string   `yaml:"topicFinal"`
	TopicError string   `yaml:"topicError"`
	Principal  string   `yaml:"principal"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"` // empty disables the store
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:       "svc-live-transcription",
			HTTPPort:        "8080",
			GRPCPort:        "50051",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 30 * time.Second,
		},
		STT: STTConfig{
			Provider:      ProviderMock,
			LanguageCode:  "en-US",
			AudioEncoding: "LINEAR16",
			Timeout:       15 * time.Second,
		},
		Window: WindowConfig{
			SampleRateHz: 16000,
			Length:       6 * time.Second,
			Slide:        5 * time.Second,
		},
		VAD: VADConfig{
			Threshold:    0.08,
			Measure:      "mean_abs",
			SilenceGrace: 800 * time.Millisecond,
		},
		Session: SessionConfig{
			MaxFrameBytes:  64 * 1024,
			FlushTimeout:   10 * time.Second,
			StopTimeout:    30 * time.Second,
			PersistTimeout: 5 * time.Second,
			TailWords:      10,
			GateSilence:    true,
			EventBuffer:    64,
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			TopicFinal: "transcripts.final",
			TopicError: "transcripts.error",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads a YAML file on top of the defaults. Unknown keys are
// rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.MetricsAddr = envOrDefault("METRICS_ADDR", c.Service.MetricsAddr)
	c.Service.ShutdownTimeout = envOrDefaultDuration("SHUTDOWN_TIMEOUT", c.Service.ShutdownTimeout)
	c.Service.AllowedOrigins = envOrDefaultList("WS_ALLOWED_ORIGINS", c.Service.AllowedOrigins)

	c.STT.Provider = strings.ToLower(envOrDefault("STT_PROVIDER", c.STT.Provider))
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.Model = envOrDefault("STT_MODEL", c.STT.Model)
	c.STT.Timeout = envOrDefaultDuration("STT_TIMEOUT", c.STT.Timeout)
	c.STT.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", c.STT.CredentialsFile)
	c.STT.APIKey = envOrDefault("OPENAI_API_KEY", c.STT.APIKey)
	c.STT.BaseURL = envOrDefault("OPENAI_BASE_URL", c.STT.BaseURL)
	c.STT.MockDelay = envOrDefaultDuration("STT_MOCK_DELAY", c.STT.MockDelay)

	c.Window.SampleRateHz = envOrDefaultInt("WINDOW_SAMPLE_RATE_HZ", c.Window.SampleRateHz)
	c.Window.Length = envOrDefaultDuration("WINDOW_LENGTH", c.Window.Length)
	c.Window.Slide = envOrDefaultDuration("WINDOW_SLIDE", c.Window.Slide)

	c.VAD.Threshold = envOrDefaultFloat("VAD_THRESHOLD", c.VAD.Threshold)
	c.VAD.Measure = envOrDefault("VAD_MEASURE", c.VAD.Measure)
	c.VAD.SilenceGrace = envOrDefaultDuration("VAD_SILENCE_GRACE", c.VAD.SilenceGrace)

	c.Session.MaxFrameBytes = envOrDefaultInt("SESSION_MAX_FRAME_BYTES", c.Session.MaxFrameBytes)
	c.Session.FlushTimeout = envOrDefaultDuration("SESSION_FLUSH_TIMEOUT", c.Session.FlushTimeout)
	c.Session.StopTimeout = envOrDefaultDuration("SESSION_STOP_TIMEOUT", c.Session.StopTimeout)
	c.Session.PersistTimeout = envOrDefaultDuration("SESSION_PERSIST_TIMEOUT", c.Session.PersistTimeout)
	c.Session.TailWords = envOrDefaultInt("SESSION_TAIL_WORDS", c.Session.TailWords)
	c.Session.FuzzyThreshold = envOrDefaultFloat("SESSION_FUZZY_THRESHOLD", c.Session.FuzzyThreshold)
	c.Session.GateSilence = envOrDefaultBool("SESSION_GATE_SILENCE", c.Session.GateSilence)
	c.Session.EventBuffer = envOrDefaultInt("SESSION_EVENT_BUFFER", c.Session.EventBuffer)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.TopicError = envOrDefault("KAFKA_TOPIC_ERROR", c.Kafka.TopicError)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Storage.SQLitePath = envOrDefault("STORAGE_SQLITE_PATH", c.Storage.SQLitePath)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

// Validate reports every unusable setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.STT.Provider {
	case ProviderMock, ProviderGoogle:
	case ProviderOpenAI:
		if c.STT.APIKey == "" {
			add("stt: openai provider requires OPENAI_API_KEY")
		}
	default:
		add("stt: unknown provider %q", c.STT.Provider)
	}
	if c.STT.Timeout <= 0 {
		add("stt: timeout must be positive")
	}

	if c.Window.SampleRateHz <= 0 {
		add("window: sample rate must be positive, got %d", c.Window.SampleRateHz)
	}
	if c.Window.Slide <= 0 {
		add("window: slide must be positive, got %s", c.Window.Slide)
	}
	if c.Window.Length <= c.Window.Slide {
		add("window: length %s must exceed slide %s", c.Window.Length, c.Window.Slide)
	}

	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		add("vad: threshold must be within [0,1], got %g", c.VAD.Threshold)
	}
	if c.VAD.SilenceGrace < 0 {
		add("vad: silence grace must not be negative")
	}

	if c.Session.TailWords <= 0 {
		add("session: tail words must be positive, got %d", c.Session.TailWords)
	}
	if c.Session.FuzzyThreshold < 0 || c.Session.FuzzyThreshold > 1 {
		add("session: fuzzy threshold must be within [0,1], got %g", c.Session.FuzzyThreshold)
	}
	if c.Session.FlushTimeout <= 0 || c.Session.StopTimeout <= 0 {
		add("session: flush and stop timeouts must be positive")
	}
	if c.Session.MaxFrameBytes < 0 || c.Session.EventBuffer < 0 {
		add("session: limits must not be negative")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		add("kafka: enabled without brokers")
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
