package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ai-live-transcription-service/internal/config"
	"ai-live-transcription-service/internal/events"
	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
	"ai-live-transcription-service/internal/service/audio"
	"ai-live-transcription-service/internal/service/overlap"
	"ai-live-transcription-service/internal/service/registry"
	"ai-live-transcription-service/internal/service/stt"
	"ai-live-transcription-service/internal/service/stt/google"
	"ai-live-transcription-service/internal/service/stt/mock"
	"ai-live-transcription-service/internal/service/stt/openai"
	"ai-live-transcription-service/internal/service/vad"
	"ai-live-transcription-service/internal/service/window"
	"ai-live-transcription-service/internal/storage/sqlite"
)

// ErrDraining is reported by Ready once shutdown has begun.
var ErrDraining = errors.New("service is draining")

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry *registry.Registry
	Gateway  stt.Gateway
	Sinks    *events.Sinks
	Store    *sqlite.TranscriptStore // nil when SQLite is disabled

	sessionCfg audio.Config
	detector   vad.Detector
	resolver   *overlap.Resolver
	metrics    *metrics.Metrics
	closers    []io.Closer
	draining   atomic.Bool
}

// New constructs the application from cfg: logging, the STT gateway, the
// persistence sinks and the session registry.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Init(logging.Config{
		Service:    cfg.Service.Principal,
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		metrics: metrics.DefaultMetrics,
	}

	var err error
	if a.Gateway, err = a.newGateway(ctx); err != nil {
		return nil, err
	}

	if a.detector, err = vad.NewEnergyDetector(cfg.VAD.Threshold, vad.ParseMeasure(cfg.VAD.Measure)); err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = overlap.New(overlap.WithFuzzyThreshold(cfg.Session.FuzzyThreshold))
	a.sessionCfg = sessionConfig(cfg)

	publisher := events.New(&events.Config{
		Enabled:    cfg.Kafka.Enabled,
		Brokers:    cfg.Kafka.Brokers,
		TopicFinal: cfg.Kafka.TopicFinal,
		TopicError: cfg.Kafka.TopicError,
		Principal:  cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, publisher)
	sinks := []events.FinalSink{publisher}

	if cfg.Storage.SQLitePath != "" {
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
		a.closers = append(a.closers, store)
		sinks = append(sinks, store)
	}
	a.Sinks = events.NewSinks(a.metrics, sinks...)
	a.Registry = registry.New(a.metrics)

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Dur("window", cfg.Window.Length).
		Dur("slide", cfg.Window.Slide).
		Int("sinks", a.Sinks.Len()).
		Msg("Live transcription service application created")
	return a, nil
}

func (a *Application) newGateway(ctx context.Context) (stt.Gateway, error) {
	cfg := a.Cfg.STT

	var (
		g        stt.Gateway
		provider string
	)
	switch cfg.Provider {
	case config.ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.LanguageCode
		gcfg.AudioEncoding = cfg.AudioEncoding
		gcfg.Model = cfg.Model
		gcfg.CredentialsFile = cfg.CredentialsFile
		adapter, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, fmt.Errorf("create google gateway: %w", err)
		}
		a.closers = append(a.closers, adapter)
		g, provider = adapter, google.Provider
	case config.ProviderOpenAI:
		adapter, err := openai.New(openai.Config{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: languageOnly(cfg.LanguageCode),
		})
		if err != nil {
			return nil, fmt.Errorf("create openai gateway: %w", err)
		}
		g, provider = adapter, openai.Provider
	default:
		var opts []mock.Option
		if cfg.MockDelay > 0 {
			opts = append(opts, mock.WithDelay(cfg.MockDelay))
		}
		g, provider = mock.New(opts...), mock.Provider
	}

	return stt.Instrument(g, provider, a.metrics), nil
}

// languageOnly turns a BCP-47 tag such as en-US into its ISO-639-1 part.
func languageOnly(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}

func sessionConfig(cfg *config.Config) audio.Config {
	sc := audio.DefaultConfig()
	sc.Window = window.Config{
		SampleRate: cfg.Window.SampleRateHz,
		Length:     cfg.Window.Length,
		Slide:      cfg.Window.Slide,
	}
	sc.GatewayTimeout = cfg.STT.Timeout
	sc.FlushTimeout = cfg.Session.FlushTimeout
	sc.PersistTimeout = cfg.Session.PersistTimeout
	sc.TailWords = cfg.Session.TailWords
	sc.MaxFrameBytes = cfg.Session.MaxFrameBytes
	sc.GateSilence = cfg.Session.GateSilence
	sc.SilenceGrace = cfg.VAD.SilenceGrace
	sc.EventBuffer = cfg.Session.EventBuffer
	return sc
}

// NewSession creates a session orchestrator wired to the shared gateway and
// sinks. The caller registers it.
func (a *Application) NewSession(id string) (*audio.Orchestrator, error) {
	if a.draining.Load() {
		return nil, ErrDraining
	}
	return audio.New(id, a.Gateway, a.sessionCfg,
		audio.WithSink(a.Sinks),
		audio.WithDetector(a.detector),
		audio.WithResolver(a.resolver),
		audio.WithMetrics(a.metrics),
	)
}

// Ready reports whether new sessions are accepted.
func (a *Application) Ready() error {
	if a.draining.Load() {
		return ErrDraining
	}
	return nil
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Live transcription service starting")
	return nil
}

// Shutdown stops accepting sessions and stops every live one.
func (a *Application) Shutdown(ctx context.Context) error {
	a.draining.Store(true)
	a.Logger.Info().Int("sessions", a.Registry.Len()).Msg("Live transcription service shutting down")
	return a.Registry.StopAll(ctx)
}

// Close releases the gateway and sinks. Call it after Shutdown.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
