package stt

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
)

const tracerName = "ai-live-transcription-service/stt"

type instrumented struct {
	next     Gateway
	provider string
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// Instrument wraps g so every call records latency and error metrics and runs
// inside a span named after the provider.
func Instrument(g Gateway, provider string, m *metrics.Metrics) Gateway {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &instrumented{
		next:     g,
		provider: provider,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		logger:   logging.WithGateway(provider),
	}
}

func (g *instrumented) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	ctx, span := g.tracer.Start(ctx, "stt.Transcribe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("stt.provider", g.provider),
			attribute.Int("stt.audio_bytes", len(pcm)),
			attribute.Int("stt.sample_rate", sampleRate),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := g.next.Transcribe(ctx, pcm, sampleRate)
	elapsed := time.Since(start)
	g.metrics.RecordSTTCall(g.provider, elapsed.Seconds())

	if err != nil {
		code := Code(err)
		g.metrics.RecordSTTError(g.provider, code)
		g.logger.Debug().
			Err(err).
			Str("code", code).
			Int("audioBytes", len(pcm)).
			Dur("latency", elapsed).
			Msg("Transcription call failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("stt.text_length", len(res.Text)))
	g.logger.Trace().
		Int("audioBytes", len(pcm)).
		Int("textLength", len(res.Text)).
		Dur("latency", elapsed).
		Msg("Transcription call completed")
	return res, nil
}
