package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/observability/metrics"
)

// FinalSink persists final transcript segments.
type FinalSink interface {
	Name() string
	PersistFinal(ctx context.Context, ev models.TranscriptFinal) error
}

// ErrorSink optionally persists session errors.
type ErrorSink interface {
	PersistError(ctx context.Context, ev models.TranscriptError) error
}

// Sinks fans finals and errors out to every configured sink. Failures are
// logged and counted, never retried.
type Sinks struct {
	sinks   []FinalSink
	metrics *metrics.Metrics
}

// NewSinks builds a fan-out over sinks, skipping nil entries.
func NewSinks(m *metrics.Metrics, sinks ...FinalSink) *Sinks {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	s := &Sinks{metrics: m}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// Len returns the number of sinks.
func (s *Sinks) Len() int {
	return len(s.sinks)
}

// PersistFinal hands ev to every sink and joins their errors.
func (s *Sinks) PersistFinal(ctx context.Context, ev models.TranscriptFinal) error {
	var errs []error
	for _, sink := range s.sinks {
		err := sink.PersistFinal(ctx, ev)
		s.metrics.RecordPersist(sink.Name(), err)
		if err != nil {
			log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("sessionId", ev.SessionID).
				Uint64("seq", ev.Seq).
				Msg("Failed to persist final transcript")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// PersistError hands ev to every sink that implements ErrorSink.
func (s *Sinks) PersistError(ctx context.Context, ev models.TranscriptError) error {
	var errs []error
	for _, sink := range s.sinks {
		es, ok := sink.(ErrorSink)
		if !ok {
			continue
		}
		if err := es.PersistError(ctx, ev); err != nil {
			s.metrics.RecordPersist(sink.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
