// Package events provides event publishing and persistence fan-out.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
	"ai-live-transcription-service/internal/schema"
)

// messageWriter is the subset of kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topic pairs a topic name with its writer. A nil writer means log-only.
type topic struct {
	name   string
	writer messageWriter
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers    []string
	TopicFinal string
	TopicError string
	Principal  string
	Enabled    bool
}

// Publisher persists final transcripts and session errors to separate Kafka
// topics, keyed by session ID so a session's events stay ordered. With Kafka
// disabled every event is validated and logged at debug level only.
type Publisher struct {
	finals    topic
	errors    topic
	principal string
	metrics   *metrics.Metrics
	validator *schema.Validator
	logger    zerolog.Logger
}

// New creates a publisher. A nil cfg, a disabled cfg or an empty broker list
// yields a log-only publisher.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		metrics:   metrics.DefaultMetrics,
		validator: schema.New(),
		logger:    logging.WithComponent("publisher"),
	}
	if cfg == nil {
		p.logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.finals.name = cfg.TopicFinal
	p.errors.name = cfg.TopicError

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.logger.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// generous dial timeout; broker DNS can be slow to resolve in Kubernetes
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	transport := &kafka.Transport{Dial: dialer.DialFunc}
	newWriter := func(name string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        name,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}
	p.finals.writer = newWriter(cfg.TopicFinal)
	p.errors.writer = newWriter(cfg.TopicError)

	p.logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicError", cfg.TopicError).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")
	return p
}

// Name identifies the publisher as a persistence sink.
func (p *Publisher) Name() string {
	return "kafka"
}

// PersistFinal publishes a final transcript.
func (p *Publisher) PersistFinal(ctx context.Context, ev models.TranscriptFinal) error {
	return p.publish(ctx, p.finals, ev.SessionID, ev)
}

// PersistError publishes a session error.
func (p *Publisher) PersistError(ctx context.Context, ev models.TranscriptError) error {
	return p.publish(ctx, p.errors, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, t topic, key string, event models.Event) (err error) {
	start := time.Now()
	eventType := event.EventType()
	defer func() {
		p.metrics.RecordKafkaPublish(t.name, eventType, err, time.Since(start).Seconds())
	}()

	if err = p.validator.Validate(event); err != nil {
		p.logger.Error().Err(err).Str("topic", t.name).Str("key", key).Msg("Rejected invalid event")
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	p.logger.Debug().
		Str("topic", t.name).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if t.writer == nil {
		return nil
	}

	err = t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("topic", t.name).Str("key", key).Msg("Failed to write to Kafka")
		return fmt.Errorf("write %s to %s: %w", eventType, t.name, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, t := range []topic{p.finals, p.errors} {
		if t.writer == nil {
			continue
		}
		if err := t.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}
