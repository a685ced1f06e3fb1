// Package stt defines the gateway to batch Speech-to-Text providers.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Result is the transcription of one audio window.
type Result struct {
	Text       string
	Confidence float64
}

// Gateway submits a PCM window to a transcription provider.
type Gateway interface {
	// Transcribe sends 16-bit little-endian mono PCM sampled at sampleRate and
	// returns the recognised text. Implementations must honour ctx cancellation
	// and deadlines and return one of the typed errors below on failure.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}

// GatewayFunc adapts an ordinary function to the Gateway interface.
type GatewayFunc func(ctx context.Context, pcm []byte, sampleRate int) (Result, error)

// Transcribe calls f.
func (f GatewayFunc) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	return f(ctx, pcm, sampleRate)
}

// Error kinds reported by gateways.
var (
	ErrTimeout            = errors.New("transcription timed out")
	ErrRateLimited        = errors.New("transcription rate limited")
	ErrServiceUnavailable = errors.New("transcription service unavailable")
	ErrInvalidAudio       = errors.New("invalid audio")
)

// Error codes carried on error events.
const (
	CodeTimeout            = "timeout"
	CodeRateLimited        = "rate_limited"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidAudio       = "invalid_audio"
	CodeUnknown            = "unknown"
)

// GatewayError wraps a provider failure with its kind.
type GatewayError struct {
	Provider string
	Kind     error // one of the Err* sentinels, or nil when unclassified
	Err      error
}

func (e *GatewayError) Error() string {
	kind := CodeUnknown
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *GatewayError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds a GatewayError.
func NewError(provider string, kind, err error) error {
	return &GatewayError{Provider: provider, Kind: kind, Err: err}
}

// Code maps err onto the code reported to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrServiceUnavailable):
		return CodeServiceUnavailable
	case errors.Is(err, ErrInvalidAudio):
		return CodeInvalidAudio
	default:
		return CodeUnknown
	}
}
