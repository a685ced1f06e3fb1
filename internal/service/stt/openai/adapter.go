// Package openai provides a Whisper transcription gateway backed by the
// OpenAI audio API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ai-live-transcription-service/internal/service/pcm"
	"ai-live-transcription-service/internal/service/stt"
)

// Provider is the provider label used in errors and metrics.
const Provider = "openai"

// DefaultModel is the default transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Config holds OpenAI transcription settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string // ISO-639-1, empty lets the model detect it
}

// Adapter implements stt.Gateway by uploading each window as a WAV file.
type Adapter struct {
	client oai.Client
	model  oai.AudioModel
	lang   string
}

// New constructs an OpenAI gateway. Retries are disabled: a failed window is
// reported and the session moves on.
func New(cfg Config, opts ...option.RequestOption) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai stt: api key must not be empty")
	}
	model := oai.AudioModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &Adapter{
		client: oai.NewClient(reqOpts...),
		model:  model,
		lang:   cfg.Language,
	}, nil
}

// Transcribe uploads one window.
func (a *Adapter) Transcribe(ctx context.Context, samples []byte, sampleRate int) (stt.Result, error) {
	if len(samples) == 0 || len(samples)%pcm.BytesPerSample != 0 || sampleRate <= 0 {
		return stt.Result{}, stt.NewError(Provider, stt.ErrInvalidAudio, nil)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(pcm.EncodeWAV(samples, sampleRate)), "window.wav", "audio/wav"),
		Model: a.model,
	}
	if a.lang != "" {
		params.Language = oai.String(a.lang)
	}

	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, classify(ctx, err)
	}
	return stt.Result{Text: strings.TrimSpace(resp.Text)}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stt.NewError(Provider, stt.ErrTimeout, err)
	}
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return stt.NewError(Provider, nil, fmt.Errorf("%w: %w", ctxErr, err))
	}

	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return stt.NewError(Provider, stt.ErrServiceUnavailable, err)
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return stt.NewError(Provider, stt.ErrRateLimited, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return stt.NewError(Provider, stt.ErrTimeout, err)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusRequestEntityTooLarge:
		return stt.NewError(Provider, stt.ErrInvalidAudio, err)
	case code >= 500:
		return stt.NewError(Provider, stt.ErrServiceUnavailable, err)
	default:
		return stt.NewError(Provider, nil, fmt.Errorf("status %d: %w", code, err))
	}
}
