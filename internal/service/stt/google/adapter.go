// Package google provides a Google Cloud Speech-to-Text gateway.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-live-transcription-service/internal/service/stt"
)

// Provider is the provider label used in errors and metrics.
const Provider = "google"

// Config holds Google Speech-to-Text settings.
type Config struct {
	LanguageCode    string
	AudioEncoding   string
	Model           string
	Punctuation     bool
	CredentialsFile string
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		AudioEncoding: "LINEAR16",
		Punctuation:   true,
	}
}

// recognizer is the subset of speech.Client used by the gateway.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type clientRecognizer struct {
	client *speech.Client
}

func (c clientRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.client.Recognize(ctx, req)
}

func (c clientRecognizer) Close() error {
	return c.client.Close()
}

// Adapter implements stt.Gateway using synchronous Recognize calls, one per
// audio window.
type Adapter struct {
	cfg    Config
	client recognizer
}

// New creates a Google gateway. Credentials come from cfg.CredentialsFile when
// set, otherwise from GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Adapter, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{cfg: cfg, client: clientRecognizer{client: c}}, nil
}

// Transcribe sends one window to Recognize.
func (a *Adapter) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	if len(pcm) == 0 || sampleRate <= 0 {
		return stt.Result{}, stt.NewError(Provider, stt.ErrInvalidAudio, nil)
	}

	resp, err := a.client.Recognize(ctx, a.request(pcm, sampleRate))
	if err != nil {
		return stt.Result{}, classify(ctx, err)
	}
	return collect(resp), nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) request(pcm []byte, sampleRate int) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            int32(sampleRate),
			AudioChannelCount:          1,
			LanguageCode:               a.cfg.LanguageCode,
			Model:                      a.cfg.Model,
			EnableAutomaticPunctuation: a.cfg.Punctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}
}

// collect joins the top alternative of every result and averages confidence.
func collect(resp *speechpb.RecognizeResponse) stt.Result {
	var (
		parts []string
		conf  float64
	)
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		conf += float64(alt.GetConfidence())
	}
	if len(parts) == 0 {
		return stt.Result{}
	}
	return stt.Result{
		Text:       strings.Join(parts, " "),
		Confidence: conf / float64(len(parts)),
	}
}

func classify(ctx context.Context, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return stt.NewError(Provider, stt.ErrTimeout, err)
	case errors.Is(ctxErr, context.Canceled):
		// the client reports codes.Canceled, which errors.Is cannot see
		return stt.NewError(Provider, nil, fmt.Errorf("%w: %w", ctxErr, err))
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return stt.NewError(Provider, stt.ErrTimeout, err)
	case codes.ResourceExhausted:
		return stt.NewError(Provider, stt.ErrRateLimited, err)
	case codes.Unavailable, codes.Internal, codes.Unknown:
		return stt.NewError(Provider, stt.ErrServiceUnavailable, err)
	case codes.InvalidArgument, codes.OutOfRange:
		return stt.NewError(Provider, stt.ErrInvalidAudio, err)
	default:
		return stt.NewError(Provider, nil, err)
	}
}

// parseAudioEncoding converts an encoding name to the Speech API enum.
// Unknown names fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
