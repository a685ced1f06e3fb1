// Package mock provides a scripted STT gateway for running the service and its
// tests without cloud credentials.
//
// Unless scripted otherwise it answers every window with the next entry of
// DefaultUtterances, after an optional simulated processing delay.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-live-transcription-service/internal/service/stt"
)

// Provider is the provider label used in errors and metrics.
const Provider = "mock"

// Response is one scripted gateway answer. When Err is set, Text is ignored.
type Response struct {
	Text       string
	Confidence float64
	Err        error
}

// DefaultUtterances are returned in turn when no responses are scripted.
var DefaultUtterances = []Response{
	{Text: "I want to cancel my subscription", Confidence: 0.94},
	{Text: "Yes please go ahead", Confidence: 0.97},
	{Text: "Can you help me with my account", Confidence: 0.91},
	{Text: "I've been waiting for over an hour", Confidence: 0.89},
	{Text: "Thank you very much", Confidence: 0.98},
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithResponses scripts the answers in call order. After the script runs out
// the last response repeats.
func WithResponses(responses ...Response) Option {
	return func(g *Gateway) {
		g.responses = append([]Response(nil), responses...)
	}
}

// WithDelay simulates provider latency.
func WithDelay(d time.Duration) Option {
	return func(g *Gateway) {
		g.delay = d
	}
}

// WithFunc answers each call with fn. call counts from zero. It takes
// precedence over scripted responses.
func WithFunc(fn func(call int, pcm []byte) (stt.Result, error)) Option {
	return func(g *Gateway) {
		g.fn = fn
	}
}

// Gateway implements stt.Gateway with canned responses. It records every call
// so tests can assert on concurrency and payloads.
type Gateway struct {
	delay     time.Duration
	responses []Response
	fn        func(call int, pcm []byte) (stt.Result, error)

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	requests    [][]byte
}

// New creates a mock gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Transcribe returns the next scripted response after the configured delay.
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	g.mu.Lock()
	call := g.calls
	g.calls++
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.requests = append(g.requests, append([]byte(nil), pcm...))
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if len(pcm) == 0 || len(pcm)%2 != 0 || sampleRate <= 0 {
		return stt.Result{}, stt.NewError(Provider, stt.ErrInvalidAudio, nil)
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return stt.Result{}, contextError(ctx.Err())
		}
	} else if err := ctx.Err(); err != nil {
		return stt.Result{}, contextError(err)
	}

	if g.fn != nil {
		return g.fn(call, pcm)
	}

	resp := g.response(call)
	if resp.Err != nil {
		return stt.Result{}, resp.Err
	}
	return stt.Result{Text: resp.Text, Confidence: resp.Confidence}, nil
}

func (g *Gateway) response(call int) Response {
	if len(g.responses) == 0 {
		return DefaultUtterances[call%len(DefaultUtterances)]
	}
	if call >= len(g.responses) {
		return g.responses[len(g.responses)-1]
	}
	return g.responses[call]
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stt.NewError(Provider, stt.ErrTimeout, err)
	}
	return stt.NewError(Provider, nil, err)
}

// Calls returns how many times Transcribe was invoked.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// InFlight returns the number of calls currently running.
func (g *Gateway) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (g *Gateway) MaxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

// Requests returns copies of every payload received, in call order.
func (g *Gateway) Requests() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]byte(nil), g.requests...)
}
