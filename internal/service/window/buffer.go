// Package window accumulates PCM samples and cuts them into overlapping,
// fixed-length windows.
//
// Windowing is pull driven: the owner appends each frame and then asks for a
// ready window. Readiness depends only on how much audio has arrived, never on
// wall-clock time.
//
//	|<------- window ------->|
//	|<--- slide --->|<-ovl->|
//	                |<------- next window ------->|
package window

import (
	"errors"
	"fmt"
	"time"

	"ai-live-transcription-service/internal/service/pcm"
)

// ErrInvalidConfig is returned by New when window, slide or sample rate make
// no sense.
var ErrInvalidConfig = errors.New("invalid window configuration")

// Config describes window geometry.
type Config struct {
	SampleRate int
	Length     time.Duration
	Slide      time.Duration
}

// DefaultConfig returns 6s windows advancing every 5s at 16 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate: pcm.DefaultSampleRate,
		Length:     6 * time.Second,
		Slide:      5 * time.Second,
	}
}

// Overlap returns the audio shared by consecutive windows.
func (c Config) Overlap() time.Duration {
	return c.Length - c.Slide
}

// Validate checks window > slide > 0 and a positive sample rate, in
// both time and sample units.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Slide <= 0 {
		return fmt.Errorf("%w: slide must be positive, got %v", ErrInvalidConfig, c.Slide)
	}
	if c.Length <= c.Slide {
		return fmt.Errorf("%w: window %v must be longer than slide %v", ErrInvalidConfig, c.Length, c.Slide)
	}
	ws, ss := c.samples(c.Length), c.samples(c.Slide)
	if ss <= 0 || ws <= ss {
		return fmt.Errorf("%w: window %d samples must exceed slide %d samples", ErrInvalidConfig, ws, ss)
	}
	return nil
}

func (c Config) samples(d time.Duration) int {
	return int(int64(d) * int64(c.SampleRate) / int64(time.Second))
}

// Window is a materialised copy of buffered audio.
type Window struct {
	Samples    []int16
	Start      int64 // absolute sample index of Samples[0]
	SampleRate int
}

// End returns the absolute sample index one past the last sample.
func (w Window) End() int64 {
	return w.Start + int64(len(w.Samples))
}

// Len returns the number of samples.
func (w Window) Len() int {
	return len(w.Samples)
}

// StartSeconds returns the window start relative to the session start.
func (w Window) StartSeconds() float64 {
	return pcm.Seconds(w.Start, w.SampleRate)
}

// EndSeconds returns the window end relative to the session start.
func (w Window) EndSeconds() float64 {
	return pcm.Seconds(w.End(), w.SampleRate)
}

// Duration returns the play time of the window.
func (w Window) Duration() time.Duration {
	return pcm.Duration(int64(len(w.Samples)), w.SampleRate)
}

// Buffer is the sliding audio buffer for a single session. It is not safe for
// concurrent use; the owning session goroutine serialises access.
type Buffer struct {
	cfg       Config
	windowLen int
	slideLen  int

	samples    []int16 // samples[0] is absolute index base
	base       int64
	total      int64 // samples appended so far
	emittedEnd int64 // end of the last materialised window
}

// New validates cfg and creates an empty buffer.
func New(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	windowLen := cfg.samples(cfg.Length)
	return &Buffer{
		cfg:       cfg,
		windowLen: windowLen,
		slideLen:  cfg.samples(cfg.Slide),
		samples:   make([]int16, 0, windowLen+windowLen/2),
	}, nil
}

// Config returns the buffer geometry.
func (b *Buffer) Config() Config {
	return b.cfg
}

// WindowSamples returns the window length in samples.
func (b *Buffer) WindowSamples() int {
	return b.windowLen
}

// SlideSamples returns the slide length in samples.
func (b *Buffer) SlideSamples() int {
	return b.slideLen
}

// Append adds samples to the end of the buffer.
func (b *Buffer) Append(samples []int16) {
	b.samples = append(b.samples, samples...)
	b.total += int64(len(samples))
}

// Ready returns the next full window and advances the buffer by one slide,
// keeping the overlap tail for the next window. It returns false until a full
// window has accumulated since the last slide. Callers invoke it after every
// Append; a single large append may make more than one window ready.
func (b *Buffer) Ready() (Window, bool) {
	if len(b.samples) < b.windowLen {
		return Window{}, false
	}

	w := Window{
		Samples:    append([]int16(nil), b.samples[:b.windowLen]...),
		Start:      b.base,
		SampleRate: b.cfg.SampleRate,
	}
	b.emittedEnd = w.End()

	n := copy(b.samples, b.samples[b.slideLen:])
	b.samples = b.samples[:n]
	b.base += int64(b.slideLen)

	return w, true
}

// Flush materialises whatever audio has not yet been part of a window,
// prefixed by the retained overlap tail, and empties the buffer. It returns
// false when every appended sample has already been windowed.
func (b *Buffer) Flush() (Window, bool) {
	if b.total <= b.emittedEnd || len(b.samples) == 0 {
		return Window{}, false
	}

	w := Window{
		Samples:    append([]int16(nil), b.samples...),
		Start:      b.base,
		SampleRate: b.cfg.SampleRate,
	}
	b.emittedEnd = b.total
	b.base = b.total
	b.samples = b.samples[:0]

	return w, true
}

// Buffered returns the number of samples currently held.
func (b *Buffer) Buffered() int {
	return len(b.samples)
}

// Total returns the number of samples appended since creation.
func (b *Buffer) Total() int64 {
	return b.total
}

// Pending returns the number of appended samples not yet covered by any
// materialised window.
func (b *Buffer) Pending() int64 {
	return b.total - b.emittedEnd
}
