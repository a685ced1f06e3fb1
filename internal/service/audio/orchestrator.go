// Package audio runs the per-session transcription pipeline.
//
// Every session owns one goroutine that serialises frame handling, window
// dispatch and result processing. Gateway calls run in their own goroutine but
// at most one is outstanding per session and at most one further window waits
// behind it, so finals are produced in capture order.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
	"ai-live-transcription-service/internal/service/overlap"
	"ai-live-transcription-service/internal/service/pcm"
	"ai-live-transcription-service/internal/service/session"
	"ai-live-transcription-service/internal/service/stt"
	"ai-live-transcription-service/internal/service/vad"
	"ai-live-transcription-service/internal/service/window"
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid session configuration")

// Sink persists what a session emits. Implementations own their retry policy;
// the session never retries.
type Sink interface {
	PersistFinal(ctx context.Context, ev models.TranscriptFinal) error
	PersistError(ctx context.Context, ev models.TranscriptError) error
}

// Config holds per-session pipeline settings.
type Config struct {
	Window         window.Config
	GatewayTimeout time.Duration // per window call
	FlushTimeout   time.Duration // for the call made while stopping
	PersistTimeout time.Duration
	TailWords      int // finalized words kept for overlap removal
	MaxFrameBytes  int // 0 disables the frame size check
	GateSilence    bool
	SilenceGrace   time.Duration // trailing non-speech that tags a final as "silence"
	EventBuffer    int
	PersistBuffer  int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:         window.DefaultConfig(),
		GatewayTimeout: 15 * time.Second,
		FlushTimeout:   10 * time.Second,
		PersistTimeout: 5 * time.Second,
		TailWords:      overlap.DefaultTailWords,
		MaxFrameBytes:  64 * 1024,
		GateSilence:    true,
		SilenceGrace:   800 * time.Millisecond,
		EventBuffer:    64,
		PersistBuffer:  64,
	}
}

// Validate rejects settings a session cannot start with.
func (c Config) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.GatewayTimeout <= 0:
		return fmt.Errorf("%w: gateway timeout must be positive", ErrInvalidConfig)
	case c.FlushTimeout <= 0:
		return fmt.Errorf("%w: flush timeout must be positive", ErrInvalidConfig)
	case c.TailWords <= 0:
		return fmt.Errorf("%w: tail words must be positive", ErrInvalidConfig)
	case c.MaxFrameBytes < 0, c.EventBuffer < 0, c.PersistBuffer < 0, c.SilenceGrace < 0, c.PersistTimeout < 0:
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	return nil
}

// Stats is a snapshot of session counters.
type Stats struct {
	State             session.State
	CreatedAt         time.Time
	FramesAccepted    int64
	FramesDropped     int64
	WindowsDispatched int64
	WindowsSuppressed int64
	WindowsDropped    int64
	Finals            int64
	GatewayErrors     int64
	AudioProcessed    time.Duration
	LastFinal         string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink persists finals and errors.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithDetector overrides the default energy detector.
func WithDetector(d vad.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithResolver overrides the exact-match overlap resolver.
func WithResolver(r *overlap.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithMetrics overrides metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger overrides the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

type job struct {
	win    window.Window
	reason string
}

type callResult struct {
	job job
	res stt.Result
	err error
}

type persistJob struct {
	final *models.TranscriptFinal
	err   *models.TranscriptError
}

// Orchestrator owns one session: it feeds frames through detection and
// windowing, transcribes windows, strips overlap and emits events.
type Orchestrator struct {
	id        string
	cfg       Config
	gateway   stt.Gateway
	detector  vad.Detector
	resolver  *overlap.Resolver
	sink      Sink
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	lifecycle *session.Lifecycle
	createdAt time.Time

	ctx   context.Context // parent of every gateway call
	abort context.CancelFunc

	frames   chan []byte
	results  chan callResult
	events   chan models.Event
	persistQ chan persistJob
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// owned by the run goroutine
	buf           *window.Buffer
	frameSeq      uint64
	eventSeq      uint64
	lastWords     []string
	lastSpeechEnd int64 // absolute sample index; -1 before any speech
	graceSamples  int64
	inFlight      bool
	cancelCall    context.CancelFunc // cancels the in-flight call
	pending       *job

	statsMu sync.Mutex
	stats   Stats
}

// New validates cfg and starts the session goroutine in CONNECTING state.
func New(id string, gateway stt.Gateway, cfg Config, opts ...Option) (*Orchestrator, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: nil gateway", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buf, err := window.New(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := &Orchestrator{
		id:            id,
		cfg:           cfg,
		gateway:       gateway,
		createdAt:     time.Now(),
		frames:        make(chan []byte),
		results:       make(chan callResult, 1),
		events:        make(chan models.Event, cfg.EventBuffer),
		stopping:      make(chan struct{}),
		done:          make(chan struct{}),
		buf:           buf,
		lastSpeechEnd: -1,
		graceSamples:  int64(cfg.SilenceGrace) * int64(cfg.Window.SampleRate) / int64(time.Second),
		logger:        logging.WithSession(id),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.detector == nil {
		o.detector = vad.Default()
	}
	if o.resolver == nil {
		o.resolver = overlap.New()
	}
	if o.metrics == nil {
		o.metrics = metrics.DefaultMetrics
	}
	o.stats.CreatedAt = o.createdAt
	o.lifecycle = session.NewLifecycle(o.onTransition)
	o.ctx, o.abort = context.WithCancel(context.Background())

	if o.sink != nil {
		o.persistQ = make(chan persistJob, cfg.PersistBuffer)
		o.wg.Add(1)
		go o.persistLoop()
	}
	go o.run()

	return o, nil
}

// ID returns the session ID.
func (o *Orchestrator) ID() string {
	return o.id
}

// CreatedAt returns when the session was constructed.
func (o *Orchestrator) CreatedAt() time.Time {
	return o.createdAt
}

// State returns the lifecycle state.
func (o *Orchestrator) State() session.State {
	return o.lifecycle.State()
}

// Events returns the outbound event stream. It is closed once the session is
// STOPPED. The consumer must keep draining it; a full buffer stalls the
// session.
func (o *Orchestrator) Events() <-chan models.Event {
	return o.events
}

// Done is closed when the session reaches STOPPED.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Start marks the transport handshake complete: CONNECTING → STREAMING.
func (o *Orchestrator) Start() error {
	return o.lifecycle.Start()
}

// Pause stops feeding frames to detection and buffering. Buffered audio and
// overlap state are kept.
func (o *Orchestrator) Pause() error {
	return o.lifecycle.Pause()
}

// Resume continues a paused session where it left off.
func (o *Orchestrator) Resume() error {
	return o.lifecycle.Resume()
}

// Submit hands one binary PCM frame to the session and takes ownership of
// payload. It blocks until the session goroutine accepts the frame and returns
// session.ErrStopped once a stop has begun. Frames that arrive while the
// session is not STREAMING, or that are malformed, are accepted and dropped.
func (o *Orchestrator) Submit(ctx context.Context, payload []byte) error {
	select {
	case <-o.stopping:
		return session.ErrStopped
	default:
	}

	select {
	case o.frames <- payload:
		return nil
	case <-o.stopping:
		return session.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop moves the session to STOPPING, cancels the in-flight call, discards the
// queued window, transcribes the audio not yet covered by a window in one
// flush call and waits for STOPPED. If ctx ends first the flush is cancelled
// too and Stop returns without waiting further. Stop is idempotent.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() {
		o.lifecycle.BeginStop()
		close(o.stopping)
	})

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		o.abort()
		return fmt.Errorf("stop session %s: %w", o.id, ctx.Err())
	}
}

// Stats returns a snapshot of the session counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	s := o.stats
	s.State = o.lifecycle.State()
	return s
}

func (o *Orchestrator) onTransition(from, to session.State) {
	o.metrics.RecordTransition(to.String())
	o.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Session state changed")
}

func (o *Orchestrator) run() {
	defer close(o.done)

	for {
		select {
		case payload := <-o.frames:
			o.handleFrame(payload)
		case r := <-o.results:
			o.handleResult(r)
		case <-o.stopping:
			o.shutdown()
			return
		}
	}
}

func (o *Orchestrator) handleFrame(payload []byte) {
	o.frameSeq++

	switch state := o.lifecycle.State(); state {
	case session.StateStreaming:
	case session.StatePaused:
		o.dropFrame("paused")
		return
	default:
		o.logger.Debug().Str("state", state.String()).Msg("Dropping frame outside STREAMING")
		o.dropFrame("not_streaming")
		return
	}

	frame, err := pcm.DecodeFrame(o.frameSeq, payload, o.cfg.MaxFrameBytes)
	if err != nil {
		o.logger.Warn().Err(err).Uint64("frameSeq", o.frameSeq).Msg("Dropping malformed frame")
		o.dropFrame("malformed")
		return
	}

	vr := o.detector.Classify(frame.Samples)
	o.buf.Append(frame.Samples)
	if vr.IsSpeech {
		o.lastSpeechEnd = o.buf.Total()
	}

	played := pcm.Duration(int64(frame.Len()), o.cfg.Window.SampleRate)
	o.updateStats(func(s *Stats) {
		s.FramesAccepted++
		s.AudioProcessed += played
	})
	o.metrics.RecordFrame(played.Seconds())

	for {
		w, ok := o.buf.Ready()
		if !ok {
			break
		}
		o.metrics.RecordWindowReady()
		o.offer(job{win: w, reason: o.reasonFor(w)})
	}
}

func (o *Orchestrator) dropFrame(reason string) {
	o.updateStats(func(s *Stats) { s.FramesDropped++ })
	o.metrics.RecordFrameDropped(reason)
}

// hasSpeech reports whether any speech frame overlaps w. Windows are pulled
// after every append, so the latest speech frame ending after w.Start must
// also start before w.End.
func (o *Orchestrator) hasSpeech(w window.Window) bool {
	return o.lastSpeechEnd > w.Start
}

func (o *Orchestrator) reasonFor(w window.Window) string {
	if o.graceSamples <= 0 {
		return models.ReasonWindow
	}
	if o.lastSpeechEnd < 0 || w.End()-o.lastSpeechEnd >= o.graceSamples {
		return models.ReasonSilence
	}
	return models.ReasonWindow
}

// offer dispatches j, or queues it behind the outstanding call. A queued
// window that is still waiting when another arrives is dropped.
func (o *Orchestrator) offer(j job) {
	if o.cfg.GateSilence && !o.hasSpeech(j.win) {
		o.suppress(j, "silence")
		return
	}
	if !o.inFlight {
		o.dispatch(j, o.cfg.GatewayTimeout)
		return
	}
	if o.pending != nil {
		o.dropQueued(*o.pending)
	}
	o.pending = &j
}

func (o *Orchestrator) suppress(j job, reason string) {
	o.updateStats(func(s *Stats) { s.WindowsSuppressed++ })
	o.metrics.RecordWindowSuppressed(reason)
	o.logger.Debug().
		Str("reason", reason).
		Float64("windowStart", j.win.StartSeconds()).
		Float64("windowEnd", j.win.EndSeconds()).
		Msg("Window produced no final")
}

func (o *Orchestrator) dropQueued(j job) {
	o.updateStats(func(s *Stats) { s.WindowsDropped++ })
	o.metrics.RecordWindowDropped()
	o.logger.Warn().
		Float64("windowStart", j.win.StartSeconds()).
		Float64("windowEnd", j.win.EndSeconds()).
		Int("queueDepth", 2).
		Msg("Transcription falling behind, dropping queued window")

	o.emit(models.TranscriptWarning{
		Type:      models.TypeWarning,
		SessionID: o.id,
		Code:      models.WarningBackpressure,
		Message: fmt.Sprintf("transcription is falling behind; audio %.1fs-%.1fs was skipped",
			j.win.StartSeconds(), j.win.EndSeconds()),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (o *Orchestrator) dispatch(j job, timeout time.Duration) {
	o.inFlight = true
	o.updateStats(func(s *Stats) { s.WindowsDispatched++ })
	o.metrics.RecordWindowDispatched(j.reason)
	o.logger.Debug().
		Str("reason", j.reason).
		Float64("windowStart", j.win.StartSeconds()).
		Float64("windowEnd", j.win.EndSeconds()).
		Msg("Dispatching window")

	payload := pcm.EncodeLE(j.win.Samples)
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	o.cancelCall = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		res, err := o.gateway.Transcribe(ctx, payload, j.win.SampleRate)
		o.results <- callResult{job: j, res: res, err: err}
	}()
}

func (o *Orchestrator) handleResult(r callResult) {
	o.inFlight = false
	o.cancelCall = nil

	if r.err != nil {
		o.fail(r)
	} else {
		o.finalize(r.job, r.res)
	}

	if o.pending == nil {
		return
	}
	next := *o.pending
	o.pending = nil
	if o.ctx.Err() != nil {
		return
	}
	o.dispatch(next, o.cfg.GatewayTimeout)
}

func (o *Orchestrator) fail(r callResult) {
	if o.ctx.Err() != nil && errors.Is(r.err, context.Canceled) {
		o.logger.Debug().Err(r.err).Msg("Transcription cancelled by stop")
		return
	}

	code := stt.Code(r.err)
	o.updateStats(func(s *Stats) { s.GatewayErrors++ })
	o.logger.Warn().
		Err(r.err).
		Str("code", code).
		Float64("windowStart", r.job.win.StartSeconds()).
		Float64("windowEnd", r.job.win.EndSeconds()).
		Msg("Transcription failed, skipping window")

	ev := models.TranscriptError{
		Type:      models.TypeError,
		SessionID: o.id,
		Code:      code,
		Message: fmt.Sprintf("transcription of audio %.1fs-%.1fs failed: %s",
			r.job.win.StartSeconds(), r.job.win.EndSeconds(), code),
		Timestamp: time.Now().UnixMilli(),
	}
	o.emit(ev)
	o.persist(persistJob{err: &ev})
}

func (o *Orchestrator) finalize(j job, res stt.Result) {
	text := strings.TrimSpace(o.resolver.Resolve(o.lastWords, res.Text))
	if text == "" {
		reason := "overlap"
		if strings.TrimSpace(res.Text) == "" {
			reason = "empty"
		}
		o.suppress(j, reason)
		return
	}

	o.eventSeq++
	ev := models.TranscriptFinal{
		Type:       models.TypeFinal,
		SessionID:  o.id,
		Seq:        o.eventSeq,
		Text:       text,
		Confidence: min(max(res.Confidence, 0), 1),
		Reason:     j.reason,
		Timing: models.Timing{
			Start:    j.win.StartSeconds(),
			End:      j.win.EndSeconds(),
			Duration: j.win.Duration().Seconds(),
		},
		Timestamp: time.Now().UnixMilli(),
	}

	stripped := len(overlap.Words(res.Text)) - len(overlap.Words(text))
	o.lastWords = overlap.Tail(o.lastWords, text, o.cfg.TailWords)
	o.updateStats(func(s *Stats) {
		s.Finals++
		s.LastFinal = text
	})
	o.metrics.RecordFinalTranscript(stripped)

	o.emit(ev)
	o.persist(persistJob{final: &ev})
}

// emit blocks until the consumer takes ev or the session is aborted.
func (o *Orchestrator) emit(ev models.Event) {
	select {
	case o.events <- ev:
	case <-o.ctx.Done():
		o.logger.Debug().Str("type", ev.EventType()).Msg("Dropping event after abort")
	}
}

func (o *Orchestrator) persist(j persistJob) {
	if o.persistQ == nil {
		return
	}
	select {
	case o.persistQ <- j:
	default:
		o.metrics.RecordPersist("queue", errors.New("persist queue full"))
		o.logger.Warn().Msg("Persistence falling behind, dropping event")
	}
}

func (o *Orchestrator) persistLoop() {
	defer o.wg.Done()

	for j := range o.persistQ {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if o.cfg.PersistTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, o.cfg.PersistTimeout)
		}

		var err error
		switch {
		case j.final != nil:
			err = o.sink.PersistFinal(ctx, *j.final)
		case j.err != nil:
			err = o.sink.PersistError(ctx, *j.err)
		}
		cancel()

		if err != nil {
			o.logger.Warn().Err(err).Msg("Failed to persist session event")
		}
	}
}

// shutdown runs on the session goroutine once a stop has begun.
func (o *Orchestrator) shutdown() {
	if o.pending != nil {
		o.suppress(*o.pending, "stop")
		o.pending = nil
	}
	if o.inFlight {
		o.cancelCall()
		o.settle(<-o.results)
	}

	if o.ctx.Err() == nil {
		if w, ok := o.buf.Flush(); ok {
			j := job{win: w, reason: models.ReasonStop}
			if o.cfg.GateSilence && !o.hasSpeech(w) {
				o.suppress(j, "silence")
			} else {
				o.dispatch(j, o.cfg.FlushTimeout)
				o.handleResult(<-o.results)
			}
		}
	}

	if o.persistQ != nil {
		close(o.persistQ)
	}
	o.wg.Wait()
	o.abort()

	if err := o.lifecycle.Finish(); err != nil {
		o.logger.Error().Err(err).Msg("Unexpected lifecycle state at stop")
	}
	close(o.events)

	st := o.Stats()
	o.logger.Info().
		Int64("framesAccepted", st.FramesAccepted).
		Int64("framesDropped", st.FramesDropped).
		Int64("windowsDispatched", st.WindowsDispatched).
		Int64("windowsDropped", st.WindowsDropped).
		Int64("finals", st.Finals).
		Int64("gatewayErrors", st.GatewayErrors).
		Dur("audioProcessed", st.AudioProcessed).
		Msg("Session stopped")
}

// settle takes the result of a call cancelled by stop. A result that completed
// before the cancel landed is kept; a cancellation is not reported.
func (o *Orchestrator) settle(r callResult) {
	o.inFlight = false
	o.cancelCall = nil

	switch {
	case r.err == nil:
		o.finalize(r.job, r.res)
	case errors.Is(r.err, context.Canceled):
		o.logger.Debug().
			Float64("windowStart", r.job.win.StartSeconds()).
			Float64("windowEnd", r.job.win.EndSeconds()).
			Msg("Transcription cancelled by stop")
	default:
		o.fail(r)
	}
}

func (o *Orchestrator) updateStats(fn func(*Stats)) {
	o.statsMu.Lock()
	fn(&o.stats)
	o.statsMu.Unlock()
}
