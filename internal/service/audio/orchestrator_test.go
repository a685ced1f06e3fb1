package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/service/pcm"
	"ai-live-transcription-service/internal/service/session"
	"ai-live-transcription-service/internal/service/stt"
	"ai-live-transcription-service/internal/service/stt/mock"
	"ai-live-transcription-service/internal/service/window"
)

const (
	sampleRate   = 16000
	frameSamples = 320 // 20 ms
)

// speech returns a frame well above the default detection threshold.
func speech(samples int) []byte {
	s := make([]int16, samples)
	for i := range s {
		if i%2 == 0 {
			s[i] = 8000
		} else {
			s[i] = -8000
		}
	}
	return pcm.EncodeLE(s)
}

func silence(samples int) []byte {
	return make([]byte, samples*pcm.BytesPerSample)
}

// shortConfig uses 600 ms windows sliding by 500 ms.
func shortConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = window.Config{SampleRate: sampleRate, Length: 600 * time.Millisecond, Slide: 500 * time.Millisecond}
	return cfg
}

func startSession(t *testing.T, id string, g stt.Gateway, cfg Config, opts ...Option) (*Orchestrator, <-chan []models.Event) {
	t.Helper()
	o, err := New(id, g, cfg, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	out := make(chan []models.Event, 1)
	go func() {
		var evs []models.Event
		for ev := range o.Events() {
			evs = append(evs, ev)
		}
		out <- evs
	}()
	return o, out
}

// feed submits d of audio in 20 ms frames built by gen.
func feed(t *testing.T, o *Orchestrator, d time.Duration, gen func(int) []byte) {
	t.Helper()
	frames := int(d / (20 * time.Millisecond))
	for i := 0; i < frames; i++ {
		if err := o.Submit(context.Background(), gen(frameSamples)); err != nil {
			t.Fatalf("submit frame %d: %v", i, err)
		}
	}
}

// waitFor polls the session counters until cond holds. Stop cancels the
// in-flight call, so tests that expect a window's final wait for it first.
func waitFor(t *testing.T, o *Orchestrator, cond func(Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond(o.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for session, stats %+v", o.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func finalsAtLeast(n int64) func(Stats) bool {
	return func(s Stats) bool { return s.Finals >= n }
}

func stop(t *testing.T, o *Orchestrator, events <-chan []models.Event) []models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case evs := <-events:
		return evs
	case <-time.After(5 * time.Second):
		t.Fatal("event stream was not closed")
		return nil
	}
}

func finals(evs []models.Event) []models.TranscriptFinal {
	var out []models.TranscriptFinal
	for _, ev := range evs {
		if f, ok := ev.(models.TranscriptFinal); ok {
			out = append(out, f)
		}
	}
	return out
}

func ofType[T models.Event](evs []models.Event) []T {
	var out []T
	for _, ev := range evs {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	first := "so the plan for today is to review the quarterly numbers and then"
	g := mock.New(mock.WithResponses(
		mock.Response{Text: first, Confidence: 0.92},
		mock.Response{Text: "numbers and then discuss hiring", Confidence: 0.88},
	))
	o, events := startSession(t, "e2e", g, DefaultConfig())

	feed(t, o, 11*time.Second, speech)
	waitFor(t, o, finalsAtLeast(2))
	evs := stop(t, o, events)

	if g.Calls() != 2 {
		t.Fatalf("expected exactly 2 gateway calls, got %d", g.Calls())
	}
	reqs := g.Requests()
	for i, r := range reqs {
		if want := 6 * sampleRate * pcm.BytesPerSample; len(r) != want {
			t.Errorf("call %d: expected %d bytes, got %d", i, want, len(r))
		}
	}

	got := finals(evs)
	if len(got) != 2 {
		t.Fatalf("expected 2 finals, got %d: %+v", len(got), evs)
	}
	if got[0].Text != first || got[0].Timing.Start != 0 || got[0].Timing.End != 6 {
		t.Errorf("unexpected first final %+v", got[0])
	}
	if got[1].Text != "discuss hiring" {
		t.Errorf("expected overlap removed from second final, got %q", got[1].Text)
	}
	if got[1].Timing.Start != 5 || got[1].Timing.End != 11 || got[1].Timing.Duration != 6 {
		t.Errorf("unexpected second timing %+v", got[1].Timing)
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("expected sequential seq numbers, got %d, %d", got[0].Seq, got[1].Seq)
	}
	for _, f := range got {
		if f.Reason != models.ReasonWindow || f.SessionID != "e2e" || f.Type != models.TypeFinal {
			t.Errorf("unexpected final metadata %+v", f)
		}
	}

	if o.State() != session.StateStopped {
		t.Errorf("expected STOPPED, got %v", o.State())
	}
	st := o.Stats()
	if st.FramesAccepted != 550 || st.Finals != 2 || st.AudioProcessed != 11*time.Second {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.LastFinal != "discuss hiring" {
		t.Errorf("unexpected last final %q", st.LastFinal)
	}
}

func TestOrchestrator_AtMostOneInFlight(t *testing.T) {
	g := mock.New(
		mock.WithDelay(500*time.Millisecond),
		mock.WithFunc(func(call int, _ []byte) (stt.Result, error) {
			return stt.Result{Text: fmt.Sprintf("window number %d", call)}, nil
		}),
	)
	o, events := startSession(t, "slow", g, shortConfig())

	// Four windows become ready long before the first call returns.
	feed(t, o, 2100*time.Millisecond, speech)
	if calls := g.Calls(); calls > 1 {
		t.Errorf("expected at most one call while the first is outstanding, got %d", calls)
	}

	// the newest queued window goes out once the first call returns
	waitFor(t, o, finalsAtLeast(2))
	evs := stop(t, o, events)

	if g.MaxInFlight() != 1 {
		t.Errorf("expected at most one call in flight, observed %d", g.MaxInFlight())
	}
	if g.Calls() != 2 {
		t.Errorf("expected first and newest window to be transcribed, got %d calls", g.Calls())
	}

	warnings := ofType[models.TranscriptWarning](evs)
	if len(warnings) != 2 {
		t.Fatalf("expected 2 backpressure warnings, got %d", len(warnings))
	}
	for _, w := range warnings {
		if w.Code != models.WarningBackpressure {
			t.Errorf("unexpected warning code %q", w.Code)
		}
	}

	got := finals(evs)
	if len(got) != 2 {
		t.Fatalf("expected 2 finals, got %d", len(got))
	}
	if got[0].Timing.Start != 0 || got[1].Timing.Start != 1.5 {
		t.Errorf("expected windows at 0s and 1.5s, got %v and %v", got[0].Timing.Start, got[1].Timing.Start)
	}
	if st := o.Stats(); st.WindowsDropped != 2 || st.WindowsDispatched != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestOrchestrator_SessionIsolation(t *testing.T) {
	ga := mock.New(mock.WithResponses(
		mock.Response{Text: "hello world"},
		mock.Response{Text: "world again"},
	))
	gb := mock.New(mock.WithResponses(
		mock.Response{Text: "world peace"},
		mock.Response{Text: "peace now"},
	))
	a, eventsA := startSession(t, "a", ga, DefaultConfig())
	b, eventsB := startSession(t, "b", gb, DefaultConfig())

	frames := int(11 * time.Second / (20 * time.Millisecond))
	var wg sync.WaitGroup
	for _, o := range []*Orchestrator{a, b} {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				o.Submit(context.Background(), speech(frameSamples))
			}
		}(o)
	}
	wg.Wait()
	waitFor(t, a, finalsAtLeast(2))
	waitFor(t, b, finalsAtLeast(2))

	gotA := finals(stop(t, a, eventsA))
	gotB := finals(stop(t, b, eventsB))

	wantA := []string{"hello world", "again"}
	wantB := []string{"world peace", "now"}
	for name, tc := range map[string]struct {
		got  []models.TranscriptFinal
		want []string
	}{"a": {gotA, wantA}, "b": {gotB, wantB}} {
		if len(tc.got) != len(tc.want) {
			t.Fatalf("session %s: expected %d finals, got %d", name, len(tc.want), len(tc.got))
		}
		for i := range tc.want {
			if tc.got[i].Text != tc.want[i] {
				t.Errorf("session %s final %d: expected %q, got %q", name, i, tc.want[i], tc.got[i].Text)
			}
			if tc.got[i].SessionID != name {
				t.Errorf("session %s received event for %q", name, tc.got[i].SessionID)
			}
		}
	}
}

func TestOrchestrator_StopFlushesPartialWindow(t *testing.T) {
	g := mock.New(mock.WithResponses(mock.Response{Text: "short utterance", Confidence: 0.7}))
	o, events := startSession(t, "flush", g, DefaultConfig())

	feed(t, o, 2*time.Second, speech)
	if g.Calls() != 0 {
		t.Fatalf("expected no call before a full window, got %d", g.Calls())
	}
	evs := stop(t, o, events)

	if g.Calls() != 1 {
		t.Fatalf("expected exactly one flush call, got %d", g.Calls())
	}
	if n := len(g.Requests()[0]); n != 2*sampleRate*pcm.BytesPerSample {
		t.Errorf("expected 2s of audio in flush, got %d bytes", n)
	}

	got := finals(evs)
	if len(got) != 1 {
		t.Fatalf("expected 1 final, got %d", len(got))
	}
	if got[0].Reason != models.ReasonStop || got[0].Timing.End != 2 {
		t.Errorf("unexpected flush final %+v", got[0])
	}
}

func TestOrchestrator_StopFlushIncludesOverlapTail(t *testing.T) {
	g := mock.New(mock.WithResponses(
		mock.Response{Text: "alpha bravo charlie"},
		mock.Response{Text: "charlie delta"},
	))
	o, events := startSession(t, "tail", g, shortConfig())

	feed(t, o, 800*time.Millisecond, speech)
	waitFor(t, o, finalsAtLeast(1))
	got := finals(stop(t, o, events))

	if g.Calls() != 2 {
		t.Fatalf("expected window call plus flush call, got %d", g.Calls())
	}
	// overlap [500ms,600ms) plus unwindowed [600ms,800ms)
	if n := len(g.Requests()[1]); n != 4800*pcm.BytesPerSample {
		t.Errorf("expected 300ms flush payload, got %d bytes", n)
	}
	if len(got) != 2 || got[1].Text != "delta" || got[1].Timing.Start != 0.5 {
		t.Errorf("unexpected finals %+v", got)
	}
}

func TestOrchestrator_StopWithoutNewAudioMakesNoCall(t *testing.T) {
	g := mock.New()
	o, events := startSession(t, "idle", g, DefaultConfig())

	evs := stop(t, o, events)
	if g.Calls() != 0 || len(evs) != 0 {
		t.Errorf("expected no calls and no events, got %d calls, %d events", g.Calls(), len(evs))
	}
}

func TestOrchestrator_GatewayErrorDoesNotStopSession(t *testing.T) {
	g := mock.New(mock.WithResponses(
		mock.Response{Err: stt.NewError(mock.Provider, stt.ErrRateLimited, nil)},
		mock.Response{Text: "recovered"},
	))
	o, events := startSession(t, "errors", g, shortConfig())

	feed(t, o, 1100*time.Millisecond, speech)
	waitFor(t, o, func(s Stats) bool { return s.GatewayErrors == 1 && s.Finals == 1 })
	evs := stop(t, o, events)

	errs := ofType[models.TranscriptError](evs)
	if len(errs) != 1 || errs[0].Code != stt.CodeRateLimited {
		t.Fatalf("expected one rate_limited error event, got %+v", errs)
	}
	got := finals(evs)
	if len(got) != 1 || got[0].Text != "recovered" {
		t.Errorf("expected session to continue with next window, got %+v", got)
	}
	if st := o.Stats(); st.GatewayErrors != 1 {
		t.Errorf("expected 1 gateway error, got %d", st.GatewayErrors)
	}
}

func TestOrchestrator_GatewayTimeout(t *testing.T) {
	g := mock.New(mock.WithDelay(time.Second))
	cfg := shortConfig()
	cfg.GatewayTimeout = 20 * time.Millisecond
	cfg.FlushTimeout = 20 * time.Millisecond
	o, events := startSession(t, "timeout", g, cfg)

	feed(t, o, 600*time.Millisecond, speech)
	waitFor(t, o, func(s Stats) bool { return s.GatewayErrors == 1 })
	evs := stop(t, o, events)

	errs := ofType[models.TranscriptError](evs)
	if len(errs) != 1 || errs[0].Code != stt.CodeTimeout {
		t.Errorf("expected one timeout error, got %+v", errs)
	}
}

func TestOrchestrator_PauseResume(t *testing.T) {
	g := mock.New(mock.WithResponses(mock.Response{Text: "kept audio"}))
	o, events := startSession(t, "pause", g, DefaultConfig())

	feed(t, o, time.Second, speech)
	if err := o.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if o.State() != session.StatePaused {
		t.Fatalf("expected PAUSED, got %v", o.State())
	}
	feed(t, o, time.Second, speech)
	if err := o.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	feed(t, o, time.Second, speech)
	stop(t, o, events)

	st := o.Stats()
	if st.FramesDropped != 50 || st.FramesAccepted != 100 {
		t.Errorf("expected 50 dropped and 100 accepted frames, got %+v", st)
	}
	if n := len(g.Requests()[0]); n != 2*sampleRate*pcm.BytesPerSample {
		t.Errorf("expected only streamed audio in flush, got %d bytes", n)
	}
}

func TestOrchestrator_MalformedFramesDropped(t *testing.T) {
	g := mock.New(mock.WithResponses(mock.Response{Text: "still here"}))
	cfg := DefaultConfig()
	cfg.MaxFrameBytes = 1024
	o, events := startSession(t, "malformed", g, cfg)

	bad := [][]byte{nil, {1, 2, 3}, make([]byte, 2048)}
	for _, p := range bad {
		if err := o.Submit(context.Background(), p); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	feed(t, o, time.Second, speech)
	got := finals(stop(t, o, events))

	if st := o.Stats(); st.FramesDropped != 3 {
		t.Errorf("expected 3 dropped frames, got %d", st.FramesDropped)
	}
	if len(got) != 1 || got[0].Text != "still here" {
		t.Errorf("expected session to continue, got %+v", got)
	}
}

func TestOrchestrator_SilentWindowsAreNotTranscribed(t *testing.T) {
	g := mock.New()
	o, events := startSession(t, "quiet", g, shortConfig())

	feed(t, o, 1100*time.Millisecond, silence)
	stop(t, o, events)

	if g.Calls() != 0 {
		t.Errorf("expected no gateway calls for silence, got %d", g.Calls())
	}
	if st := o.Stats(); st.WindowsSuppressed != 2 {
		t.Errorf("expected 2 suppressed windows, got %d", st.WindowsSuppressed)
	}
}

func TestOrchestrator_SilenceGatingDisabled(t *testing.T) {
	g := mock.New(mock.WithResponses(mock.Response{Text: "hiss"}))
	cfg := shortConfig()
	cfg.GateSilence = false
	o, events := startSession(t, "ungated", g, cfg)

	feed(t, o, 600*time.Millisecond, silence)
	waitFor(t, o, finalsAtLeast(1))
	got := finals(stop(t, o, events))

	if g.Calls() != 1 {
		t.Errorf("expected silent window to be transcribed, got %d calls", g.Calls())
	}
	if len(got) != 1 || got[0].Reason != models.ReasonSilence {
		t.Errorf("expected silence reason, got %+v", got)
	}
}

func TestOrchestrator_SilenceReason(t *testing.T) {
	g := mock.New(mock.WithResponses(mock.Response{Text: "and that is all"}))
	o, events := startSession(t, "trailing", g, DefaultConfig())

	feed(t, o, 4*time.Second, speech)
	feed(t, o, 2*time.Second, silence)
	waitFor(t, o, finalsAtLeast(1))
	got := finals(stop(t, o, events))

	if len(got) != 1 || got[0].Reason != models.ReasonSilence {
		t.Errorf("expected final tagged silence, got %+v", got)
	}
}

func TestOrchestrator_FullOverlapSuppressed(t *testing.T) {
	g := mock.New(mock.WithResponses(
		mock.Response{Text: "we are done here"},
		mock.Response{Text: "done here"},
	))
	o, events := startSession(t, "dup", g, shortConfig())

	feed(t, o, 1100*time.Millisecond, speech)
	waitFor(t, o, func(s Stats) bool { return s.Finals == 1 && s.WindowsSuppressed == 1 })
	got := finals(stop(t, o, events))

	if g.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", g.Calls())
	}
	if len(got) != 1 {
		t.Errorf("expected fully overlapping window to be suppressed, got %+v", got)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	finals []models.TranscriptFinal
	errs   []models.TranscriptError
	fail   error
}

func (s *recordingSink) PersistFinal(ctx context.Context, ev models.TranscriptFinal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, ev)
	return s.fail
}

func (s *recordingSink) PersistError(ctx context.Context, ev models.TranscriptError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, ev)
	return s.fail
}

func TestOrchestrator_PersistsFinalsAndErrors(t *testing.T) {
	sink := &recordingSink{fail: errors.New("store unavailable")}
	g := mock.New(mock.WithResponses(
		mock.Response{Text: "first words"},
		mock.Response{Err: stt.NewError(mock.Provider, stt.ErrServiceUnavailable, nil)},
	))
	o, events := startSession(t, "persist", g, shortConfig(), WithSink(sink))

	feed(t, o, 1100*time.Millisecond, speech)
	waitFor(t, o, func(s Stats) bool { return s.Finals == 1 && s.GatewayErrors == 1 })
	evs := stop(t, o, events)

	if len(finals(evs)) != 1 {
		t.Fatalf("expected final to be emitted despite sink failure, got %+v", evs)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.finals) != 1 || sink.finals[0].Text != "first words" {
		t.Errorf("expected sink to receive the final, got %+v", sink.finals)
	}
	if len(sink.errs) != 1 || sink.errs[0].Code != stt.CodeServiceUnavailable {
		t.Errorf("expected sink to receive the error, got %+v", sink.errs)
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o, events := startSession(t, "closed", mock.New(), DefaultConfig())
	stop(t, o, events)

	if err := o.Submit(context.Background(), speech(frameSamples)); !errors.Is(err, session.ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := o.Stop(context.Background()); err != nil {
		t.Errorf("expected repeated stop to succeed, got %v", err)
	}
	if err := o.Pause(); !errors.Is(err, session.ErrStopped) {
		t.Errorf("expected ErrStopped from pause, got %v", err)
	}
	select {
	case <-o.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestOrchestrator_FramesBeforeStartDropped(t *testing.T) {
	g := mock.New()
	o, err := New("early", g, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	go func() {
		for range o.Events() {
		}
	}()

	if err := o.Submit(context.Background(), speech(frameSamples)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := o.Stats(); st.FramesDropped != 1 || st.FramesAccepted != 0 {
		t.Errorf("expected frame to be dropped while connecting, got %+v", st)
	}
	if g.Calls() != 0 {
		t.Errorf("expected no calls, got %d", g.Calls())
	}
}

func TestOrchestrator_StopDeadlineAbortsFlush(t *testing.T) {
	g := mock.New(mock.WithDelay(10 * time.Second))
	o, events := startSession(t, "abort", g, shortConfig())

	// one window in flight and 200 ms left over for the flush
	feed(t, o, 800*time.Millisecond, speech)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := o.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after abort")
	}
	evs := <-events
	if len(ofType[models.TranscriptError](evs)) != 0 {
		t.Errorf("expected cancelled calls not to be reported, got %+v", evs)
	}
	if g.Calls() != 2 {
		t.Errorf("expected the window call and the flush call, got %d", g.Calls())
	}
}

func TestOrchestrator_StopCancelsInFlightAndQueued(t *testing.T) {
	var (
		mu        sync.Mutex
		sizes     []int
		cancelled = make(chan struct{})
	)
	g := stt.GatewayFunc(func(ctx context.Context, payload []byte, _ int) (stt.Result, error) {
		mu.Lock()
		sizes = append(sizes, len(payload))
		call := len(sizes)
		mu.Unlock()

		if call == 1 {
			<-ctx.Done()
			close(cancelled)
			return stt.Result{}, stt.NewError(mock.Provider, nil, ctx.Err())
		}
		return stt.Result{Text: "closing words"}, nil
	})
	o, events := startSession(t, "cancel", g, shortConfig())

	// windows at [0,0.6) in flight and [0.5,1.1) queued, 200 ms unwindowed
	feed(t, o, 1300*time.Millisecond, speech)

	start := time.Now()
	evs := stop(t, o, events)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected stop to return promptly, took %v", elapsed)
	}

	select {
	case <-cancelled:
	default:
		t.Fatal("expected the in-flight call to be cancelled")
	}

	mu.Lock()
	defer mu.Unlock()
	// flush covers the retained overlap [1.0,1.1) plus [1.1,1.3)
	if len(sizes) != 2 || sizes[1] != 4800*pcm.BytesPerSample {
		t.Fatalf("expected cancelled call then one 300ms flush, got payload sizes %v", sizes)
	}

	if errs := ofType[models.TranscriptError](evs); len(errs) != 0 {
		t.Errorf("expected cancellation not to be reported, got %+v", errs)
	}
	if warnings := ofType[models.TranscriptWarning](evs); len(warnings) != 0 {
		t.Errorf("expected no backpressure warning, got %+v", warnings)
	}
	got := finals(evs)
	if len(got) != 1 || got[0].Reason != models.ReasonStop || got[0].Timing.Start != 1 {
		t.Errorf("expected a single stop final from 1.0s, got %+v", got)
	}
	if st := o.Stats(); st.WindowsDispatched != 2 || st.WindowsSuppressed != 1 || st.GatewayErrors != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.Window.SampleRate = 0 }},
		{"window not longer than slide", func(c *Config) { c.Window.Length = c.Window.Slide }},
		{"zero slide", func(c *Config) { c.Window.Slide = 0 }},
		{"zero gateway timeout", func(c *Config) { c.GatewayTimeout = 0 }},
		{"zero flush timeout", func(c *Config) { c.FlushTimeout = 0 }},
		{"zero tail words", func(c *Config) { c.TailWords = 0 }},
		{"negative frame limit", func(c *Config) { c.MaxFrameBytes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New("bad", mock.New(), cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := New("nil", nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for nil gateway, got %v", err)
	}
}
