// Package registry tracks live sessions by ID.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
)

var (
	ErrDuplicateSession = errors.New("session already registered")
	ErrSessionNotFound  = errors.New("session not found")
)

// Session is the part of a session the registry needs.
type Session interface {
	ID() string
	Stop(ctx context.Context) error
	Done() <-chan struct{}
}

type entry struct {
	session Session
	added   time.Time
}

// Registry maps session IDs to live sessions. Entries are removed
// automatically once a session's Done channel closes. The zero value is not
// usable; call New.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an empty registry. A nil m uses metrics.DefaultMetrics.
func New(m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Registry{
		sessions: make(map[string]entry),
		metrics:  m,
		logger:   logging.WithComponent("registry"),
	}
}

// Add registers s. It fails with ErrDuplicateSession if the ID is taken by a
// session that has not finished yet.
func (r *Registry) Add(s Session) error {
	id := s.ID()

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	r.sessions[id] = entry{session: s, added: time.Now()}
	active := len(r.sessions)
	r.mu.Unlock()

	r.metrics.RecordSessionStart()
	r.logger.Info().Str("sessionId", id).Int("activeSessions", active).Msg("Session registered")

	go r.watch(s)
	return nil
}

func (r *Registry) watch(s Session) {
	<-s.Done()

	r.mu.Lock()
	e, ok := r.sessions[s.ID()]
	if ok && e.session == s {
		delete(r.sessions, s.ID())
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if !ok || e.session != s {
		return
	}
	lifetime := time.Since(e.added)
	r.metrics.RecordSessionEnd(lifetime.Seconds())
	r.logger.Info().
		Str("sessionId", s.ID()).
		Dur("lifetime", lifetime).
		Int("activeSessions", active).
		Msg("Session removed")
}

// Get returns the live session with the given ID.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.session, nil
}

// Remove stops the session with the given ID. The entry goes away once the
// session closes Done.
func (r *Registry) Remove(ctx context.Context, id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.Stop(ctx)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Sessions returns a snapshot of the live sessions in ID order.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// StopAll stops every live session concurrently and returns the joined
// errors of those that did not stop before ctx ended.
func (r *Registry) StopAll(ctx context.Context) error {
	sessions := r.Sessions()
	if len(sessions) == 0 {
		return nil
	}
	r.logger.Info().Int("sessions", len(sessions)).Msg("Stopping all sessions")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	return errors.Join(errs...)
}
