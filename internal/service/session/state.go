// Package session provides session ID generation and lifecycle management.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateConnecting - transport handshake in progress, frames are not accepted.
	StateConnecting State = iota
	// StateStreaming - frames flow into detection and buffering.
	StateStreaming
	// StatePaused - frames are discarded, buffered audio is kept.
	StatePaused
	// StateStopping - remaining audio is being flushed.
	StateStopping
	// StateStopped - all resources released. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for STOPPED.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// Errors for invalid state transitions.
var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrStopped           = errors.New("session is stopping or stopped")
)

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	CONNECTING → STREAMING ⇄ PAUSED
//	     │           │          │
//	     └───────────┴──────────┴──→ STOPPING → STOPPED
//
// Rules:
//   - Pause and Resume are only valid between STREAMING and PAUSED
//   - BeginStop is valid from any non-terminal state and is idempotent
//   - Finish is only valid from STOPPING
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	onTransition TransitionFunc
}

// NewLifecycle creates a lifecycle in CONNECTING state. onTransition may be
// nil; it is called with the lock released.
func NewLifecycle(onTransition TransitionFunc) *Lifecycle {
	return &Lifecycle{state: StateConnecting, onTransition: onTransition}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// AcceptsFrames returns true if incoming audio should be processed.
func (l *Lifecycle) AcceptsFrames() bool {
	return l.State() == StateStreaming
}

// Start moves CONNECTING to STREAMING.
func (l *Lifecycle) Start() error {
	return l.transition(StateStreaming, StateConnecting)
}

// Pause moves STREAMING to PAUSED.
func (l *Lifecycle) Pause() error {
	return l.transition(StatePaused, StateStreaming)
}

// Resume moves PAUSED to STREAMING.
func (l *Lifecycle) Resume() error {
	return l.transition(StateStreaming, StatePaused)
}

// BeginStop moves any live state to STOPPING. It returns false if the session
// was already stopping or stopped.
func (l *Lifecycle) BeginStop() bool {
	l.mu.Lock()
	from := l.state
	if from == StateStopping || from == StateStopped {
		l.mu.Unlock()
		return false
	}
	l.state = StateStopping
	l.mu.Unlock()

	l.notify(from, StateStopping)
	return true
}

// Finish moves STOPPING to STOPPED.
func (l *Lifecycle) Finish() error {
	return l.transition(StateStopped, StateStopping)
}

func (l *Lifecycle) transition(to State, allowed State) error {
	l.mu.Lock()
	from := l.state
	if from != allowed {
		l.mu.Unlock()
		if from == StateStopping || from == StateStopped {
			return ErrStopped
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	l.state = to
	l.mu.Unlock()

	l.notify(from, to)
	return nil
}

func (l *Lifecycle) notify(from, to State) {
	if l.onTransition != nil {
		l.onTransition(from, to)
	}
}
