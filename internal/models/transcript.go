// Package models defines the data structures for transcript events.
package models

// Event types, carried in the "type" field of every outbound event.
const (
	TypeFinal   = "final"
	TypeError   = "error"
	TypeWarning = "warning"
	TypeSession = "session"
)

// Final reasons.
const (
	ReasonWindow  = "window"  // a full window was transcribed
	ReasonSilence = "silence" // the window ended in trailing silence
	ReasonStop    = "stop"    // remaining audio flushed on stop
)

// Warning codes.
const WarningBackpressure = "backpressure"

// Event is any payload a session emits to its transport.
type Event interface {
	EventType() string
}

// Timing locates a segment in the session's audio timeline, in seconds.
type Timing struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// TranscriptFinal is an authoritative transcript segment. Once emitted it is
// never retracted.
type TranscriptFinal struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"sessionId"`
	Seq        uint64  `json:"seq"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Timing     Timing  `json:"timing"`
	Timestamp  int64   `json:"timestamp"`
}

func (TranscriptFinal) EventType() string { return TypeFinal }

// TranscriptError reports a failed window. The session keeps running.
type TranscriptError struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

func (TranscriptError) EventType() string { return TypeError }

// TranscriptWarning reports a degraded but non-fatal condition.
type TranscriptWarning struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

func (TranscriptWarning) EventType() string { return TypeWarning }

// SessionReady tells the client which session ID was assigned.
type SessionReady struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	SampleRate int    `json:"sampleRate"`
}

func (SessionReady) EventType() string { return TypeSession }
