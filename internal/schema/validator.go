// Package schema validates outbound events before they leave the service.
package schema

import (
	"errors"
	"fmt"
	"math"

	"ai-live-transcription-service/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// timingTolerance absorbs float rounding between duration and end-start.
const timingTolerance = 1e-3

var validReasons = map[string]bool{
	models.ReasonWindow:  true,
	models.ReasonSilence: true,
	models.ReasonStop:    true,
}

// Validator checks events against the outbound contract.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns an error describing every violated rule.
func (v *Validator) Validate(event models.Event) error {
	var errs []error
	switch ev := event.(type) {
	case models.TranscriptFinal:
		errs = v.final(ev)
	case *models.TranscriptFinal:
		errs = v.final(*ev)
	case models.TranscriptError:
		errs = v.report(ev.Type, models.TypeError, ev.SessionID, ev.Message, ev.Code)
	case models.TranscriptWarning:
		errs = v.report(ev.Type, models.TypeWarning, ev.SessionID, ev.Message, ev.Code)
	case models.SessionReady:
		if ev.Type != models.TypeSession {
			errs = append(errs, fmt.Errorf("type %q, want %q", ev.Type, models.TypeSession))
		}
		if ev.SessionID == "" {
			errs = append(errs, errors.New("sessionId is required"))
		}
	case nil:
		errs = append(errs, errors.New("nil event"))
	default:
		errs = append(errs, fmt.Errorf("unsupported event %T", event))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
}

func (v *Validator) final(ev models.TranscriptFinal) []error {
	var errs []error
	if ev.Type != models.TypeFinal {
		errs = append(errs, fmt.Errorf("type %q, want %q", ev.Type, models.TypeFinal))
	}
	if ev.SessionID == "" {
		errs = append(errs, errors.New("sessionId is required"))
	}
	if ev.Text == "" {
		errs = append(errs, errors.New("text is required"))
	}
	if ev.Confidence < 0 || ev.Confidence > 1 || math.IsNaN(ev.Confidence) {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", ev.Confidence))
	}
	if !validReasons[ev.Reason] {
		errs = append(errs, fmt.Errorf("unknown reason %q", ev.Reason))
	}
	t := ev.Timing
	if t.Start < 0 || t.End < t.Start {
		errs = append(errs, fmt.Errorf("timing [%v,%v] is not a forward range", t.Start, t.End))
	}
	if math.Abs(t.End-t.Start-t.Duration) > timingTolerance {
		errs = append(errs, fmt.Errorf("duration %v does not match end-start %v", t.Duration, t.End-t.Start))
	}
	return errs
}

func (v *Validator) report(got, want, sessionID, message, code string) []error {
	var errs []error
	if got != want {
		errs = append(errs, fmt.Errorf("type %q, want %q", got, want))
	}
	if sessionID == "" {
		errs = append(errs, errors.New("sessionId is required"))
	}
	if message == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if code == "" {
		errs = append(errs, errors.New("code is required"))
	}
	return errs
}
