package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-live-transcription-service/internal/api/ws"
	"ai-live-transcription-service/internal/app"
	"ai-live-transcription-service/internal/service/audio"
	"ai-live-transcription-service/internal/service/registry"
)

// SessionSummary is the JSON view of a live session.
type SessionSummary struct {
	SessionID         string    `json:"sessionId"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"createdAt"`
	FramesAccepted    int64     `json:"framesAccepted"`
	FramesDropped     int64     `json:"framesDropped"`
	WindowsDispatched int64     `json:"windowsDispatched"`
	WindowsSuppressed int64     `json:"windowsSuppressed"`
	WindowsDropped    int64     `json:"windowsDropped"`
	Finals            int64     `json:"finals"`
	GatewayErrors     int64     `json:"gatewayErrors"`
	AudioSeconds      float64   `json:"audioSeconds"`
}

type statser interface {
	Stats() audio.Stats
}

func summarize(s registry.Session) SessionSummary {
	sum := SessionSummary{SessionID: s.ID()}
	if st, ok := s.(statser); ok {
		stats := st.Stats()
		sum.State = stats.State.String()
		sum.CreatedAt = stats.CreatedAt
		sum.FramesAccepted = stats.FramesAccepted
		sum.FramesDropped = stats.FramesDropped
		sum.WindowsDispatched = stats.WindowsDispatched
		sum.WindowsSuppressed = stats.WindowsSuppressed
		sum.WindowsDropped = stats.WindowsDropped
		sum.Finals = stats.Finals
		sum.GatewayErrors = stats.GatewayErrors
		sum.AudioSeconds = stats.AudioProcessed.Seconds()
	}
	return sum
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if err := application.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	cfg := application.Cfg
	wsCfg := ws.DefaultConfig()
	wsCfg.SampleRate = cfg.Window.SampleRateHz
	wsCfg.StopTimeout = cfg.Session.StopTimeout
	wsCfg.AllowedOrigins = cfg.Service.AllowedOrigins
	// oversized frames must reach the session to be dropped, not close the socket
	if limit := int64(cfg.Session.MaxFrameBytes) * 2; limit > wsCfg.ReadLimit {
		wsCfg.ReadLimit = limit
	}
	streams := ws.NewHandler(wsCfg, application.Registry, func(id string) (ws.Session, error) {
		o, err := application.NewSession(id)
		if err != nil {
			return nil, err
		}
		return o, nil
	}, nil)

	h := &handlers{app: application}
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Handle("/stream", streams)
		r.Get("/{id}", h.getSession)
		r.Delete("/{id}", h.stopSession)
		r.Get("/{id}/transcript", h.getTranscript)
	})

	return r
}

type handlers struct {
	app *app.Application
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.app.Registry.Sessions()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summarize(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(s))
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.app.Cfg.Session.StopTimeout)
	defer cancel()

	err := h.app.Registry.Remove(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, registry.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) getTranscript(w http.ResponseWriter, r *http.Request) {
	if h.app.Store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("transcript storage is not configured"))
		return
	}
	finals, err := h.app.Store.Transcript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read transcript")
		writeError(w, http.StatusInternalServerError, errors.New("failed to read transcript"))
		return
	}
	if len(finals) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no transcript for session"))
		return
	}
	writeJSON(w, http.StatusOK, finals)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
