// Package ws exposes transcription sessions over WebSocket.
//
// Binary messages carry 16-bit little-endian mono PCM. Text messages carry
// JSON control commands: {"type":"pause"}, {"type":"resume"} and
// {"type":"stop"}. Every event a session emits is written back as a JSON text
// message, preceded by a "session" event once the session is streaming.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-live-transcription-service/internal/models"
	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
	"ai-live-transcription-service/internal/service/registry"
	"ai-live-transcription-service/internal/service/session"
)

// Control message types.
const (
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

// CodeBadRequest is the error code sent for unusable control messages.
const CodeBadRequest = "bad_request"

// Session is a live transcription session driven by one connection.
type Session interface {
	ID() string
	Start() error
	Pause() error
	Resume() error
	Submit(ctx context.Context, payload []byte) error
	Stop(ctx context.Context) error
	Events() <-chan models.Event
	Done() <-chan struct{}
}

// Factory creates a session for a resolved ID.
type Factory func(id string) (Session, error)

// Config holds connection settings.
type Config struct {
	SampleRate   int
	ReadLimit    int64         // max inbound message size; 0 keeps gorilla's default
	ReadTimeout  time.Duration // 0 disables read deadlines and pings
	WriteTimeout time.Duration
	StopTimeout  time.Duration // bound on the stop flush after disconnect or stop
	// AllowedOrigins lists accepted Origin headers. Empty accepts any origin.
	AllowedOrigins []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		ReadLimit:    128 * 1024,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

type controlMessage struct {
	Type string `json:"type"`
}

// Handler upgrades requests and runs one session per connection.
type Handler struct {
	cfg        Config
	registry   *registry.Registry
	newSession Factory
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHandler creates a handler that registers sessions in reg. A nil m uses
// metrics.DefaultMetrics.
func NewHandler(cfg Config, reg *registry.Registry, factory Factory, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	h := &Handler{
		cfg:        cfg,
		registry:   reg,
		newSession: factory,
		metrics:    m,
		logger:     logging.WithComponent("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// ServeHTTP handles one session connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := session.ResolveID(r.URL.Query().Get("sessionId"))
	if err != nil {
		h.metrics.RecordWSRejected("invalid_id")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.registry.Get(id); err == nil {
		h.metrics.RecordWSRejected("duplicate")
		http.Error(w, "session already active", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSRejected("upgrade")
		h.logger.Warn().Err(err).Str("sessionId", id).Msg("WebSocket upgrade failed")
		return
	}
	h.metrics.RecordWSOpen()
	defer h.metrics.RecordWSClose()
	defer conn.Close()

	logger := h.logger.With().Str("sessionId", id).Str("remoteAddr", r.RemoteAddr).Logger()

	sess, err := h.newSession(id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		h.closeWith(conn, websocket.CloseInternalServerErr, "session unavailable")
		return
	}
	if err := h.registry.Add(sess); err != nil {
		logger.Warn().Err(err).Msg("Session ID taken")
		h.metrics.RecordWSRejected("duplicate")
		sess.Stop(context.Background())
		h.closeWith(conn, websocket.ClosePolicyViolation, "session already active")
		return
	}

	c := &connection{
		Handler: h,
		conn:    conn,
		sess:    sess,
		replies: make(chan models.Event, 4),
		logger:  logger,
	}
	c.serve()
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(h.cfg.WriteTimeout)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

type connection struct {
	*Handler
	conn    *websocket.Conn
	sess    Session
	replies chan models.Event // written by the reader, drained by the writer
	logger  zerolog.Logger
}

func (c *connection) serve() {
	if c.cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(c.cfg.ReadLimit)
	}
	if c.cfg.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		})
	}

	if err := c.sess.Start(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to start session")
		c.stop()
		c.closeWith(c.conn, websocket.CloseInternalServerErr, "session unavailable")
		return
	}
	c.logger.Info().Msg("Session connected")

	ready := models.SessionReady{Type: models.TypeSession, SessionID: c.sess.ID(), SampleRate: c.cfg.SampleRate}
	writerDone := make(chan struct{})
	go c.writeLoop(ready, writerDone)

	c.readLoop()

	c.stop()
	<-writerDone
	c.closeWith(c.conn, websocket.CloseNormalClosure, "session stopped")
	c.logger.Info().Msg("Session disconnected")
}

// readLoop returns on disconnect, read error or a stop command.
func (c *connection) readLoop() {
	ctx := context.Background()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := c.sess.Submit(ctx, data); errors.Is(err, session.ErrStopped) {
				return
			}
		case websocket.TextMessage:
			if !c.control(data) {
				return
			}
		}
	}
}

// control applies one command and reports whether reading should continue.
func (c *connection) control(data []byte) bool {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(CodeBadRequest, "control message must be JSON")
		return true
	}

	var err error
	switch msg.Type {
	case ControlPause:
		err = c.sess.Pause()
	case ControlResume:
		err = c.sess.Resume()
	case ControlStop:
		c.logger.Info().Msg("Stop requested by client")
		return false
	default:
		c.reply(CodeBadRequest, "unknown control message "+msg.Type)
		return true
	}

	if errors.Is(err, session.ErrStopped) {
		return false
	}
	if err != nil {
		c.reply(CodeBadRequest, err.Error())
	}
	return true
}

func (c *connection) reply(code, message string) {
	ev := models.TranscriptError{
		Type:      models.TypeError,
		SessionID: c.sess.ID(),
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case c.replies <- ev:
	default:
		c.logger.Warn().Str("code", code).Msg("Dropping control reply")
	}
}

func (c *connection) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
	defer cancel()
	if err := c.sess.Stop(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Session did not drain before timeout")
	}
}

// writeLoop owns all data writes on the connection. It keeps draining the
// session's events after a write failure so the session never blocks.
func (c *connection) writeLoop(ready models.Event, done chan<- struct{}) {
	defer close(done)

	var ping <-chan time.Time
	if c.cfg.ReadTimeout > 0 {
		t := time.NewTicker(c.cfg.ReadTimeout / 2)
		defer t.Stop()
		ping = t.C
	}

	healthy := c.write(ready)
	events := c.sess.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if healthy {
				healthy = c.write(ev)
			}
		case ev := <-c.replies:
			if healthy {
				healthy = c.write(ev)
			}
		case <-ping:
			if !healthy {
				continue
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				healthy = false
			}
		}
	}
}

func (c *connection) write(ev models.Event) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.logger.Warn().Err(err).Str("type", ev.EventType()).Msg("Failed to write event")
		return false
	}
	return true
}
