// Transcript Viewer - follows persisted transcripts live.
// Consumes the finals and errors topics from Kafka and rebroadcasts them to
// browser WebSocket clients, optionally filtered by session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

// transcriptEvent is the subset of final and error events the viewer shows.
type transcriptEvent struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Seq       uint64  `json:"seq,omitempty"`
	Text      string  `json:"text,omitempty"`
	Code      string  `json:"code,omitempty"`
	Message   string  `json:"message,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Timing    *timing `json:"timing,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type timing struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type client struct {
	conn    *websocket.Conn
	session string // empty follows every session
	send    chan transcriptEvent
}

// hub fans events out to clients. A client that cannot keep up is dropped.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("Client connected (session=%q). Total: %d", c.session, n)
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("Client disconnected. Total: %d", n)
}

func (h *hub) broadcast(ev transcriptEvent) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.session != "" && c.session != ev.SessionID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("Dropping slow client")
		h.remove(c)
		c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool
	},
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		c := &client{conn: conn, session: r.URL.Query().Get("sessionId"), send: make(chan transcriptEvent, 64)}
		h.add(c)

		go func() {
			for ev := range c.send {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(ev); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					return
				}
			}
		}()

		// reads only detect the disconnect
		go func() {
			defer func() {
				h.remove(c)
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consume(ctx context.Context, h *hub, brokers []string, topic string, since time.Duration) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Printf("Failed to seek %s: %v", topic, err)
	}
	log.Printf("Consuming %s (last %s)", topic, since)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var ev transcriptEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Printf("Skipping undecodable message on %s: %v", topic, err)
			continue
		}
		h.broadcast(ev)
	}
}

const page = `<!doctype html>
<html><head><meta charset="utf-8"><title>Live transcripts</title>
<style>body{font-family:sans-serif;margin:2em}p{margin:.3em 0}.error{color:#b00}small{color:#888}</style>
</head><body><h1>Live transcripts</h1><div id="out"></div>
<script>
const q = new URLSearchParams(location.search).get("sessionId") || "";
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws?sessionId=" + encodeURIComponent(q));
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  const p = document.createElement("p");
  if (ev.type === "final") {
    p.innerHTML = "<small>" + ev.sessionId + " " + ev.timing.start.toFixed(1) + "s</small> ";
    p.appendChild(document.createTextNode(ev.text));
  } else {
    p.className = "error";
    p.textContent = ev.sessionId + ": " + ev.code + " " + ev.message;
  }
  document.getElementById("out").appendChild(p);
};
</script></body></html>`

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicFinal := flag.String("topic-final", "transcripts.final", "Final transcript topic")
	topicError := flag.String("topic-error", "transcripts.error", "Transcript error topic")
	since := flag.Duration("since", time.Hour, "Replay messages newer than this")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	brokerList := strings.Split(*brokers, ",")
	go consume(ctx, h, brokerList, *topicFinal, *since)
	go consume(ctx, h, brokerList, *topicError, *since)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/ws", wsHandler(h))

	srv := &http.Server{Addr: ":" + *port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Transcript viewer on http://localhost:%s (topics %s, %s)", *port, *topicFinal, *topicError)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
