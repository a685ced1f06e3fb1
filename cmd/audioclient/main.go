package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 20 ms of 16 kHz 16-bit mono audio
const (
	chunkSize       = 640
	chunkIntervalMs = 20
)

type event struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"sessionId"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Timing     struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"timing"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:8080", "HTTP server address")
	sessionID := flag.String("session", "test-audio-"+time.Now().Format("150405"), "Session ID")
	realtime := flag.Bool("realtime", true, "Pace frames at the audio rate")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		log.Fatal("Only 16-bit mono PCM is supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/sessions/stream", RawQuery: "sessionId=" + url.QueryEscape(*sessionID)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			var ev event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("Bad event: %s", data)
				continue
			}
			switch ev.Type {
			case "session":
				log.Printf("Session ready: %s", ev.SessionID)
			case "final":
				log.Printf("[%6.1fs-%6.1fs] %s (confidence=%.2f reason=%s)",
					ev.Timing.Start, ev.Timing.End, ev.Text, ev.Confidence, ev.Reason)
			default:
				log.Printf("%s %s: %s", ev.Type, ev.Code, ev.Message)
			}
		}
	}()

	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := io.ReadFull(f, chunk)
		if n > 0 {
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk[:n&^1]); err != nil {
				log.Fatalf("Failed to send frame: %v", err)
			}
			chunkNum++
			totalBytes += int64(n)
			if chunkNum%250 == 0 {
				log.Printf("Sent %d frames (%d bytes total)", chunkNum, totalBytes)
			}
			if *realtime {
				time.Sleep(chunkIntervalMs * time.Millisecond)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
	}

	log.Printf("Finished streaming: %d frames, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))
	log.Println("Stopping session, waiting for final transcripts...")

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		log.Fatalf("Failed to send stop: %v", err)
	}

	select {
	case <-done:
		log.Println("Session closed")
	case <-time.After(60 * time.Second):
		log.Println("Timed out waiting for the session to close")
	}
}
