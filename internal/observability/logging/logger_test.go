package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_JSONWithSessionFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "svc-test", Level: "debug", Format: "json", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithSession("sess-1")
	logger.Info().Int("windowStart", 5).Msg("Window dispatched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["sessionId"] != "sess-1" {
		t.Errorf("expected sessionId field, got %v", entry["sessionId"])
	}
	if entry["component"] != "session" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["service"] != "svc-test" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "Window dispatched" {
		t.Errorf("unexpected message %v", entry["message"])
	}
}

func TestInit_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(Config{Level: tt.level, Output: &bytes.Buffer{}})
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWithGateway_SuppressedBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithGateway("mock")
	logger.Info().Msg("should not appear")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}

	logger.Warn().Msg("Gateway call failed")
	if !bytes.Contains(buf.Bytes(), []byte(`"sttProvider":"mock"`)) {
		t.Errorf("expected provider field, got %q", buf.String())
	}
}
