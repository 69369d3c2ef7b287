package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "scheduler"))
	log.Info("armed", Int64("post_id", 7), Bool("manual", false))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["comp"] != "scheduler" || m["message"] != "armed" {
		t.Fatalf("unexpected line: %v", m)
	}
	if m["post_id"].(float64) != 7 {
		t.Fatalf("post_id = %v", m["post_id"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("caller missing: %v", m)
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("ignored", Err(nil))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"nope":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","message":"delete failed","post_id":3,"channel":-100,"time":"x"}`)
	got := formatChatLine(line)
	want := "[WARN] delete failed\n- channel=-100\n- post_id=3"
	if got != want {
		t.Fatalf("formatChatLine =\n%s\nwant\n%s", got, want)
	}
	if raw := formatChatLine([]byte("plain text\n")); raw != "plain text" {
		t.Fatalf("raw line = %q", raw)
	}
}

func TestServiceChatSinkRespectsMinLevel(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	send := func(_ context.Context, chatID int64, text string) error {
		mu.Lock()
		defer mu.Unlock()
		if chatID != 42 {
			t.Errorf("chatID = %d", chatID)
		}
		sent = append(sent, text)
		return nil
	}
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, ChatID: 42, MinLevel: "warn", RatePerSec: 100}}, send)
	defer svc.Close()

	log.Info("quiet")
	log.Warn("loud", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || !strings.HasPrefix(sent[0], "[WARN] loud") {
		t.Fatalf("sent = %q", sent)
	}
}
