package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testStringer string

func (s testStringer) String() string { return string(s) }

func TestInitAndLoggingToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "nested", "concilium.log")

	if err := Init(logPath); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
	})

	LogEvent("hello %s", "world")
	LogRequest("concilium->llm", "grok", "grok-4", "prompt body")
	_ = Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "hello world") {
		t.Fatalf("expected LogEvent content, got: %s", content)
	}
	if !strings.Contains(content, "[CONCILIUM->LLM] backend=grok model=grok-4 payload=prompt body") {
		t.Fatalf("expected LogRequest content, got: %s", content)
	}
}

func TestBuildRequestMessageDefaults(t *testing.T) {
	msg := buildRequestMessage(" in ", " ", "", map[string]any{"ok": true}, false)
	if !strings.Contains(msg, "[IN]") {
		t.Fatalf("expected uppercased direction, got: %s", msg)
	}
	if !strings.Contains(msg, "backend=unknown") {
		t.Fatalf("expected default backend, got: %s", msg)
	}
	if !strings.Contains(msg, "model=unknown") {
		t.Fatalf("expected default model, got: %s", msg)
	}
	if !strings.Contains(msg, "payload={\"ok\":true}") {
		t.Fatalf("expected payload json, got: %s", msg)
	}
}

func TestBuildRequestMessageTruncatesPayload(t *testing.T) {
	long := strings.Repeat("a", payloadPreviewRunes+50)

	msg := buildRequestMessage("out", "sonnet", "claude", long, true)
	if strings.Contains(msg, long) {
		t.Fatal("expected payload to be truncated")
	}
	if !strings.HasSuffix(msg, "…") {
		t.Fatalf("expected ellipsis suffix, got tail %q", msg[len(msg)-10:])
	}

	full := buildRequestMessage("out", "sonnet", "claude", long, false)
	if !strings.Contains(full, long) {
		t.Fatal("expected full payload when truncation is off")
	}
}

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{name: "nil", payload: nil, want: "null"},
		{name: "blank string", payload: "  ", want: `""`},
		{name: "empty bytes", payload: []byte{}, want: "[]"},
		{name: "bytes", payload: []byte("raw"), want: "raw"},
		{name: "stringer", payload: testStringer("custom"), want: "custom"},
		{name: "struct", payload: struct {
			A int `json:"a"`
		}{A: 1}, want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPayload(tt.payload); got != tt.want {
				t.Fatalf("formatPayload()=%q want %q", got, tt.want)
			}
		})
	}
}
