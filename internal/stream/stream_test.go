package stream

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/concilium/internal/events"
)

func decodeFrame(t *testing.T, frame []byte) events.Event {
	t.Helper()
	s := string(frame)
	if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") {
		t.Fatalf("malformed frame %q", s)
	}
	var e events.Event
	if err := json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(s, "data: "), "\n\n")), &e); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	return e
}

func TestEncodeFrame(t *testing.T) {
	frame, err := Encode(events.Progress(0, "Iniciando"), 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(frame) != "data: {\"progress\":0,\"message\":\"Iniciando\"}\n\n" {
		t.Fatalf("unexpected frame %q", frame)
	}
}

func TestEncodePartialOnlyEvent(t *testing.T) {
	frame, err := Encode(events.PartialResult("sonnet-output", "<p>x</p>"), 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(frame), "progress") || strings.Contains(string(frame), "done") {
		t.Fatalf("partial-only frame should not carry progress or done: %q", frame)
	}
}

func TestEncodeTruncatesOversizedContent(t *testing.T) {
	content := strings.Repeat("palavra ", 500)
	ev := events.Progress(100, "Processamento concluído!").WithPartial("gemini-output", content).Finish("hierarchical")

	frame, err := Encode(ev, 1024)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frame) > 1024 {
		t.Fatalf("frame of %d bytes exceeds ceiling", len(frame))
	}
	got := decodeFrame(t, frame)
	if !strings.HasSuffix(got.PartialResult.Content, TruncationNotice) {
		t.Fatalf("truncated content should end with the notice")
	}
	if !strings.HasPrefix(got.PartialResult.Content, "palavra palavra") {
		t.Fatalf("truncation should keep the head of the content")
	}
	if !got.Done || got.Mode != "hierarchical" || got.Pct() != 100 {
		t.Fatalf("control fields lost in truncation: %+v", got)
	}
	if ev.PartialResult.Content != content {
		t.Fatalf("caller's event was modified")
	}
}

func TestEncodeTruncationHandlesEscapedContent(t *testing.T) {
	content := strings.Repeat("<\"é\">", 400)
	ev := events.Event{FinalResult: &events.Final{Content: content, WordCount: 1}, Done: true}

	frame, err := Encode(ev, 700)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frame) > 700 {
		t.Fatalf("frame of %d bytes exceeds ceiling", len(frame))
	}
	got := decodeFrame(t, frame)
	if got.FinalResult == nil || got.FinalResult.WordCount != 1 {
		t.Fatalf("final result lost: %+v", got)
	}
}

func TestEncodeTinyCeilingFallsBackToNotice(t *testing.T) {
	ev := events.Progress(100, "ok").WithPartial("grok-output", strings.Repeat("x", 100))
	frame, err := Encode(ev, 10)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got := decodeFrame(t, frame)
	if got.Error != TruncationNotice {
		t.Fatalf("expected notice stub, got %+v", got)
	}
}

func TestEmitterWritesInOrderAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	PrepareHeaders(rec)
	em := NewEmitter(rec, 0)

	for i, msg := range []string{"a", "b", "c"} {
		if err := em.Emit(events.Progress(i*50, msg)); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush after emit")
	}
	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 3 || em.Sent() != 3 {
		t.Fatalf("expected 3 frames, got %d (sent %d)", len(frames), em.Sent())
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := decodeFrame(t, []byte(frames[i]+"\n\n")); got.Message != want {
			t.Fatalf("frame %d: expected %q, got %q", i, want, got.Message)
		}
	}
}

type brokenWriter struct{ writes int }

func (b *brokenWriter) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("connection reset")
}

func TestEmitterStopsAfterWriteFailure(t *testing.T) {
	w := &brokenWriter{}
	em := NewEmitter(w, 0)
	if err := em.Emit(events.Progress(0, "a")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := em.Emit(events.Progress(10, "b")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if w.writes != 1 {
		t.Fatalf("no writes expected after failure, got %d", w.writes)
	}
}
