package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/capitan"
)

func TestSignalNames(t *testing.T) {
	want := map[string]capitan.Signal{
		"model.call.started":   CallStarted,
		"model.call.completed": CallCompleted,
		"model.call.failed":    CallFailed,
	}
	for name, sig := range want {
		if sig.Name() != name {
			t.Fatalf("expected signal %q, got %q", name, sig.Name())
		}
		if sig.Description() == "" {
			t.Fatalf("signal %q has no description", name)
		}
	}
}

func TestObserveSignalsLogsNameAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "signals.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
	})

	stop := ObserveSignals()
	defer stop()

	capitan.Info(context.Background(), CallStarted,
		RunIDKey.Field("run-42"),
		BackendKey.Field("grok"),
		StageKey.Field("draft"),
	)

	const want = "[SIGNAL] model.call.started run=run-42 backend=grok stage=draft"
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if strings.Contains(string(data), want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %q in log, got: %s", want, data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
