package xai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

func TestCompleteSendsSingleUserTurn(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"draft text"}}]}`))
	}))
	defer server.Close()

	p := New(Config{URL: server.URL, APIKey: "test-key", Model: "grok-test"})
	got, err := p.Complete(context.Background(), providers.CompletionRequest{Prompt: "hello", MaxTokens: 20000})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "draft text" {
		t.Fatalf("unexpected text %q", got)
	}
	if captured.Model != "grok-test" {
		t.Fatalf("unexpected model %q", captured.Model)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" || captured.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	if captured.Temperature != 0.7 {
		t.Fatalf("expected default temperature 0.7, got %v", captured.Temperature)
	}
	if captured.MaxTokens != 20000 {
		t.Fatalf("expected max_tokens 20000, got %d", captured.MaxTokens)
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{name: "missing choices", status: http.StatusOK, body: `{"id":"x"}`, kind: providers.ErrTransport},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, kind: providers.ErrTransport},
		{name: "blank content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"   \n"}}]}`, kind: providers.ErrEmptyResponse},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`, kind: providers.ErrTransport},
		{name: "malformed json", status: http.StatusOK, body: `{"choices":`, kind: providers.ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := New(Config{URL: server.URL, APIKey: "k", Model: "m"})
			_, err := p.Complete(context.Background(), providers.CompletionRequest{Prompt: "x"})
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			var callErr *providers.CallError
			if !errors.As(err, &callErr) || callErr.Backend != "GROK" {
				t.Fatalf("expected CallError for GROK, got %#v", err)
			}
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := New(Config{URL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := p.Complete(context.Background(), providers.CompletionRequest{Prompt: "x"})
	if !errors.Is(err, providers.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
