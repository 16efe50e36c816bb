package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/concilium/internal/providers"
)

func TestProviderComplete(t *testing.T) {
	t.Parallel()

	var captured messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version header, got %s", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"tool_use"},{"type":"text","text":"part two"}]}`))
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL, Model: "claude-test"})
	got, err := p.Complete(context.Background(), providers.CompletionRequest{Prompt: "refine this", MaxTokens: 20000})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "part one part two" {
		t.Fatalf("unexpected text %q", got)
	}
	if captured.MaxTokens != 20000 {
		t.Fatalf("expected max_tokens 20000, got %d", captured.MaxTokens)
	}
	if captured.Temperature != nil {
		t.Fatalf("expected temperature to be omitted, got %v", *captured.Temperature)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Content != "refine this" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestProviderErrorHandling(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		kind          error
		expectedError string
	}{
		{
			name:          "Rate limit",
			statusCode:    http.StatusTooManyRequests,
			responseBody:  `{"error":{"type":"rate_limit_error","message":"Rate limit exceeded"}}`,
			kind:          providers.ErrTransport,
			expectedError: "rate limit exceeded",
		},
		{
			name:          "API error",
			statusCode:    http.StatusBadRequest,
			responseBody:  `{"error":{"type":"invalid_request_error","message":"Invalid model"}}`,
			kind:          providers.ErrTransport,
			expectedError: "Invalid model",
		},
		{
			name:          "Empty content",
			statusCode:    http.StatusOK,
			responseBody:  `{"content":[]}`,
			kind:          providers.ErrEmptyResponse,
			expectedError: "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			p := New(Config{APIKey: "test-key", BaseURL: server.URL})
			_, err := p.Complete(context.Background(), providers.CompletionRequest{Prompt: "x"})
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected kind %v, got %v", tt.kind, err)
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("expected error containing %q, got %q", tt.expectedError, err.Error())
			}
		})
	}
}

func TestProviderCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Config{BaseURL: server.URL})
	_, err := p.Complete(ctx, providers.CompletionRequest{Prompt: "x"})
	if !errors.Is(err, providers.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}
