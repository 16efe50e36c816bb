// Package anthropic implements providers.Provider for the Claude Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 8192
	defaultTimeout   = 900 * time.Second
)

// Config holds configuration for the Anthropic provider.
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Version     string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	Client      *http.Client
}

// Provider sends single-turn prompts to Claude.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates an Anthropic provider.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Claude Sonnet"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return p.cfg.Name }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete posts the prompt to /v1/messages and joins the text blocks of the reply.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := p.cfg.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}

	body, err := providers.PostJSON(ctx, p.client, providers.Exchange{
		Backend:  p.cfg.Name,
		Model:    p.cfg.Model,
		Endpoint: strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages",
		Headers: map[string]string{
			"x-api-key":         p.cfg.APIKey,
			"anthropic-version": p.cfg.Version,
		},
		Payload: messagesRequest{
			Model:       p.cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Messages:    []message{{Role: "user", Content: req.Prompt}},
		},
	})
	if err != nil {
		return "", err
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, fmt.Errorf("parse response: %w", err))
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrEmptyResponse, nil)
	}
	return text, nil
}
