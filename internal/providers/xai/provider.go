// Package xai calls the Grok chat completions endpoint directly.
package xai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

const (
	defaultTemperature = 0.7
	defaultTimeout     = 300 * time.Second
)

// Config holds configuration for the Grok provider. URL is the full
// chat completions endpoint.
type Config struct {
	Name        string
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	Client      *http.Client
}

// Provider implements providers.Provider for the xAI API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a Grok provider.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "GROK"
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

// Name returns the display name of the backend.
func (p *Provider) Name() string { return p.cfg.Name }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt as a single user turn.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	payload := chatRequest{
		Model:       p.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: p.temperature(req),
		MaxTokens:   p.maxTokens(req),
	}

	body, err := providers.PostJSON(ctx, p.client, providers.Exchange{
		Backend:  p.cfg.Name,
		Model:    p.cfg.Model,
		Endpoint: p.cfg.URL,
		Headers: map[string]string{
			"x-api-key":     p.cfg.APIKey,
			"Authorization": "Bearer " + p.cfg.APIKey,
		},
		Payload: payload,
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, fmt.Errorf("parse response: %w", err))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, errors.New("invalid response: choices missing or empty"))
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrEmptyResponse, nil)
	}
	return content, nil
}

func (p *Provider) temperature(req providers.CompletionRequest) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if p.cfg.Temperature != nil {
		return *p.cfg.Temperature
	}
	return defaultTemperature
}

func (p *Provider) maxTokens(req providers.CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return p.cfg.MaxTokens
}
