// Package gemini implements providers.Provider for the Gemini generateContent API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 900 * time.Second
)

// Config holds configuration for the Gemini provider.
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	Client      *http.Client
}

// Provider sends single-turn prompts to Gemini.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a Gemini provider.
func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Gemini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
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

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Complete calls models/{model}:generateContent and joins the parts of every candidate.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	gen := generationConfig{Temperature: p.cfg.Temperature, MaxOutputTokens: p.cfg.MaxTokens}
	if req.Temperature != nil {
		gen.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		gen.MaxOutputTokens = req.MaxTokens
	}
	if gen.Temperature != nil || gen.MaxOutputTokens > 0 {
		payload.GenerationConfig = &gen
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.Model))
	body, err := providers.PostJSON(ctx, p.client, providers.Exchange{
		Backend:  p.cfg.Name,
		Model:    p.cfg.Model,
		Endpoint: endpoint,
		Headers:  map[string]string{"x-goog-api-key": p.cfg.APIKey},
		Payload:  payload,
	})
	if err != nil {
		return "", err
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, fmt.Errorf("parse response: %w", err))
	}
	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason))
		}
		return "", providers.NewCallError(p.cfg.Name, providers.ErrTransport, errors.New("no response candidates"))
	}

	var sb strings.Builder
	for _, candidate := range parsed.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, pt := range candidate.Content.Parts {
			sb.WriteString(pt.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", providers.NewCallError(p.cfg.Name, providers.ErrEmptyResponse, nil)
	}
	return text, nil
}
