package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/util"
)

const errorBodyPreview = 300

// Exchange describes one JSON POST to a model API.
type Exchange struct {
	Backend  string
	Model    string
	Endpoint string
	Headers  map[string]string
	Payload  any
}

// PostJSON sends the exchange and returns the response body of a 2xx reply.
// Failures come back as *CallError with the kind already classified.
func PostJSON(ctx context.Context, client *http.Client, ex Exchange) ([]byte, error) {
	body, err := json.Marshal(ex.Payload)
	if err != nil {
		return nil, NewCallError(ex.Backend, ErrTransport, fmt.Errorf("marshal request: %w", err))
	}
	logging.LogRequest("CONCILIUM->LLM", ex.Backend, ex.Model, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ex.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewCallError(ex.Backend, ErrTransport, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range ex.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewCallError(ex.Backend, Classify(ctx, err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewCallError(ex.Backend, Classify(ctx, err), fmt.Errorf("read response: %w", err))
	}
	logging.LogRequest("LLM->CONCILIUM", ex.Backend, ex.Model, data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewCallError(ex.Backend, ErrTransport, statusError(resp.StatusCode, data))
	}
	return data, nil
}

// APIErrorMessage digs the human readable message out of the error envelopes
// used by the supported APIs.
func APIErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var detailed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detailed); err == nil && detailed.Message != "" {
		return detailed.Message
	}
	var plain string
	if err := json.Unmarshal(envelope.Error, &plain); err == nil {
		return plain
	}
	return ""
}

func statusError(status int, body []byte) error {
	if msg := APIErrorMessage(body); msg != "" {
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("rate limit exceeded: %s", msg)
		}
		return fmt.Errorf("status %d: %s", status, msg)
	}
	preview := strings.TrimSpace(util.TruncateRunes(string(body), errorBodyPreview))
	if preview == "" {
		return fmt.Errorf("status %d", status)
	}
	return fmt.Errorf("status %d: %s", status, preview)
}
