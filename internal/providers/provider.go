// internal/providers/provider.go

// Package providers defines the contract every model backend implements and
// the error kinds the pipeline uses to classify failed calls.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// CompletionRequest is a single-turn, non-streaming generation request.
type CompletionRequest struct {
	Prompt string
	// MaxTokens bounds the output length. Zero leaves the backend default.
	MaxTokens int
	// Temperature overrides the backend default when non-nil.
	Temperature *float64
}

// Provider is the interface that all model backends must implement.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Complete sends one prompt and returns the generated text. A
	// whitespace-only result is reported as ErrEmptyResponse.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Error kinds. Every error returned by a Provider matches exactly one of
// these with errors.Is.
var (
	ErrEmptyResponse = errors.New("empty response")
	ErrTimeout       = errors.New("timed out")
	ErrTransport     = errors.New("transport failure")
	ErrCancelled     = errors.New("cancelled")
)

// CallError carries the backend name and the classified kind of a failure.
type CallError struct {
	Backend string
	Kind    error
	Err     error
}

func (e *CallError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s: %v", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Backend, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewCallError wraps err with the given kind.
func NewCallError(backend string, kind, err error) *CallError {
	return &CallError{Backend: backend, Kind: kind, Err: err}
}

// Classify maps a failed HTTP round trip to an error kind. ctx is the
// context the request was issued with.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled:
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}
	return ErrTransport
}

// KindOf returns the error kind carried by err, or ErrTransport when err
// is not classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrCancelled, ErrTimeout, ErrEmptyResponse, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrTransport
}
