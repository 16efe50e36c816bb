// Package stream writes progress events as server-sent event frames.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/util"
)

// DefaultMaxBytes is the frame size ceiling.
const DefaultMaxBytes = 50 << 20

// TruncationNotice is appended to content cut to fit the ceiling.
const TruncationNotice = "\n\n[Conteúdo truncado: o resultado excedeu o limite de tamanho do stream.]"

const (
	framePrefix = "data: "
	frameSuffix = "\n\n"
	// maxShrinkPasses bounds the truncate-and-remarshal loop. One pass is
	// normally enough because every removed byte shrinks the JSON by at
	// least one byte.
	maxShrinkPasses = 8
)

// ErrClosed is returned by Emit once a write has failed.
var ErrClosed = errors.New("stream closed")

// PrepareHeaders sets the headers of an event-stream response.
func PrepareHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encode returns the frame for e. When the frame would exceed maxBytes the
// textual content is cut and TruncationNotice appended, so a frame is
// always produced. maxBytes <= 0 means DefaultMaxBytes.
func Encode(e events.Event, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	frame, err := frameOf(e)
	if err != nil {
		return nil, err
	}
	if len(frame) <= maxBytes {
		return frame, nil
	}

	logging.LogEvent("[STREAM] event of %d bytes exceeds %d, truncating", len(frame), maxBytes)
	e = detach(e)
	for pass := 0; pass < maxShrinkPasses && len(frame) > maxBytes; pass++ {
		field := largestText(&e)
		if field == nil || *field == "" {
			break
		}
		overflow := len(frame) - maxBytes
		kept := len(trimNotice(*field)) - overflow - len(TruncationNotice)
		*field = util.TruncateBytes(trimNotice(*field), kept) + TruncationNotice
		if frame, err = frameOf(e); err != nil {
			return nil, err
		}
	}
	if len(frame) <= maxBytes {
		return frame, nil
	}

	// The ceiling is smaller than the event's fixed fields.
	stub := events.Event{Progress: e.Progress, Error: TruncationNotice, Done: e.Done, Mode: e.Mode}
	return frameOf(stub)
}

func frameOf(e events.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	frame := make([]byte, 0, len(framePrefix)+len(data)+len(frameSuffix))
	frame = append(frame, framePrefix...)
	frame = append(frame, data...)
	return append(frame, frameSuffix...), nil
}

// detach copies the result structs so truncation leaves the caller's
// event untouched.
func detach(e events.Event) events.Event {
	if e.PartialResult != nil {
		p := *e.PartialResult
		e.PartialResult = &p
	}
	if e.FinalResult != nil {
		f := *e.FinalResult
		e.FinalResult = &f
	}
	return e
}

func largestText(e *events.Event) *string {
	candidates := []*string{&e.Message, &e.Error}
	if e.PartialResult != nil {
		candidates = append(candidates, &e.PartialResult.Content)
	}
	if e.FinalResult != nil {
		candidates = append(candidates, &e.FinalResult.Content)
	}
	var best *string
	for _, c := range candidates {
		if best == nil || len(*c) > len(*best) {
			best = c
		}
	}
	return best
}

func trimNotice(s string) string {
	if n := len(s) - len(TruncationNotice); n >= 0 && s[n:] == TruncationNotice {
		return s[:n]
	}
	return s
}

// Emitter writes frames to one response in the order Emit is called.
type Emitter struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	maxBytes int
	sent     int
	err      error
}

// NewEmitter returns an Emitter over w. Frames are flushed after every
// write when w supports it.
func NewEmitter(w io.Writer, maxBytes int) *Emitter {
	em := &Emitter{w: w, maxBytes: maxBytes}
	if f, ok := w.(http.Flusher); ok {
		em.flusher = f
	}
	return em
}

// Emit encodes and writes e. After the first failed write every call
// returns ErrClosed.
func (em *Emitter) Emit(e events.Event) error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.err != nil {
		return ErrClosed
	}
	frame, err := Encode(e, em.maxBytes)
	if err != nil {
		return err
	}
	if _, err := em.w.Write(frame); err != nil {
		em.err = err
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if em.flusher != nil {
		em.flusher.Flush()
	}
	em.sent++
	return nil
}

// Sent returns the number of frames written.
func (em *Emitter) Sent() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.sent
}
