// Package events defines the progress event pushed to the browser while a
// pipeline runs.
package events

// Mode values carried by terminal events.
const (
	ModeHierarchical = "hierarchical"
	ModeAtomic       = "atomic"
)

// Partial is one backend's output for a display slot.
type Partial struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Final is the consolidated merge result.
type Final struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// Event is a single progress update. Progress is a pointer so events that
// only carry a partial result omit the field.
type Event struct {
	Progress      *int     `json:"progress,omitempty"`
	Message       string   `json:"message,omitempty"`
	PartialResult *Partial `json:"partial_result,omitempty"`
	FinalResult   *Final   `json:"final_result,omitempty"`
	Error         string   `json:"error,omitempty"`
	Done          bool     `json:"done,omitempty"`
	Mode          string   `json:"mode,omitempty"`
}

// Progress returns an event at pct with message.
func Progress(pct int, message string) Event {
	return Event{Progress: &pct, Message: message}
}

// Failure returns an error event.
func Failure(message string) Event {
	return Event{Error: message}
}

// PartialResult returns an event carrying only a slot's content.
func PartialResult(id, content string) Event {
	return Event{PartialResult: &Partial{ID: id, Content: content}}
}

// WithPartial attaches a partial result.
func (e Event) WithPartial(id, content string) Event {
	e.PartialResult = &Partial{ID: id, Content: content}
	return e
}

// Finish marks the event terminal for mode.
func (e Event) Finish(mode string) Event {
	e.Done = true
	e.Mode = mode
	return e
}

// Pct returns the progress value, or -1 when absent.
func (e Event) Pct() int {
	if e.Progress == nil {
		return -1
	}
	return *e.Progress
}

// IsError reports whether the event carries an error.
func (e Event) IsError() bool { return e.Error != "" }

// Sink receives events in order. A returned error stops the producer.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Emit calls f.
func (f SinkFunc) Emit(e Event) error { return f(e) }

// Recorder is a Sink that keeps every event.
type Recorder struct {
	Events []Event
}

// Emit appends e.
func (r *Recorder) Emit(e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Partials returns the slot ids of every partial result in order.
func (r *Recorder) Partials() []string {
	var ids []string
	for _, e := range r.Events {
		if e.PartialResult != nil {
			ids = append(ids, e.PartialResult.ID)
		}
	}
	return ids
}

// Errors returns every error message in order.
func (r *Recorder) Errors() []string {
	var msgs []string
	for _, e := range r.Events {
		if e.Error != "" {
			msgs = append(msgs, e.Error)
		}
	}
	return msgs
}

// Last returns the final event, or the zero Event.
func (r *Recorder) Last() Event {
	if len(r.Events) == 0 {
		return Event{}
	}
	return r.Events[len(r.Events)-1]
}
