// Package audittest provides an in-memory Auditor for tests.
package audittest

import (
	"context"
	"sync"

	"github.com/toolbridge/toolbridge/src/audit"
)

// Outcome of a recorded event.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one recorded audit event with its completion state.
type Event struct {
	mu sync.Mutex

	ID       string
	Severity audit.Severity
	ReqCtx   audit.RequestContext
	Metadata map[string]any

	outcome        Outcome
	err            error
	completionMeta map[string]any
	completions    int
}

// Outcome reports how the event was completed.
func (e *Event) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Err returns the failure error, if any.
func (e *Event) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// CompletionMeta returns the metadata attached at completion.
func (e *Event) CompletionMeta() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completionMeta
}

// Completions counts how many completion calls were attempted, including
// ones ignored by the once guard.
func (e *Event) Completions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completions
}

func (e *Event) Success(metadata map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completions++
	if e.outcome == OutcomePending {
		e.outcome = OutcomeSuccess
		e.completionMeta = metadata
	}
}

func (e *Event) Fail(err error, metadata map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completions++
	if e.outcome == OutcomePending {
		e.outcome = OutcomeFailure
		e.err = err
		e.completionMeta = metadata
	}
}

// Recorder is an audit.Auditor that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) CreateEvent(_ context.Context, eventID string, severity audit.Severity, reqCtx audit.RequestContext, metadata map[string]any) audit.Handle {
	ev := &Event{
		ID:       eventID,
		Severity: severity,
		ReqCtx:   reqCtx,
		Metadata: metadata,
		outcome:  OutcomePending,
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return ev
}

// Events returns a snapshot of all recorded events in creation order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByID returns all events recorded under the given id.
func (r *Recorder) ByID(id string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, ev := range r.events {
		if ev.ID == id {
			out = append(out, ev)
		}
	}
	return out
}
