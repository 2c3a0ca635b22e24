// Package status defines the stage events emitted by the analysis pipeline
// and the observer interface their subscribers implement.
package status

import (
	"strings"
	"time"
)

// Stage names one step of the analysis pipeline state machine.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageFetchStart Stage = "fetch.start"
	StageFetchOK    Stage = "fetch.ok"
	StageFetchError Stage = "fetch.error"
	StageAIRequest  Stage = "ai.request"
	StageAIOK       Stage = "ai.ok"
	StageAIError    Stage = "ai.error"
	StageMerge      Stage = "merge"
	StageDBWrite    Stage = "db.write"
	StageCompleted  Stage = "completed"
	StageDBError    Stage = "db.error"
	// StageError marks a failure outside any named stage, such as a panic.
	StageError Stage = "error"
)

// IsFailure reports whether the stage signals a failed invocation.
func (s Stage) IsFailure() bool {
	return s == "error" || strings.HasSuffix(string(s), ".error")
}

// IsTerminal reports whether no further events follow this stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s.IsFailure()
}

// Event is an immutable stage transition.
type Event struct {
	Identifier string    `json:"identifier"`
	Filename   string    `json:"filename,omitempty"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives events in emission order. Implementations must not block for
// long; the pipeline calls Emit synchronously.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans each event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder collects events; useful for subscribers that replay later.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) { r.Events = append(r.Events, e) }

// Stages returns the recorded stage names in order.
func (r *Recorder) Stages() []Stage {
	out := make([]Stage, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Stage
	}
	return out
}
