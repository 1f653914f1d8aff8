package domain

import (
	"fmt"
	"time"
)

// EventKind classifies pipeline progress events.
type EventKind int

const (
	EventPhaseStarted      EventKind = iota // phase or assignment begins
	EventPhaseProgress                      // incremental output chunk
	EventPhaseCompleted                     // phase or assignment succeeded
	EventPhaseFailed                        // phase or assignment failed or was cancelled
	EventPipelineCompleted                  // run finished, successfully or not
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseStarted:
		return "phase_started"
	case EventPhaseProgress:
		return "phase_progress"
	case EventPhaseCompleted:
		return "phase_completed"
	case EventPhaseFailed:
		return "phase_failed"
	case EventPipelineCompleted:
		return "pipeline_completed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an ephemeral notification pushed to an observer.
// Role is set for Phase 3 assignment events and Phase 1 sub-agents. A terminal
// event always follows a started event for the same phase or assignment; an
// assignment cancelled before dispatch gets both back to back.
type Event struct {
	Kind     EventKind
	RunID    string
	Phase    Phase
	Role     string
	Chunk    string        // EventPhaseProgress only
	Status   Status        // Terminal status for completed/failed events
	Err      error         // EventPhaseFailed, or a failed EventPipelineCompleted
	Duration time.Duration // Completed/failed events
	Time     time.Time
}

// EventSink receives pipeline events. Implementations must not block for long;
// the pipeline pushes and never pulls.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) {
	f(e)
}
