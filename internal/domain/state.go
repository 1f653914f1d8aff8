package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState accumulates phase results for one run. It is owned by the
// orchestrator; results are only ever appended.
type PipelineState struct {
	RunID     string
	Snapshot  *Snapshot
	StartedAt time.Time

	results []PhaseResult
	status  map[Phase]Status
}

// NewPipelineState creates the run-scoped state for a snapshot.
func NewPipelineState(snapshot *Snapshot) *PipelineState {
	return &PipelineState{
		RunID:     uuid.NewString(),
		Snapshot:  snapshot,
		StartedAt: time.Now(),
		status:    make(map[Phase]Status, len(Phases)),
	}
}

// Append records completed results.
func (s *PipelineState) Append(results ...PhaseResult) {
	s.results = append(s.results, results...)
}

// All returns a copy of every recorded result in append order.
func (s *PipelineState) All() []PhaseResult {
	out := make([]PhaseResult, len(s.results))
	copy(out, s.results)
	return out
}

// Results returns the results recorded for one phase.
func (s *PipelineState) Results(p Phase) []PhaseResult {
	var out []PhaseResult
	for _, r := range s.results {
		if r.Phase == p {
			out = append(out, r)
		}
	}
	return out
}

// Successful returns the succeeded results recorded for one phase.
func (s *PipelineState) Successful(p Phase) []PhaseResult {
	var out []PhaseResult
	for _, r := range s.results {
		if r.Phase == p && r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recent result for a phase.
func (s *PipelineState) Latest(p Phase) (PhaseResult, bool) {
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].Phase == p {
			return s.results[i], true
		}
	}
	return PhaseResult{}, false
}

// Output returns the output text of the latest succeeded result for a phase.
func (s *PipelineState) Output(p Phase) string {
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].Phase == p && s.results[i].Succeeded() {
			return s.results[i].Output
		}
	}
	return ""
}

// SetStatus records the lifecycle state of a phase.
func (s *PipelineState) SetStatus(p Phase, st Status) {
	s.status[p] = st
}

// Status returns the lifecycle state of a phase; unseen phases are pending.
func (s *PipelineState) Status(p Phase) Status {
	return s.status[p]
}

// Usage sums token usage across all results.
func (s *PipelineState) Usage() Usage {
	var total Usage
	for _, r := range s.results {
		total = total.Add(r.Usage)
	}
	return total
}
