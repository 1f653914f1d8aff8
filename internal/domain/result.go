package domain

import "time"

// Assignment is one Phase 3 work unit produced by the planning phase.
type Assignment struct {
	Role        string   `json:"role"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files"`
}

// Usage holds token accounting reported by a provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of two usage records.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// PhaseResult is the read-only outcome of a phase, or of one Phase 3 assignment.
type PhaseResult struct {
	Phase    Phase
	Role     string   // Assignment role (Phase 3) or sub-agent name
	Files    []string // Files the agent was scoped to (Phase 3 only)
	Output   string   // Raw agent output text
	Findings any      // Optional structured findings, e.g. the parsed plan
	Status   Status
	Err      error
	Attempts int
	Duration time.Duration
	Usage    Usage
}

// Succeeded reports whether the result is usable by later phases.
func (r PhaseResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// AnalysisStats summarizes the Phase 3 fan-out.
type AnalysisStats struct {
	TotalAssignments int
	Successful       int
	FailedRoles      []string
	CancelledRoles   []string
	RoleDurations    map[string]time.Duration
	Usage            Usage
	WallClock        time.Duration
}

// AllFailed returns true if no assignment succeeded.
func (s *AnalysisStats) AllFailed() bool {
	return s.Successful == 0
}

// BuildAnalysisStats builds Phase 3 statistics from per-assignment results.
func BuildAnalysisStats(results []PhaseResult, wallClock time.Duration) AnalysisStats {
	stats := AnalysisStats{
		TotalAssignments: len(results),
		RoleDurations:    make(map[string]time.Duration, len(results)),
		WallClock:        wallClock,
	}

	for _, r := range results {
		stats.RoleDurations[r.Role] = r.Duration
		stats.Usage = stats.Usage.Add(r.Usage)

		switch r.Status {
		case StatusSucceeded:
			stats.Successful++
		case StatusCancelled:
			stats.CancelledRoles = append(stats.CancelledRoles, r.Role)
		default:
			stats.FailedRoles = append(stats.FailedRoles, r.Role)
		}
	}

	return stats
}

// Artifact is the final deliverable of a pipeline run.
type Artifact struct {
	RunID         string
	RulesFilename string
	Rules         string // Final analysis output, written to RulesFilename
	Report        string // Phase 5 consolidated report
	Synthesis     string // Phase 4 output
	Assignments   []Assignment
	Results       []PhaseResult // Every recorded result, in append order
	FailedRoles   []string      // Phase 3 roles that failed or were cancelled
	Analysis      AnalysisStats
	Usage         Usage
	Duration      time.Duration
}

// Partial reports whether some Phase 3 assignments did not contribute.
func (a *Artifact) Partial() bool {
	return len(a.FailedRoles) > 0
}
