// Package domain provides core types for the analysis pipeline.
package domain

import (
	"fmt"
	"strings"
)

// Phase identifies one stage of the analysis pipeline.
type Phase string

const (
	PhaseDiscovery     Phase = "discovery"
	PhasePlanning      Phase = "planning"
	PhaseAnalysis      Phase = "analysis"
	PhaseSynthesis     Phase = "synthesis"
	PhaseConsolidation Phase = "consolidation"
	PhaseFinal         Phase = "final"
)

// Phases lists the pipeline stages in execution order.
var Phases = []Phase{
	PhaseDiscovery,
	PhasePlanning,
	PhaseAnalysis,
	PhaseSynthesis,
	PhaseConsolidation,
	PhaseFinal,
}

// Number returns the 1-based position of the phase. The final analysis step
// runs after consolidation and is numbered 6.
func (p Phase) Number() int {
	for i, candidate := range Phases {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

// Title returns a human-readable label such as "Phase 3: Deep Analysis".
func (p Phase) Title() string {
	switch p {
	case PhaseDiscovery:
		return "Phase 1: Initial Discovery"
	case PhasePlanning:
		return "Phase 2: Methodical Planning"
	case PhaseAnalysis:
		return "Phase 3: Deep Analysis"
	case PhaseSynthesis:
		return "Phase 4: Synthesis"
	case PhaseConsolidation:
		return "Phase 5: Consolidation"
	case PhaseFinal:
		return "Final Analysis"
	default:
		return string(p)
	}
}

// ParsePhase accepts either a phase name ("planning") or its positional alias
// ("phase2"). The final step is also accepted as "final_analysis".
func ParsePhase(s string) (Phase, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, p := range Phases {
		if key == string(p) || key == fmt.Sprintf("phase%d", i+1) {
			return p, nil
		}
	}
	if key == "final_analysis" {
		return PhaseFinal, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// Status is the lifecycle state of a phase or of a single Phase 3 assignment.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}
