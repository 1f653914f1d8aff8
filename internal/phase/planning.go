package phase

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/plan"
)

// Planning runs Phase 2: one call that divides the project between
// specialist roles. Its Findings are the resolved []domain.Assignment.
type Planning struct {
	Architect agent.Architect
	Env       Env
}

// Run executes Phase 2. Empty, unparseable, or fully unresolvable plans fail
// with a *domain.PlanParseError.
func (p *Planning) Run(ctx context.Context, snap *domain.Snapshot, discovery string) (domain.PhaseResult, error) {
	if err := requireArchitect(domain.PhasePlanning, p.Architect); err != nil {
		return domain.PhaseResult{Phase: domain.PhasePlanning, Status: domain.StatusFailed, Err: err}, err
	}

	result, err := p.Env.call(ctx, domain.PhasePlanning, "", p.Architect, agent.Request{
		Label:  "planning",
		System: PlanningSystemPrompt,
		Prompt: planningPrompt(discovery, snap),
	})
	if err != nil {
		return result, err
	}

	logger := p.Env.logger()
	parsed, stage, err := plan.ParseStaged(result.Output)
	if err != nil {
		result.Status, result.Err = domain.StatusFailed, err
		return result, err
	}
	if stage == plan.StageFallback {
		logger.Info("analysis plan parsed by fallback stage")
	}

	assignments, err := plan.Resolve(parsed, snap, logger)
	if err != nil {
		result.Status, result.Err = domain.StatusFailed, err
		return result, err
	}

	logger.Info("analysis plan ready",
		zap.Int("assignments", len(assignments)),
		zap.String("stage", stage.String()))
	result.Findings = assignments
	return result, nil
}

// Assignments extracts the plan from a Phase 2 result.
func Assignments(r domain.PhaseResult) []domain.Assignment {
	a, _ := r.Findings.([]domain.Assignment)
	return a
}
