package phase

import (
	"context"
	"fmt"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/runner"
)

// Analysis runs Phase 3: one scoped call per assignment, fanned out with
// bounded concurrency.
type Analysis struct {
	Architect   agent.Architect
	Concurrency int
	Env         Env
}

// Run executes every assignment and returns one result per assignment in plan
// order. The phase fails with *domain.InsufficientAnalysisError only when no
// assignment succeeded.
func (a *Analysis) Run(ctx context.Context, snap *domain.Snapshot, discovery string, assignments []domain.Assignment) ([]domain.PhaseResult, domain.AnalysisStats, error) {
	if err := requireArchitect(domain.PhaseAnalysis, a.Architect); err != nil {
		return nil, domain.AnalysisStats{}, err
	}
	if len(assignments) == 0 {
		return nil, domain.AnalysisStats{}, &domain.InsufficientAnalysisError{}
	}

	tasks := make([]runner.Task, len(assignments))
	for i, asg := range assignments {
		tasks[i] = runner.Task{
			Assignment: asg,
			Request: agent.Request{
				Label:  "analysis:" + asg.Role,
				System: AnalysisSystemPrompt,
				Prompt: analysisPrompt(asg, discovery, snap),
			},
		}
	}

	opts := []runner.Option{runner.WithLogger(a.Env.logger())}
	if a.Env.Events != nil {
		opts = append(opts, runner.WithEventSink(a.Env.Events))
	}
	r, err := runner.New(runner.Config{
		Concurrency: a.Concurrency,
		Retries:     a.Env.Retries,
		RetryDelay:  a.Env.RetryDelay,
		RunID:       a.Env.RunID,
		Stream:      a.Env.Stream,
	}, a.Architect, opts...)
	if err != nil {
		return nil, domain.AnalysisStats{}, fmt.Errorf("create runner: %w", err)
	}

	results, wall := r.Run(ctx, tasks)
	stats := domain.BuildAnalysisStats(results, wall)
	if stats.AllFailed() {
		return results, stats, &domain.InsufficientAnalysisError{
			Attempted: len(results),
			Failures:  runner.Failures(results),
		}
	}
	return results, stats, nil
}
