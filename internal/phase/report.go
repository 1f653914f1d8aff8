package phase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// DefaultRulesFilename is the rules document written when none is configured.
const DefaultRulesFilename = "AGENTS.md"

// Synthesis runs Phase 4 over the successful Phase 3 outputs.
type Synthesis struct {
	Architect agent.Architect
	Env       Env
}

// Run combines analysis reports. Failed and cancelled results are ignored;
// with none left the phase fails with *domain.InsufficientAnalysisError and no
// agent call is made.
func (s *Synthesis) Run(ctx context.Context, analyses []domain.PhaseResult) (domain.PhaseResult, error) {
	if err := requireArchitect(domain.PhaseSynthesis, s.Architect); err != nil {
		return domain.PhaseResult{Phase: domain.PhaseSynthesis, Status: domain.StatusFailed, Err: err}, err
	}

	var usable []domain.PhaseResult
	var failures []*domain.AssignmentFailure
	for _, r := range analyses {
		if r.Succeeded() {
			usable = append(usable, r)
			continue
		}
		failures = append(failures, &domain.AssignmentFailure{Role: r.Role, Err: r.Err})
	}
	if len(usable) == 0 {
		err := &domain.InsufficientAnalysisError{Attempted: len(analyses), Failures: failures}
		return domain.PhaseResult{Phase: domain.PhaseSynthesis, Status: domain.StatusFailed, Err: err}, err
	}

	return s.Env.call(ctx, domain.PhaseSynthesis, "", s.Architect, agent.Request{
		Label:  "synthesis",
		System: SynthesisPrompt,
		Prompt: synthesisPrompt(usable),
	})
}

// Consolidation runs Phase 5 over every prior phase's output.
type Consolidation struct {
	Architect agent.Architect
	Env       Env
}

// Run produces the consolidated report.
func (c *Consolidation) Run(ctx context.Context, state *domain.PipelineState) (domain.PhaseResult, error) {
	if err := requireArchitect(domain.PhaseConsolidation, c.Architect); err != nil {
		return domain.PhaseResult{Phase: domain.PhaseConsolidation, Status: domain.StatusFailed, Err: err}, err
	}
	return c.Env.call(ctx, domain.PhaseConsolidation, "", c.Architect, agent.Request{
		Label:  "consolidation",
		System: ConsolidationPrompt,
		Prompt: consolidationPrompt(state),
	})
}

// Final turns the consolidated report into the rules document.
type Final struct {
	Architect     agent.Architect
	RulesFilename string
	Env           Env
}

// Run produces the rules document. Findings holds the effective filename.
func (f *Final) Run(ctx context.Context, snap *domain.Snapshot, report string) (domain.PhaseResult, error) {
	if err := requireArchitect(domain.PhaseFinal, f.Architect); err != nil {
		return domain.PhaseResult{Phase: domain.PhaseFinal, Status: domain.StatusFailed, Err: err}, err
	}
	name := RulesFilename(f.RulesFilename)
	if name != strings.TrimSpace(f.RulesFilename) && f.RulesFilename != "" {
		f.Env.logger().Warn("invalid rules filename, using default",
			zap.String("rules_filename", f.RulesFilename),
			zap.String("default", DefaultRulesFilename))
	}

	result, err := f.Env.call(ctx, domain.PhaseFinal, "", f.Architect, agent.Request{
		Label:  "final",
		System: fmt.Sprintf(FinalPrompt, name),
		Prompt: finalPrompt(report, snap),
	})
	if err != nil {
		return result, err
	}
	result.Output = cleanRules(result.Output)
	result.Findings = name
	return result, nil
}

// RulesFilename returns name when it is a bare filename, otherwise the
// default. Path separators and dot names are rejected.
func RulesFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return DefaultRulesFilename
	}
	return name
}

// cleanRules strips a wrapping markdown code fence some models add.
func cleanRules(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl > 0 {
			text = strings.TrimSpace(strings.TrimSuffix(text[nl+1:], "```"))
		}
	}
	return text + "\n"
}
