package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// ResearcherMode controls the Phase 1 documentation researcher.
type ResearcherMode string

const (
	ResearcherAuto ResearcherMode = "auto" // run when a search tool is available
	ResearcherOn   ResearcherMode = "on"
	ResearcherOff  ResearcherMode = "off"
)

// ParseResearcherMode validates a researcher mode; empty means auto.
func ParseResearcherMode(s string) (ResearcherMode, error) {
	switch m := ResearcherMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ResearcherAuto, nil
	case ResearcherAuto, ResearcherOn, ResearcherOff:
		return m, nil
	default:
		return "", &domain.ConfigurationError{Key: "researcher", Reason: fmt.Sprintf("invalid mode %q (must be auto, on, or off)", s)}
	}
}

// Reasons the researcher did not contribute findings.
const (
	SkipResearcherDisabled    = "researcher-disabled"
	SkipResearcherUnavailable = "researcher-unavailable"
	SkipResearcherNoTools     = "researcher-no-tools"
	SkipResearcherToolsFailed = "researcher-tools-failed"
	SkipResearcherFailed      = "researcher-failed"
	SkipResearcherExhausted   = "researcher-exhausted"
)

// DiscoveryFindings is the structured output of Phase 1.
type DiscoveryFindings struct {
	Structure    string
	Dependencies string
	TechStack    string
	Research     string
	SkipReason   string // Set when the researcher did not contribute
	ToolCalls    int
}

// Discovery runs Phase 1: three core sub-agents concurrently, then the
// optional researcher.
type Discovery struct {
	Architect       agent.Architect
	Researcher      agent.Architect // nil disables research
	Tools           *agent.ToolRegistry
	ResearcherTools []string // Tool names offered to the researcher
	Mode            ResearcherMode
	Concurrency     int
	MaxToolRounds   int
	Env             Env
}

// Run executes Phase 1. A failed core sub-agent fails the phase; a failed
// researcher only records a skip reason.
func (d *Discovery) Run(ctx context.Context, snap *domain.Snapshot) (domain.PhaseResult, error) {
	result := domain.PhaseResult{Phase: domain.PhaseDiscovery}
	if err := requireArchitect(domain.PhaseDiscovery, d.Architect); err != nil {
		result.Status, result.Err = domain.StatusFailed, err
		return result, err
	}
	start := time.Now()

	outputs := make([]domain.PhaseResult, len(discoveryAgents))
	g, gctx := errgroup.WithContext(ctx)
	limit := d.Concurrency
	if limit <= 0 || limit > len(discoveryAgents) {
		limit = len(discoveryAgents)
	}
	g.SetLimit(limit)

	for i, sub := range discoveryAgents {
		g.Go(func() error {
			req := agent.Request{
				Label:  "discovery:" + sub.name,
				System: DiscoverySystemPrompt,
				Prompt: sub.prompt + "\n\n" + discoveryContext(sub.name, snap),
			}
			res, err := d.Env.call(gctx, domain.PhaseDiscovery, sub.title, d.Architect, req)
			outputs[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", sub.title, err)
			}
			return nil
		})
	}

	err := g.Wait()
	for _, o := range outputs {
		result.Usage = result.Usage.Add(o.Usage)
		result.Attempts += o.Attempts
	}
	if err != nil {
		result.Status, result.Err = domain.StatusFailed, err
		result.Duration = time.Since(start)
		return result, err
	}

	findings := &DiscoveryFindings{
		Structure:    outputs[0].Output,
		Dependencies: outputs[1].Output,
		TechStack:    outputs[2].Output,
	}
	d.research(ctx, findings, &result)

	result.Status = domain.StatusSucceeded
	result.Output = renderDiscovery(findings)
	result.Findings = findings
	result.Duration = time.Since(start)
	return result, nil
}

func (d *Discovery) research(ctx context.Context, findings *DiscoveryFindings, result *domain.PhaseResult) {
	logger := d.Env.logger()
	skip := func(reason string, fields ...zap.Field) {
		findings.SkipReason = reason
		logger.Info("skipping documentation research", append(fields, zap.String("reason", reason))...)
	}

	if d.Mode == ResearcherOff {
		skip(SkipResearcherDisabled)
		return
	}
	specs, err := d.Tools.Specs(d.ResearcherTools...)
	if d.Researcher == nil || err != nil || len(specs) == 0 {
		if d.Mode == ResearcherOn {
			logger.Warn("researcher requested but unavailable", zap.Error(err))
		}
		skip(SkipResearcherUnavailable)
		return
	}

	req := agent.Request{
		Label:  "discovery:researcher",
		System: DiscoverySystemPrompt,
		Prompt: researcherPrompt(findings.Dependencies, findings.TechStack),
		Tools:  specs,
	}
	loop, err := agent.RunToolLoop(ctx, d.Researcher, req, d.Tools, agent.ToolLoopOptions{
		MaxIterations: d.MaxToolRounds,
		Retry:         d.Env.retryPolicy(domain.PhaseDiscovery, "Researcher Agent"),
		Logger:        logger,
	})
	if err != nil {
		skip(SkipResearcherFailed, zap.Error(err))
		return
	}
	result.Usage = result.Usage.Add(loop.Usage)
	result.Attempts += loop.Iterations
	findings.ToolCalls = loop.ToolCalls

	switch {
	case loop.ToolCalls == 0:
		skip(SkipResearcherNoTools)
	case loop.ToolFailures == loop.ToolCalls:
		skip(SkipResearcherToolsFailed, zap.Int("tool_calls", loop.ToolCalls))
	case loop.Exhausted && strings.TrimSpace(loop.Response.Text) == "":
		// The last turn only asked for more tools.
		skip(SkipResearcherExhausted, zap.Int("iterations", loop.Iterations))
	default:
		findings.Research = loop.Response.Text
	}
}

func renderDiscovery(f *DiscoveryFindings) string {
	var b strings.Builder
	section := func(title, body string) {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, strings.TrimSpace(body))
	}
	section(discoveryAgents[0].title, f.Structure)
	section(discoveryAgents[1].title, f.Dependencies)
	section(discoveryAgents[2].title, f.TechStack)
	if f.SkipReason != "" {
		section("Researcher Agent", fmt.Sprintf("Documentation research skipped (%s).", f.SkipReason))
	} else {
		section("Researcher Agent", f.Research)
	}
	return strings.TrimSpace(b.String()) + "\n"
}
