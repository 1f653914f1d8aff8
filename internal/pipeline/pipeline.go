// Package pipeline sequences the analysis phases over a project snapshot and
// assembles the final artifact.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/phase"
)

// Config holds run-wide settings.
type Config struct {
	Concurrency     int           // Phase 3 in-flight limit; 0 means one slot per assignment
	Retries         int           // Additional attempts for transient provider failures
	RetryDelay      time.Duration // Base backoff; doubles per attempt
	RulesFilename   string
	Researcher      phase.ResearcherMode
	ResearcherTools []string
	MaxToolRounds   int
	Stream          bool // Stream agent output as progress events
}

// Architects holds the agent used by each phase. Researcher may be nil.
type Architects struct {
	Discovery     agent.Architect
	Researcher    agent.Architect
	Planning      agent.Architect
	Analysis      agent.Architect
	Synthesis     agent.Architect
	Consolidation agent.Architect
	Final         agent.Architect
}

// Uniform returns Architects that use arch for every phase, including research.
func Uniform(arch agent.Architect) Architects {
	return Architects{
		Discovery:     arch,
		Researcher:    arch,
		Planning:      arch,
		Analysis:      arch,
		Synthesis:     arch,
		Consolidation: arch,
		Final:         arch,
	}
}

func (a Architects) forPhase(p domain.Phase) agent.Architect {
	switch p {
	case domain.PhaseDiscovery:
		return a.Discovery
	case domain.PhasePlanning:
		return a.Planning
	case domain.PhaseAnalysis:
		return a.Analysis
	case domain.PhaseSynthesis:
		return a.Synthesis
	case domain.PhaseConsolidation:
		return a.Consolidation
	case domain.PhaseFinal:
		return a.Final
	}
	return nil
}

// Pipeline runs the phases in order. A Pipeline may be run more than once;
// each run gets its own state.
type Pipeline struct {
	config     Config
	architects Architects
	tools      *agent.ToolRegistry
	logger     *zap.Logger
	sink       domain.EventSink
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEventSink sets the observer that receives progress events.
func WithEventSink(sink domain.EventSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithTools sets the registry offered to the researcher.
func WithTools(reg *agent.ToolRegistry) Option {
	return func(p *Pipeline) {
		p.tools = reg
	}
}

// New validates that every phase has an architect.
func New(cfg Config, architects Architects, opts ...Option) (*Pipeline, error) {
	for _, ph := range domain.Phases {
		if architects.forPhase(ph) == nil {
			return nil, &domain.ConfigurationError{Key: "phases." + string(ph), Reason: "no architect configured"}
		}
	}
	if cfg.Concurrency < 0 {
		return nil, &domain.ConfigurationError{Key: "concurrency", Reason: fmt.Sprintf("must be >= 0, got %d", cfg.Concurrency)}
	}
	if cfg.Retries < 0 {
		return nil, &domain.ConfigurationError{Key: "retries", Reason: fmt.Sprintf("must be >= 0, got %d", cfg.Retries)}
	}
	if cfg.Researcher == "" {
		cfg.Researcher = phase.ResearcherAuto
	}

	p := &Pipeline{
		config:     cfg,
		architects: architects,
		logger:     zap.NewNop(),
		sink:       domain.EventSinkFunc(func(domain.Event) {}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run is the per-invocation state.
type run struct {
	*Pipeline
	state *domain.PipelineState
	env   phase.Env
}

// Run executes every phase against snapshot. On failure it returns a
// *domain.PipelineError naming the phase that halted the run. Partial Phase 3
// failures do not halt the run; they are listed in Artifact.FailedRoles.
func (p *Pipeline) Run(ctx context.Context, snapshot *domain.Snapshot) (*domain.Artifact, error) {
	if snapshot == nil || snapshot.Len() == 0 {
		return nil, &domain.PipelineError{Phase: domain.PhaseDiscovery, Err: fmt.Errorf("snapshot has no files")}
	}

	state := domain.NewPipelineState(snapshot)
	r := &run{
		Pipeline: p,
		state:    state,
		env: phase.Env{
			RunID:      state.RunID,
			Logger:     p.logger.With(zap.String("run_id", state.RunID)),
			Events:     p.sink,
			Retries:    p.config.Retries,
			RetryDelay: p.config.RetryDelay,
			Stream:     p.config.Stream,
		},
	}
	r.env.Logger.Info("pipeline started", zap.String("root", snapshot.Root), zap.Int("files", snapshot.Len()))

	artifact, err := r.execute(ctx)
	if err != nil {
		r.emit(domain.Event{Kind: domain.EventPipelineCompleted, Status: domain.StatusFailed, Err: err, Duration: time.Since(state.StartedAt)})
		r.env.Logger.Warn("pipeline failed", zap.Error(err))
		return nil, err
	}
	r.emit(domain.Event{Kind: domain.EventPipelineCompleted, Status: domain.StatusSucceeded, Duration: artifact.Duration})
	r.env.Logger.Info("pipeline completed",
		zap.Duration("duration", artifact.Duration),
		zap.Int("input_tokens", artifact.Usage.InputTokens),
		zap.Int("output_tokens", artifact.Usage.OutputTokens),
		zap.Strings("failed_roles", artifact.FailedRoles))
	return artifact, nil
}

func (r *run) execute(ctx context.Context) (*domain.Artifact, error) {
	snap := r.state.Snapshot
	a := r.architects

	discovery := &phase.Discovery{
		Architect:       a.Discovery,
		Researcher:      a.Researcher,
		Tools:           r.tools,
		ResearcherTools: r.config.ResearcherTools,
		Mode:            r.config.Researcher,
		Concurrency:     r.config.Concurrency,
		MaxToolRounds:   r.config.MaxToolRounds,
		Env:             r.env,
	}
	if err := r.single(ctx, domain.PhaseDiscovery, func(ctx context.Context) (domain.PhaseResult, error) {
		return discovery.Run(ctx, snap)
	}); err != nil {
		return nil, err
	}

	planning := &phase.Planning{Architect: a.Planning, Env: r.env}
	if err := r.single(ctx, domain.PhasePlanning, func(ctx context.Context) (domain.PhaseResult, error) {
		return planning.Run(ctx, snap, r.state.Output(domain.PhaseDiscovery))
	}); err != nil {
		return nil, err
	}
	planned, _ := r.state.Latest(domain.PhasePlanning)
	assignments := phase.Assignments(planned)

	stats, err := r.analysis(ctx, assignments)
	if err != nil {
		return nil, err
	}

	synthesis := &phase.Synthesis{Architect: a.Synthesis, Env: r.env}
	if err := r.single(ctx, domain.PhaseSynthesis, func(ctx context.Context) (domain.PhaseResult, error) {
		return synthesis.Run(ctx, r.state.Results(domain.PhaseAnalysis))
	}); err != nil {
		return nil, err
	}

	consolidation := &phase.Consolidation{Architect: a.Consolidation, Env: r.env}
	if err := r.single(ctx, domain.PhaseConsolidation, func(ctx context.Context) (domain.PhaseResult, error) {
		return consolidation.Run(ctx, r.state)
	}); err != nil {
		return nil, err
	}

	final := &phase.Final{Architect: a.Final, RulesFilename: r.config.RulesFilename, Env: r.env}
	if err := r.single(ctx, domain.PhaseFinal, func(ctx context.Context) (domain.PhaseResult, error) {
		return final.Run(ctx, snap, r.state.Output(domain.PhaseConsolidation))
	}); err != nil {
		return nil, err
	}
	finalResult, _ := r.state.Latest(domain.PhaseFinal)
	rulesFilename, _ := finalResult.Findings.(string)

	failed := append(append([]string(nil), stats.FailedRoles...), stats.CancelledRoles...)
	return &domain.Artifact{
		RunID:         r.state.RunID,
		RulesFilename: rulesFilename,
		Rules:         finalResult.Output,
		Report:        r.state.Output(domain.PhaseConsolidation),
		Synthesis:     r.state.Output(domain.PhaseSynthesis),
		Assignments:   assignments,
		Results:       r.state.All(),
		FailedRoles:   failed,
		Analysis:      stats,
		Usage:         r.state.Usage(),
		Duration:      time.Since(r.state.StartedAt),
	}, nil
}

// single runs a one-result phase with lifecycle bookkeeping.
func (r *run) single(ctx context.Context, p domain.Phase, fn func(context.Context) (domain.PhaseResult, error)) error {
	if err := r.begin(ctx, p); err != nil {
		return err
	}
	start := time.Now()
	result, err := fn(ctx)
	result.Phase = p
	r.state.Append(result)
	return r.end(p, err, time.Since(start))
}

func (r *run) analysis(ctx context.Context, assignments []domain.Assignment) (domain.AnalysisStats, error) {
	if err := r.begin(ctx, domain.PhaseAnalysis); err != nil {
		return domain.AnalysisStats{}, err
	}
	analysis := &phase.Analysis{
		Architect:   r.architects.Analysis,
		Concurrency: r.config.Concurrency,
		Env:         r.env,
	}
	results, stats, err := analysis.Run(ctx, r.state.Snapshot, r.state.Output(domain.PhaseDiscovery), assignments)
	r.state.Append(results...)
	if err == nil && len(stats.FailedRoles)+len(stats.CancelledRoles) > 0 {
		r.env.Logger.Warn("some assignments did not complete",
			zap.Strings("failed", stats.FailedRoles),
			zap.Strings("cancelled", stats.CancelledRoles))
	}
	return stats, r.end(domain.PhaseAnalysis, err, stats.WallClock)
}

func (r *run) begin(ctx context.Context, p domain.Phase) error {
	if err := ctx.Err(); err != nil {
		r.state.SetStatus(p, domain.StatusCancelled)
		return &domain.PipelineError{Phase: p, Err: fmt.Errorf("%w: %w", domain.ErrCancelled, err)}
	}
	r.state.SetStatus(p, domain.StatusRunning)
	r.emit(domain.Event{Kind: domain.EventPhaseStarted, Phase: p})
	r.env.Logger.Info("phase started", zap.String("phase", p.Title()))
	return nil
}

func (r *run) end(p domain.Phase, err error, d time.Duration) error {
	if err != nil {
		r.state.SetStatus(p, domain.StatusFailed)
		r.emit(domain.Event{Kind: domain.EventPhaseFailed, Phase: p, Status: domain.StatusFailed, Err: err, Duration: d})
		return &domain.PipelineError{Phase: p, Err: err}
	}
	r.state.SetStatus(p, domain.StatusSucceeded)
	r.emit(domain.Event{Kind: domain.EventPhaseCompleted, Phase: p, Status: domain.StatusSucceeded, Duration: d})
	r.env.Logger.Info("phase completed", zap.String("phase", p.Title()), zap.Duration("duration", d))
	return nil
}

func (r *run) emit(e domain.Event) {
	e.RunID = r.state.RunID
	e.Time = time.Now()
	r.sink.Emit(e)
}
