package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/phase"
)

func testSnapshot() *domain.Snapshot {
	return domain.NewSnapshot("/tmp/project", []domain.FileEntry{
		{Path: "cmd/app/main.go", Content: "package main\n\nfunc main() {}"},
		{Path: "internal/store/store.go", Content: "package store"},
		{Path: "README.md", Content: "# App"},
		{Path: "go.mod", Content: "module example.com/app\n\ngo 1.24"},
	}, "app/\n├── cmd/\n├── internal/\n├── README.md\n└── go.mod", "go.mod:\nmodule example.com/app")
}

func newOffline(t *testing.T, responder agent.Responder) agent.Architect {
	t.Helper()
	var opts []agent.Option
	if responder != nil {
		opts = append(opts, agent.WithResponder(responder))
	}
	arch, err := agent.New(agent.PhaseConfig{Provider: agent.ProviderOffline}, opts...)
	require.NoError(t, err)
	return arch
}

// callLog records request labels in call order.
type callLog struct {
	mu     sync.Mutex
	labels []string
}

func (c *callLog) record(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels = append(c.labels, label)
}

func (c *callLog) withPrefix(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.labels {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *eventLog) Emit(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) all() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Event(nil), e.events...)
}

func TestNew_RequiresEveryArchitect(t *testing.T) {
	arch := newOffline(t, nil)
	architects := Uniform(arch)
	architects.Synthesis = nil

	_, err := New(Config{}, architects)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "phases.synthesis", cfgErr.Key)

	architects = Uniform(arch)
	architects.Researcher = nil
	_, err = New(Config{}, architects)
	assert.NoError(t, err, "researcher is optional")
}

func TestNew_RejectsNegativeSettings(t *testing.T) {
	arch := newOffline(t, nil)
	_, err := New(Config{Concurrency: -1}, Uniform(arch))
	assert.Error(t, err)
	_, err = New(Config{Retries: -2}, Uniform(arch))
	assert.Error(t, err)
}

func TestRun_OfflineEndToEnd(t *testing.T) {
	events := &eventLog{}
	p, err := New(Config{Concurrency: 2, Researcher: phase.ResearcherOff}, Uniform(newOffline(t, nil)), WithEventSink(events))
	require.NoError(t, err)

	artifact, err := p.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, phase.DefaultRulesFilename, artifact.RulesFilename)
	assert.True(t, strings.HasPrefix(artifact.Rules, "# Project Rules"))
	assert.Contains(t, artifact.Report, "Consolidated Report")
	assert.NotEmpty(t, artifact.Synthesis)
	assert.False(t, artifact.Partial())
	require.Len(t, artifact.Assignments, 2)
	assert.Equal(t, "Code Structure Specialist", artifact.Assignments[0].Role)
	assert.Equal(t, []string{"cmd/app/main.go", "internal/store/store.go"}, artifact.Assignments[0].Files)
	assert.Positive(t, artifact.Usage.Total())
	assert.NotEmpty(t, artifact.RunID)

	// discovery, planning, 2 analyses, synthesis, consolidation, final
	assert.Len(t, artifact.Results, 7)

	evs := events.all()
	require.NotEmpty(t, evs)
	assert.Equal(t, domain.EventPhaseStarted, evs[0].Kind)
	assert.Equal(t, domain.PhaseDiscovery, evs[0].Phase)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.EventPipelineCompleted, last.Kind)
	assert.Equal(t, domain.StatusSucceeded, last.Status)
	for _, ev := range evs {
		assert.Equal(t, artifact.RunID, ev.RunID)
	}
}

func TestRun_OfflineDeterministic(t *testing.T) {
	p, err := New(Config{Concurrency: 3, Researcher: phase.ResearcherOff}, Uniform(newOffline(t, nil)))
	require.NoError(t, err)

	first, err := p.Run(context.Background(), testSnapshot())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, first.Rules, second.Rules)
	assert.Equal(t, first.Report, second.Report)
	assert.Equal(t, first.Synthesis, second.Synthesis)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Usage, second.Usage)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_GarbagePlanHaltsBeforeAnalysis(t *testing.T) {
	calls := &callLog{}
	arch := newOffline(t, func(_ context.Context, req agent.Request) (*agent.Response, error) {
		calls.record(req.Label)
		if req.Label == "planning" {
			return &agent.Response{Text: "Sorry, I am not able to produce a plan today.", FinishReason: agent.FinishStop}, nil
		}
		return nil, nil
	})
	events := &eventLog{}
	p, err := New(Config{Researcher: phase.ResearcherOff}, Uniform(arch), WithEventSink(events))
	require.NoError(t, err)

	artifact, err := p.Run(context.Background(), testSnapshot())
	assert.Nil(t, artifact)

	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, domain.PhasePlanning, pipeErr.Phase)
	var parseErr *domain.PlanParseError
	assert.ErrorAs(t, err, &parseErr)

	assert.Empty(t, calls.withPrefix("analysis:"), "no Phase 3 call may be dispatched")
	for _, ev := range events.all() {
		assert.NotEqual(t, domain.PhaseAnalysis, ev.Phase)
	}
}

func TestRun_PartialAnalysisFailure(t *testing.T) {
	arch := newOffline(t, func(_ context.Context, req agent.Request) (*agent.Response, error) {
		if req.Label == "analysis:Documentation and Configuration Specialist" {
			return nil, errors.New("model refused")
		}
		return nil, nil
	})
	p, err := New(Config{Researcher: phase.ResearcherOff}, Uniform(arch))
	require.NoError(t, err)

	artifact, err := p.Run(context.Background(), testSnapshot())
	require.NoError(t, err)

	assert.True(t, artifact.Partial())
	assert.Equal(t, []string{"Documentation and Configuration Specialist"}, artifact.FailedRoles)
}

func TestRun_AllAnalysisFailed(t *testing.T) {
	calls := &callLog{}
	arch := newOffline(t, func(_ context.Context, req agent.Request) (*agent.Response, error) {
		calls.record(req.Label)
		if strings.HasPrefix(req.Label, "analysis:") {
			return nil, errors.New("model refused")
		}
		return nil, nil
	})
	p, err := New(Config{Researcher: phase.ResearcherOff}, Uniform(arch))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), testSnapshot())
	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, domain.PhaseAnalysis, pipeErr.Phase)
	var insufficient *domain.InsufficientAnalysisError
	assert.ErrorAs(t, err, &insufficient)
	assert.Empty(t, calls.withPrefix("synthesis"))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	calls := &callLog{}
	arch := newOffline(t, func(_ context.Context, req agent.Request) (*agent.Response, error) {
		calls.record(req.Label)
		return nil, nil
	})
	p, err := New(Config{}, Uniform(arch))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, testSnapshot())
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls.labels)
}

func TestRun_CancelDuringAnalysis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := &callLog{}
	arch := newOffline(t, func(_ context.Context, req agent.Request) (*agent.Response, error) {
		calls.record(req.Label)
		if strings.HasPrefix(req.Label, "analysis:") {
			cancel()
		}
		return nil, nil
	})
	p, err := New(Config{Concurrency: 1, Researcher: phase.ResearcherOff}, Uniform(arch))
	require.NoError(t, err)

	_, err = p.Run(ctx, testSnapshot())

	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, domain.PhaseSynthesis, pipeErr.Phase, "the in-flight assignment completes, then the run stops")
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Len(t, calls.withPrefix("analysis:"), 1, "queued assignments never reach the agent")
}

func TestRun_EmptySnapshot(t *testing.T) {
	p, err := New(Config{}, Uniform(newOffline(t, nil)))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), domain.NewSnapshot("/tmp/empty", nil, "", ""))
	var pipeErr *domain.PipelineError
	assert.ErrorAs(t, err, &pipeErr)
}

func TestRun_CustomRulesFilename(t *testing.T) {
	p, err := New(Config{RulesFilename: "CLAUDE.md", Researcher: phase.ResearcherOff}, Uniform(newOffline(t, nil)))
	require.NoError(t, err)

	artifact, err := p.Run(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "CLAUDE.md", artifact.RulesFilename)
}

func TestChannelEmitter(t *testing.T) {
	em := NewChannelEmitter(2)

	em.Emit(domain.Event{Kind: domain.EventPhaseStarted})
	em.Emit(domain.Event{Kind: domain.EventPhaseProgress, Chunk: "a"})
	em.Emit(domain.Event{Kind: domain.EventPhaseProgress, Chunk: "b"})
	assert.Equal(t, int64(1), em.Dropped())

	em.Close()
	em.Close()
	em.Emit(domain.Event{Kind: domain.EventPhaseCompleted})

	var kinds []domain.EventKind
	for ev := range em.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventPhaseStarted, domain.EventPhaseProgress}, kinds)
}

func TestChannelEmitter_WithPipeline(t *testing.T) {
	em := NewChannelEmitter(4)
	p, err := New(Config{Researcher: phase.ResearcherOff, Stream: true}, Uniform(newOffline(t, nil)), WithEventSink(em))
	require.NoError(t, err)

	var (
		received []domain.Event
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range em.Events() {
			received = append(received, ev)
		}
	}()

	_, err = p.Run(context.Background(), testSnapshot())
	em.Close()
	wg.Wait()
	require.NoError(t, err)

	require.NotEmpty(t, received)
	assert.Equal(t, domain.EventPipelineCompleted, received[len(received)-1].Kind)

	completed := 0
	for _, ev := range received {
		if ev.Kind == domain.EventPhaseCompleted && ev.Role == "" {
			completed++
		}
	}
	assert.Equal(t, len(domain.Phases), completed, "every phase reports completion")
}

func TestMultiSink(t *testing.T) {
	a, b := &eventLog{}, &eventLog{}
	MultiSink{a, nil, b}.Emit(domain.Event{Kind: domain.EventPhaseStarted})
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}
