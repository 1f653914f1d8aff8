package terminal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentrules/agentrules/internal/domain"
)

func newTestDisplay(verbose bool) (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Display{
		logger:  &Logger{out: &buf},
		out:     &buf,
		verbose: verbose,
	}, &buf
}

func TestDisplay_PhaseLifecycle(t *testing.T) {
	plainText(t)

	d, buf := newTestDisplay(false)
	events := make(chan domain.Event, 16)
	events <- domain.Event{Kind: domain.EventPhaseStarted, Phase: domain.PhaseDiscovery}
	events <- domain.Event{Kind: domain.EventPhaseProgress, Phase: domain.PhaseDiscovery, Chunk: "thinking"}
	events <- domain.Event{Kind: domain.EventPhaseCompleted, Phase: domain.PhaseDiscovery, Duration: 1500 * time.Millisecond}
	events <- domain.Event{Kind: domain.EventPhaseStarted, Phase: domain.PhasePlanning}
	events <- domain.Event{Kind: domain.EventPhaseFailed, Phase: domain.PhasePlanning, Err: errors.New("no agents found")}
	events <- domain.Event{Kind: domain.EventPipelineCompleted, Status: domain.StatusFailed}
	close(events)

	d.Run(events)

	out := buf.String()
	for _, want := range []string{
		"▸ Phase 1: Initial Discovery",
		"✓ Phase 1: Initial Discovery complete (1.5s)",
		"▸ Phase 2: Methodical Planning",
		"! Phase 2: Methodical Planning failed: no agents found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "thinking") {
		t.Error("chunks should not be echoed outside verbose mode")
	}
}

func TestDisplay_AnalysisCounts(t *testing.T) {
	plainText(t)

	d, buf := newTestDisplay(false)
	for _, e := range []domain.Event{
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis},
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "A"},
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "B"},
		{Kind: domain.EventPhaseCompleted, Phase: domain.PhaseAnalysis, Role: "A"},
		{Kind: domain.EventPhaseFailed, Phase: domain.PhaseAnalysis, Role: "B", Status: domain.StatusFailed, Err: errors.New("quota")},
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "C"},
		{Kind: domain.EventPhaseFailed, Phase: domain.PhaseAnalysis, Role: "C", Status: domain.StatusCancelled, Err: domain.ErrCancelled},
		{Kind: domain.EventPhaseCompleted, Phase: domain.PhaseAnalysis, Duration: 2 * time.Second},
	} {
		d.Handle(e)
	}

	out := buf.String()
	for _, want := range []string{
		"W B failed: quota",
		"W C cancelled",
		"Phase 3: Deep Analysis complete (3/3 agents, 2.0s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "A started") {
		t.Error("assignment starts are only shown in verbose mode")
	}
}

func TestDisplay_DuplicateRolesCountedSeparately(t *testing.T) {
	plainText(t)

	d, buf := newTestDisplay(false)
	for _, e := range []domain.Event{
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis},
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "Reviewer"},
		{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "Reviewer"},
		{Kind: domain.EventPhaseCompleted, Phase: domain.PhaseAnalysis, Role: "Reviewer"},
		{Kind: domain.EventPhaseFailed, Phase: domain.PhaseAnalysis, Role: "Reviewer", Status: domain.StatusCancelled, Err: domain.ErrCancelled},
		{Kind: domain.EventPhaseCompleted, Phase: domain.PhaseAnalysis, Duration: time.Second},
	} {
		d.Handle(e)
	}

	if out := buf.String(); !strings.Contains(out, "(2/2 agents, 1.0s)") {
		t.Errorf("expected 2/2 agents, got:\n%s", out)
	}
}

func TestDisplay_VerboseEchoesChunks(t *testing.T) {
	plainText(t)

	d, buf := newTestDisplay(true)
	d.Handle(domain.Event{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis})
	d.Handle(domain.Event{Kind: domain.EventPhaseStarted, Phase: domain.PhaseAnalysis, Role: "A"})
	d.Handle(domain.Event{Kind: domain.EventPhaseProgress, Phase: domain.PhaseAnalysis, Role: "A", Chunk: "partial output"})

	out := buf.String()
	if !strings.Contains(out, "A started") || !strings.Contains(out, "partial output") {
		t.Errorf("expected verbose output, got:\n%s", out)
	}
}
