package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/terminal"
)

func TestPluralFiles(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 files"},
		{1, "1 file"},
		{12, "12 files"},
	}
	for _, tt := range tests {
		if got := pluralFiles(tt.n); got != tt.want {
			t.Errorf("pluralFiles(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPreviewRules_Truncates(t *testing.T) {
	terminal.WithColorsDisabled(func() {
		var b strings.Builder
		for i := 0; i < 15; i++ {
			b.WriteString("line\n")
		}
		preview := previewRules(b.String())
		if got := strings.Count(preview, "line"); got != maxPreviewLines+1 {
			t.Errorf("expected %d line mentions (including the overflow note), got %d", maxPreviewLines+1, got)
		}
		if !strings.Contains(preview, "5 more lines") {
			t.Errorf("expected overflow note, got %q", preview)
		}
	})
}

func TestPreviewRules_Empty(t *testing.T) {
	if got := previewRules("   \n"); got != "" {
		t.Errorf("expected empty preview, got %q", got)
	}
}

func TestRenderReport_Success(t *testing.T) {
	terminal.WithColorsDisabled(func() {
		artifact := &domain.Artifact{
			RulesFilename: "AGENTS.md",
			Rules:         "# Project Rules\n- keep it simple",
			Assignments: []domain.Assignment{
				{Role: "Security Reviewer", Description: "Audits auth.", Files: []string{"auth.go"}},
				{Role: "Style Reviewer", Files: []string{"a.go", "b.go"}},
			},
			Duration: 42 * time.Second,
		}
		stats := domain.AnalysisStats{TotalAssignments: 2, Successful: 2}

		result := RenderReport(artifact, stats, "/tmp/project/AGENTS.md")

		for _, want := range []string{"AGENTS.md written", "(2/2 roles)", "Security Reviewer", "(1 file)", "(2 files)", "Audits auth.", "# Project Rules", "total: 42.0s"} {
			if !strings.Contains(result, want) {
				t.Errorf("expected %q in report:\n%s", want, result)
			}
		}
		if strings.Contains(result, "Warnings") {
			t.Error("expected no warnings section")
		}
	})
}

func TestRenderReport_WithWarnings(t *testing.T) {
	terminal.WithColorsDisabled(func() {
		artifact := &domain.Artifact{RulesFilename: "AGENTS.md"}
		stats := domain.AnalysisStats{
			TotalAssignments: 3,
			Successful:       1,
			FailedRoles:      []string{"Style Reviewer"},
			CancelledRoles:   []string{"Docs Reviewer"},
		}

		result := RenderReport(artifact, stats, "")

		if !strings.Contains(result, "Warnings") {
			t.Error("expected warnings section")
		}
		if !strings.Contains(result, "Failed roles: Style Reviewer") {
			t.Error("expected failed roles")
		}
		if !strings.Contains(result, "Cancelled roles: Docs Reviewer") {
			t.Error("expected cancelled roles")
		}
	})
}

func TestRenderReport_WithTimingStats(t *testing.T) {
	terminal.WithColorsDisabled(func() {
		artifact := &domain.Artifact{
			RulesFilename: "AGENTS.md",
			Usage:         domain.Usage{InputTokens: 100, OutputTokens: 20},
		}
		stats := domain.AnalysisStats{
			TotalAssignments: 2,
			Successful:       2,
			WallClock:        30 * time.Second,
			RoleDurations: map[string]time.Duration{
				"a": 10 * time.Second,
				"b": 20 * time.Second,
			},
		}

		result := RenderReport(artifact, stats, "")

		if !strings.Contains(result, "Timing") {
			t.Error("expected 'Timing' section")
		}
		if !strings.Contains(result, "analysis:") {
			t.Error("expected analysis duration")
		}
		if !strings.Contains(result, "min 10.0s / avg 15.0s / max 20.0s") {
			t.Errorf("expected min/avg/max stats, got:\n%s", result)
		}
		if !strings.Contains(result, "tokens: 100 in / 20 out") {
			t.Error("expected token usage")
		}
	})
}
