package runner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/terminal"
)

const maxPreviewLines = 10

// RenderReport renders a terminal summary of a finished run.
func RenderReport(artifact *domain.Artifact, stats domain.AnalysisStats, rulesPath string) string {
	width := terminal.ReportWidth()

	var lines []string

	// Warnings
	var warnings []string
	if len(stats.FailedRoles) > 0 {
		warnings = append(warnings, fmt.Sprintf("Failed roles: %s", strings.Join(stats.FailedRoles, ", ")))
	}
	if len(stats.CancelledRoles) > 0 {
		warnings = append(warnings, fmt.Sprintf("Cancelled roles: %s", strings.Join(stats.CancelledRoles, ", ")))
	}

	if len(warnings) > 0 {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%s⚠ Warnings%s", terminal.Color(terminal.Yellow), terminal.Color(terminal.Reset)))
		lines = append(lines, terminal.Ruler(width, "─"))
		for _, w := range warnings {
			lines = append(lines, fmt.Sprintf("  %s•%s %s", terminal.Color(terminal.Yellow), terminal.Color(terminal.Reset), w))
		}
		lines = append(lines, "")
	}

	roleWord := "roles"
	if stats.TotalAssignments == 1 {
		roleWord = "role"
	}
	lines = append(lines, fmt.Sprintf("%s✓%s %s%s%s written %s(%d/%d %s)%s",
		terminal.Color(terminal.Green), terminal.Color(terminal.Reset),
		terminal.Color(terminal.Bold), artifact.RulesFilename, terminal.Color(terminal.Reset),
		terminal.Color(terminal.Dim), stats.Successful, stats.TotalAssignments, roleWord, terminal.Color(terminal.Reset)))
	if rulesPath != "" {
		lines = append(lines, fmt.Sprintf("  %s%s%s", terminal.Color(terminal.Dim), rulesPath, terminal.Color(terminal.Reset)))
	}

	// Assignment table
	if len(artifact.Assignments) > 0 {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%s%s📋 Analysis plan%s",
			terminal.Color(terminal.Cyan), terminal.Color(terminal.Bold), terminal.Color(terminal.Reset)))
		lines = append(lines, terminal.Ruler(width, "━"))
		for idx, a := range artifact.Assignments {
			lines = append(lines, fmt.Sprintf("%s%s%d.%s %s%s%s %s(%s)%s",
				terminal.Color(terminal.Yellow), terminal.Color(terminal.Bold), idx+1, terminal.Color(terminal.Reset),
				terminal.Color(terminal.Bold), a.Role, terminal.Color(terminal.Reset),
				terminal.Color(terminal.Dim), pluralFiles(len(a.Files)), terminal.Color(terminal.Reset)))
			if a.Description != "" {
				lines = append(lines, terminal.WrapText(a.Description, width-3, "   "))
			}
		}
	}

	if preview := previewRules(artifact.Rules); preview != "" {
		lines = append(lines, "")
		lines = append(lines, terminal.Ruler(width, "─"))
		lines = append(lines, preview)
	}

	lines = append(lines, "")
	lines = append(lines, terminal.Ruler(width, "━"))

	if stats.WallClock > 0 || len(stats.RoleDurations) > 0 || artifact.Duration > 0 {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%sTiming:%s", terminal.Color(terminal.Dim), terminal.Color(terminal.Reset)))

		if stats.WallClock > 0 {
			lines = append(lines, fmt.Sprintf("  %sanalysis: %s%s",
				terminal.Color(terminal.Dim), terminal.FormatDuration(stats.WallClock), terminal.Color(terminal.Reset)))
		}

		if len(stats.RoleDurations) > 0 {
			durations := make([]float64, 0, len(stats.RoleDurations))
			for _, d := range stats.RoleDurations {
				durations = append(durations, d.Seconds())
			}
			slices.Sort(durations)

			var sum float64
			for _, d := range durations {
				sum += d
			}
			avg := sum / float64(len(durations))

			lines = append(lines, fmt.Sprintf("  %s  min %.1fs / avg %.1fs / max %.1fs%s",
				terminal.Color(terminal.Dim), durations[0], avg, durations[len(durations)-1], terminal.Color(terminal.Reset)))
		}

		if artifact.Duration > 0 {
			lines = append(lines, fmt.Sprintf("  %stotal: %s%s",
				terminal.Color(terminal.Dim), terminal.FormatDuration(artifact.Duration), terminal.Color(terminal.Reset)))
		}
	}

	if total := artifact.Usage.Total(); total > 0 {
		lines = append(lines, fmt.Sprintf("  %stokens: %d in / %d out%s",
			terminal.Color(terminal.Dim), artifact.Usage.InputTokens, artifact.Usage.OutputTokens, terminal.Color(terminal.Reset)))
	}

	return strings.Join(lines, "\n")
}

func pluralFiles(n int) string {
	if n == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", n)
}

// previewRules returns the first lines of the rules document, dimmed.
func previewRules(rules string) string {
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return ""
	}
	all := strings.Split(rules, "\n")
	var out []string
	for i, line := range all {
		if i >= maxPreviewLines {
			out = append(out, fmt.Sprintf("  %s… %d more lines%s", terminal.Color(terminal.Dim), len(all)-maxPreviewLines, terminal.Color(terminal.Reset)))
			break
		}
		out = append(out, fmt.Sprintf("  %s%s%s", terminal.Color(terminal.Dim), line, terminal.Color(terminal.Reset)))
	}
	return strings.Join(out, "\n")
}
