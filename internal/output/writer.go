// Package output persists a pipeline artifact: the rules document and,
// optionally, one markdown file per phase plus a run summary.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// DefaultPhaseDir is the directory, relative to the output root, that holds
// per-phase artifacts.
const DefaultPhaseDir = "phases_output"

// Writer writes artifacts under Dir.
type Writer struct {
	Dir         string // Output root; the rules file is written here
	PhaseDir    string // Relative to Dir; defaults to DefaultPhaseDir
	PhaseOutput bool   // Also write per-phase artifacts
	Logger      *zap.Logger
}

// Paths lists the files a Write produced.
type Paths struct {
	Rules   string
	Phases  []string
	Summary string
}

// Write persists artifact. The rules filename must be a bare file name.
func (w *Writer) Write(artifact *domain.Artifact) (Paths, error) {
	var paths Paths
	if err := ValidateFilename(artifact.RulesFilename); err != nil {
		return paths, err
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	paths.Rules = filepath.Join(w.Dir, artifact.RulesFilename)
	if err := WriteFileAtomic(paths.Rules, []byte(artifact.Rules)); err != nil {
		return paths, fmt.Errorf("write rules file: %w", err)
	}
	logger.Info("rules file written", zap.String("path", paths.Rules))

	if !w.PhaseOutput {
		return paths, nil
	}

	phaseDir := w.PhaseDir
	if phaseDir == "" {
		phaseDir = DefaultPhaseDir
	}
	dir := filepath.Join(w.Dir, phaseDir)

	for _, doc := range phaseDocuments(artifact) {
		path := filepath.Join(dir, doc.name)
		if err := WriteFileAtomic(path, []byte(doc.body)); err != nil {
			return paths, fmt.Errorf("write %s: %w", doc.name, err)
		}
		paths.Phases = append(paths.Phases, path)
	}

	summary, err := json.MarshalIndent(newSummary(artifact), "", "  ")
	if err != nil {
		return paths, fmt.Errorf("encode run summary: %w", err)
	}
	paths.Summary = filepath.Join(dir, "run.json")
	if err := WriteFileAtomic(paths.Summary, append(summary, '\n')); err != nil {
		return paths, fmt.Errorf("write run summary: %w", err)
	}
	logger.Info("phase artifacts written", zap.String("dir", dir), zap.Int("files", len(paths.Phases)+1))
	return paths, nil
}

// ValidateFilename rejects empty names, dot names and anything with a path
// separator.
func ValidateFilename(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return &domain.ConfigurationError{Key: "rules_filename", Reason: "must not be empty"}
	case trimmed != name:
		return &domain.ConfigurationError{Key: "rules_filename", Reason: "must not have surrounding whitespace"}
	case name == "." || name == "..":
		return &domain.ConfigurationError{Key: "rules_filename", Reason: fmt.Sprintf("%q is not a file name", name)}
	case strings.ContainsAny(name, `/\`):
		return &domain.ConfigurationError{Key: "rules_filename", Reason: "must be a file name, not a path"}
	}
	return nil
}

type document struct {
	name string
	body string
}

func phaseDocuments(a *domain.Artifact) []document {
	var docs []document
	var analyses []domain.PhaseResult
	for _, r := range a.Results {
		if r.Phase == domain.PhaseAnalysis {
			analyses = append(analyses, r)
			continue
		}
		if !r.Succeeded() {
			continue
		}
		docs = append(docs, document{
			name: fmt.Sprintf("phase%d_%s.md", r.Phase.Number(), r.Phase),
			body: fmt.Sprintf("# %s\n\n%s\n", r.Phase.Title(), strings.TrimSpace(r.Output)),
		})
	}

	if len(analyses) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n", domain.PhaseAnalysis.Title())
		for _, r := range analyses {
			fmt.Fprintf(&b, "\n## %s\n\n", r.Role)
			if !r.Succeeded() {
				fmt.Fprintf(&b, "_%s: %v_\n", r.Status, r.Err)
				continue
			}
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(r.Output))
		}
		docs = append(docs, document{name: fmt.Sprintf("phase%d_%s.md", domain.PhaseAnalysis.Number(), domain.PhaseAnalysis), body: b.String()})
	}
	return docs
}

type summary struct {
	RunID         string              `json:"run_id"`
	RulesFilename string              `json:"rules_filename"`
	Duration      string              `json:"duration"`
	Usage         domain.Usage        `json:"usage"`
	Assignments   []domain.Assignment `json:"assignments"`
	FailedRoles   []string            `json:"failed_roles,omitempty"`
	Phases        []phaseSummary      `json:"phases"`
}

type phaseSummary struct {
	Phase    string       `json:"phase"`
	Role     string       `json:"role,omitempty"`
	Status   string       `json:"status"`
	Attempts int          `json:"attempts"`
	Duration string       `json:"duration"`
	Usage    domain.Usage `json:"usage"`
	Error    string       `json:"error,omitempty"`
}

func newSummary(a *domain.Artifact) summary {
	s := summary{
		RunID:         a.RunID,
		RulesFilename: a.RulesFilename,
		Duration:      a.Duration.Round(time.Millisecond).String(),
		Usage:         a.Usage,
		Assignments:   a.Assignments,
		FailedRoles:   a.FailedRoles,
	}
	for _, r := range a.Results {
		ps := phaseSummary{
			Phase:    string(r.Phase),
			Role:     r.Role,
			Status:   r.Status.String(),
			Attempts: r.Attempts,
			Duration: r.Duration.Round(time.Millisecond).String(),
			Usage:    r.Usage,
		}
		if r.Err != nil {
			ps.Error = r.Err.Error()
		}
		s.Phases = append(s.Phases, ps)
	}
	return s
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
