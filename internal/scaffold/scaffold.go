// Package scaffold keeps the .agent planning guides in a repository in sync
// with the templates shipped in the binary.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/output"
)

const (
	AgentDir      = ".agent"
	TemplatesDir  = "templates"
	PlansFile     = "PLANS.md"
	MilestoneFile = "MILESTONE_TEMPLATE.md"
)

//go:embed templates/*.md
var templates embed.FS

// Status describes what Sync found or did for one file.
type Status string

const (
	StatusCreated  Status = "created"
	StatusUpToDate Status = "up-to-date"
	StatusMissing  Status = "missing"  // check mode only
	StatusOutdated Status = "outdated" // content differs and was left alone
	StatusUpdated  Status = "updated"  // overwritten under force, with a backup
)

// FileResult is the outcome for one scaffold file.
type FileResult struct {
	Path   string // Slash-separated, relative to the root
	Status Status
	Backup string // Relative backup path when Status is StatusUpdated
}

func (f FileResult) String() string {
	switch f.Status {
	case StatusCreated:
		return "Created " + f.Path
	case StatusUpToDate:
		return "Up-to-date " + f.Path
	case StatusMissing:
		return "Missing " + f.Path
	case StatusUpdated:
		return fmt.Sprintf("Updated %s (backup: %s)", f.Path, f.Backup)
	default:
		return "Outdated " + f.Path
	}
}

// Result is the outcome of a Sync.
type Result struct {
	Files []FileResult
}

// Drift reports whether any file is missing or differs from its template.
func (r Result) Drift() bool {
	for _, f := range r.Files {
		if f.Status == StatusMissing || f.Status == StatusOutdated {
			return true
		}
	}
	return false
}

// Changed reports whether Sync wrote anything.
func (r Result) Changed() bool {
	for _, f := range r.Files {
		if f.Status == StatusCreated || f.Status == StatusUpdated {
			return true
		}
	}
	return false
}

// Options controls Sync.
type Options struct {
	Check  bool // Report drift without writing
	Force  bool // Overwrite outdated files after backing them up
	Now    func() time.Time
	Logger *zap.Logger
}

type entry struct {
	rel      string
	template string
}

func entries() []entry {
	return []entry{
		{rel: path.Join(AgentDir, PlansFile), template: PlansFile},
		{rel: path.Join(AgentDir, TemplatesDir, MilestoneFile), template: MilestoneFile},
	}
}

// Template returns the shipped content for a scaffold file name.
func Template(name string) ([]byte, error) {
	return fs.ReadFile(templates, path.Join("templates", name))
}

// Sync creates missing scaffold files under root. Existing files that differ
// from their template are kept unless opts.Force is set. In check mode
// nothing is written.
func Sync(root string, opts Options) (Result, error) {
	if opts.Check && opts.Force {
		return Result{}, errors.New("check and force cannot be combined")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(root)
	if err != nil {
		return Result{}, fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("target path is not a directory: %s", root)
	}

	var result Result
	for _, e := range entries() {
		dest := filepath.Join(root, filepath.FromSlash(e.rel))
		if err := checkNoSymlinks(root, e.rel); err != nil {
			return result, err
		}
		want, err := Template(e.template)
		if err != nil {
			return result, fmt.Errorf("load template %s: %w", e.template, err)
		}

		fr, err := syncFile(root, dest, e.rel, want, opts)
		if err != nil {
			return result, err
		}
		logger.Debug("scaffold file", zap.String("path", fr.Path), zap.String("status", string(fr.Status)))
		result.Files = append(result.Files, fr)
	}
	return result, nil
}

func syncFile(root, dest, rel string, want []byte, opts Options) (FileResult, error) {
	fr := FileResult{Path: rel}
	current, err := os.ReadFile(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if opts.Check {
			fr.Status = StatusMissing
			return fr, nil
		}
		if err := output.WriteFileAtomic(dest, want); err != nil {
			return fr, fmt.Errorf("write %s: %w", rel, err)
		}
		fr.Status = StatusCreated
		return fr, nil
	case err != nil:
		return fr, fmt.Errorf("read %s: %w", rel, err)
	}

	if bytes.Equal(current, want) {
		fr.Status = StatusUpToDate
		return fr, nil
	}
	if !opts.Force {
		fr.Status = StatusOutdated
		return fr, nil
	}

	backup := nextBackup(dest, opts.Now().UTC())
	if err := output.WriteFileAtomic(backup, current); err != nil {
		return fr, fmt.Errorf("back up %s: %w", rel, err)
	}
	if err := output.WriteFileAtomic(dest, want); err != nil {
		return fr, fmt.Errorf("write %s: %w", rel, err)
	}
	relBackup, err := filepath.Rel(root, backup)
	if err != nil {
		relBackup = backup
	}
	fr.Status = StatusUpdated
	fr.Backup = filepath.ToSlash(relBackup)
	return fr, nil
}

// nextBackup returns dest.bak.<timestamp>, with a numeric suffix when that
// name is taken.
func nextBackup(dest string, now time.Time) string {
	base := dest + ".bak." + now.Format("20060102150405Z")
	candidate := base
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", base, i)
	}
}

// checkNoSymlinks rejects a scaffold path when any existing component below
// root is a symlink.
func checkNoSymlinks(root, rel string) error {
	current := root
	for _, part := range strings.Split(rel, "/") {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinked scaffold path is not allowed: %s", current)
		}
	}
	return nil
}
