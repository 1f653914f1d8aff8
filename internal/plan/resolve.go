package plan

import (
	"strings"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// Resolve restricts every assignment to files present in the snapshot.
// A path that is not an exact match resolves to the unique snapshot path
// ending in "/"+path, if there is exactly one. Unknown paths and assignments
// left without files are dropped with a warning. Files claimed by several
// assignments stay with all of them.
//
// Returns a *domain.PlanParseError when no assignment survives.
func Resolve(assignments []domain.Assignment, snapshot *domain.Snapshot, logger *zap.Logger) ([]domain.Assignment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	index := newSuffixIndex(snapshot)

	var resolved []domain.Assignment
	for _, a := range assignments {
		seen := make(map[string]bool, len(a.Files))
		var files []string
		for _, f := range a.Files {
			p, ok := index.resolve(f)
			if !ok {
				logger.Warn("dropping file not in snapshot",
					zap.String("role", a.Role), zap.String("file", f))
				continue
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			files = append(files, p)
		}
		if len(files) == 0 {
			logger.Warn("dropping assignment with no snapshot files", zap.String("role", a.Role))
			continue
		}
		a.Files = files
		resolved = append(resolved, a)
	}

	if len(resolved) == 0 {
		return nil, domain.NewPlanParseError("no assignment references a file in the project snapshot", "")
	}
	return resolved, nil
}

type suffixIndex struct {
	snapshot *domain.Snapshot
	byBase   map[string][]string
}

func newSuffixIndex(s *domain.Snapshot) *suffixIndex {
	idx := &suffixIndex{snapshot: s, byBase: map[string][]string{}}
	for _, p := range s.Paths() {
		base := p[strings.LastIndex(p, "/")+1:]
		idx.byBase[base] = append(idx.byBase[base], p)
	}
	return idx
}

func (idx *suffixIndex) resolve(p string) (string, bool) {
	p = domain.NormalizePath(p)
	if p == "" {
		return "", false
	}
	if idx.snapshot.Has(p) {
		return p, true
	}
	base := p[strings.LastIndex(p, "/")+1:]
	var match string
	for _, candidate := range idx.byBase[base] {
		if strings.HasSuffix(candidate, "/"+p) {
			if match != "" {
				return "", false
			}
			match = candidate
		}
	}
	return match, match != ""
}
