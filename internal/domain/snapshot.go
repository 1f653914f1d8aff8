package domain

import (
	"path"
	"strings"
)

// FileEntry is one captured file of the analyzed project.
type FileEntry struct {
	Path    string // Slash-separated, relative to the project root
	Content string
	Size    int64
}

// Snapshot is the immutable view of a project captured at pipeline start.
// Files keep the order in which they were captured.
type Snapshot struct {
	Root         string
	Files        []FileEntry
	Tree         string
	Dependencies string // Rendered dependency manifest summary, may be empty

	index map[string]int
}

// NewSnapshot builds a snapshot and indexes its paths. Duplicate paths keep
// the first occurrence.
func NewSnapshot(root string, files []FileEntry, tree, dependencies string) *Snapshot {
	s := &Snapshot{
		Root:         root,
		Tree:         tree,
		Dependencies: dependencies,
		index:        make(map[string]int, len(files)),
	}
	for _, f := range files {
		f.Path = NormalizePath(f.Path)
		if _, dup := s.index[f.Path]; dup || f.Path == "" {
			continue
		}
		s.index[f.Path] = len(s.Files)
		s.Files = append(s.Files, f)
	}
	return s
}

// Paths returns the snapshot's file paths in capture order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = f.Path
	}
	return paths
}

// Has reports whether the normalized path is part of the snapshot.
func (s *Snapshot) Has(p string) bool {
	_, ok := s.index[NormalizePath(p)]
	return ok
}

// Lookup returns the entry for a path.
func (s *Snapshot) Lookup(p string) (FileEntry, bool) {
	i, ok := s.index[NormalizePath(p)]
	if !ok {
		return FileEntry{}, false
	}
	return s.Files[i], true
}

// Subset returns the entries for the given paths, skipping unknown ones.
func (s *Snapshot) Subset(paths []string) []FileEntry {
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		if f, ok := s.Lookup(p); ok {
			entries = append(entries, f)
		}
	}
	return entries
}

// Len returns the number of captured files.
func (s *Snapshot) Len() int {
	return len(s.Files)
}

// NormalizePath converts a path as an agent might write it ("./src\\a.py",
// "/src/a.py") into the snapshot's canonical relative form ("src/a.py").
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`'\"")
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}
