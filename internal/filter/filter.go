// Package filter decides which project paths are excluded from a snapshot.
package filter

import (
	"path"
	"regexp"
	"strings"
)

// Rules lists exclusions by directory name, file name, extension and regex
// pattern. Patterns match against the slash-separated relative path.
type Rules struct {
	Directories []string `yaml:"directories,omitempty"`
	Files       []string `yaml:"files,omitempty"`
	Extensions  []string `yaml:"extensions,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty"`
}

// DefaultRules returns the built-in exclusions: VCS and dependency
// directories, build output, lock files and binary formats.
func DefaultRules() Rules {
	return Rules{
		Directories: []string{
			".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__", ".venv", "venv",
			".tox", ".mypy_cache", ".pytest_cache", ".ruff_cache", "dist", "build", "target",
			".next", ".nuxt", "coverage", ".idea", ".vscode", ".gradle", ".terraform",
		},
		Files: []string{
			".DS_Store", "Thumbs.db", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
			"poetry.lock", "Cargo.lock", "go.sum", "composer.lock", "Gemfile.lock", ".env",
		},
		Extensions: []string{
			".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".svg", ".webp", ".pdf",
			".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".jar", ".war",
			".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class", ".pyc", ".pyo", ".wasm",
			".woff", ".woff2", ".ttf", ".eot", ".mp3", ".mp4", ".mov", ".avi", ".db", ".sqlite",
			".min.js", ".min.css", ".map", ".lock", ".log",
		},
	}
}

// Merge returns r with other's entries appended.
func (r Rules) Merge(other Rules) Rules {
	return Rules{
		Directories: append(append([]string(nil), r.Directories...), other.Directories...),
		Files:       append(append([]string(nil), r.Files...), other.Files...),
		Extensions:  append(append([]string(nil), r.Extensions...), other.Extensions...),
		Patterns:    append(append([]string(nil), r.Patterns...), other.Patterns...),
	}
}

// Filter holds compiled exclusion rules.
type Filter struct {
	dirs            map[string]bool
	files           map[string]bool
	extensions      []string
	excludePatterns []*regexp.Regexp
}

// New compiles rules into a Filter.
// Returns an error if any pattern is an invalid regex.
func New(rules Rules) (*Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(rules.Patterns))
	for _, p := range rules.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}

	f := &Filter{
		dirs:            toSet(rules.Directories),
		files:           toSet(rules.Files),
		excludePatterns: compiled,
	}
	for _, ext := range rules.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions = append(f.extensions, ext)
	}
	return f, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}

// ExcludeDir reports whether a directory (relative path) should be skipped
// along with everything under it.
func (f *Filter) ExcludeDir(rel string) bool {
	if f.dirs[path.Base(rel)] {
		return true
	}
	return f.matchPattern(rel + "/")
}

// Exclude reports whether a file (relative path) should be skipped. Files
// under an excluded directory are excluded too.
func (f *Filter) Exclude(rel string) bool {
	dir := path.Dir(rel)
	for dir != "." && dir != "/" && dir != "" {
		if f.dirs[path.Base(dir)] {
			return true
		}
		dir = path.Dir(dir)
	}

	base := path.Base(rel)
	if f.files[base] {
		return true
	}
	lower := strings.ToLower(base)
	for _, ext := range f.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return f.matchPattern(rel)
}

func (f *Filter) matchPattern(rel string) bool {
	for _, re := range f.excludePatterns {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}
