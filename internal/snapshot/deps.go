package snapshot

import (
	"fmt"
	"path"
	"strings"

	"github.com/agentrules/agentrules/internal/domain"
)

const maxManifestChars = 4000

var manifestNames = map[string]string{
	"go.mod":           "Go",
	"package.json":     "JavaScript/TypeScript",
	"requirements.txt": "Python",
	"pyproject.toml":   "Python",
	"Pipfile":          "Python",
	"setup.py":         "Python",
	"setup.cfg":        "Python",
	"Cargo.toml":       "Rust",
	"Gemfile":          "Ruby",
	"composer.json":    "PHP",
	"pom.xml":          "Java",
	"build.gradle":     "Java/Kotlin",
	"build.gradle.kts": "Kotlin",
	"mix.exs":          "Elixir",
	"pubspec.yaml":     "Dart",
	"Package.swift":    "Swift",
	"deno.json":        "Deno",
}

// Ecosystem returns the language ecosystem of a dependency manifest, or ""
// when p is not a recognized manifest.
func Ecosystem(p string) string {
	base := path.Base(p)
	if eco, ok := manifestNames[base]; ok {
		return eco
	}
	switch {
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
		return "Python"
	case strings.HasSuffix(base, ".csproj"), strings.HasSuffix(base, ".fsproj"):
		return ".NET"
	}
	return ""
}

// Manifests returns the dependency manifests among files, in order.
func Manifests(files []domain.FileEntry) []domain.FileEntry {
	var out []domain.FileEntry
	for _, f := range files {
		if Ecosystem(f.Path) != "" {
			out = append(out, f)
		}
	}
	return out
}

// SummarizeDependencies renders every manifest as a fenced block, truncating
// long ones. Returns "" when there are none.
func SummarizeDependencies(files []domain.FileEntry) string {
	manifests := Manifests(files)
	if len(manifests) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range manifests {
		content := m.Content
		if len(content) > maxManifestChars {
			content = content[:maxManifestChars] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "### %s (%s)\n```\n%s\n```\n\n", m.Path, Ecosystem(m.Path), strings.TrimRight(content, "\n"))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
