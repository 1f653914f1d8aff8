package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/filter"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestCapture(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.go":                  "package main\n",
		"go.mod":                   "module example.com/app\n\ngo 1.24\n",
		"internal/app/app.go":      "package app\n",
		"node_modules/x/index.js":  "module.exports = 1\n",
		"assets/logo.png":          "\x89PNG",
		"data/blob.dat":            "a\x00b",
		"docs/generated/api.md":    "# API\n",
		"internal/app/app_test.go": "package app\n",
	})

	snap, err := Capture(context.Background(), root, Options{
		Rules: filter.Rules{Patterns: []string{`^docs/generated/`}},
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	want := []string{"go.mod", "internal/app/app.go", "internal/app/app_test.go", "main.go"}
	if got := snap.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
	if !strings.Contains(snap.Tree, "internal/") {
		t.Errorf("expected tree to contain internal/, got:\n%s", snap.Tree)
	}
	if !strings.Contains(snap.Dependencies, "### go.mod (Go)") {
		t.Errorf("expected go.mod in dependency summary, got:\n%s", snap.Dependencies)
	}
	f, ok := snap.Lookup("main.go")
	if !ok || f.Content != "package main\n" || f.Size != int64(len("package main\n")) {
		t.Errorf("unexpected main.go entry: %+v", f)
	}
}

func TestCapture_MaxFileSizeAndCount(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.txt":   "small",
		"b.txt":   strings.Repeat("x", 100),
		"c.txt":   "small",
		"d/e.txt": "small",
	})

	snap, err := Capture(context.Background(), root, Options{MaxFileSize: 10, MaxFiles: 2})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got := snap.Paths(); !reflect.DeepEqual(got, []string{"a.txt", "c.txt"}) {
		t.Errorf("Paths() = %v, want [a.txt c.txt]", got)
	}
}

func TestCapture_Errors(t *testing.T) {
	if _, err := Capture(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Error("expected error for missing directory")
	}

	root := writeProject(t, map[string]string{"a.go": "package a"})
	if _, err := Capture(context.Background(), filepath.Join(root, "a.go"), Options{}); err == nil {
		t.Error("expected error for a file path")
	}
	if _, err := Capture(context.Background(), root, Options{Rules: filter.Rules{Patterns: []string{"["}}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRenderTree(t *testing.T) {
	paths := []string{"README.md", "cmd/app/main.go", "internal/a/b/c/deep.go", "internal/x.go"}
	got := RenderTree("proj", paths, 2)
	want := `proj/
├── cmd/
│   └── app/ (1 file)
├── internal/
│   ├── a/ (1 file)
│   └── x.go
└── README.md
`
	if got != want {
		t.Errorf("RenderTree() =\n%s\nwant\n%s", got, want)
	}
}

func TestEcosystem(t *testing.T) {
	tests := map[string]string{
		"go.mod":                  "Go",
		"web/package.json":        "JavaScript/TypeScript",
		"requirements-dev.txt":    "Python",
		"src/App/App.csproj":      ".NET",
		"main.go":                 "",
		"docs/requirements.md":    "",
	}
	for p, want := range tests {
		if got := Ecosystem(p); got != want {
			t.Errorf("Ecosystem(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestSummarizeDependencies_Truncates(t *testing.T) {
	files := []domain.FileEntry{{Path: "package.json", Content: strings.Repeat("a", maxManifestChars+10)}}
	got := SummarizeDependencies(files)
	if !strings.Contains(got, "(truncated)") {
		t.Error("expected truncation marker")
	}
	if SummarizeDependencies([]domain.FileEntry{{Path: "main.go"}}) != "" {
		t.Error("expected empty summary without manifests")
	}
}
