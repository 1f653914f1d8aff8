// Package integration provides end-to-end tests for the agentrules binary.
//
// The binary is built once per test and run against a temporary git project
// with the offline provider, so the whole pipeline executes without network
// access or API keys: snapshot capture through git, all six phases, and the
// rules and phase output files.
package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// testEnv holds paths and state for integration test execution.
type testEnv struct {
	bin       string // Path to built agentrules binary
	repoDir   string // Temporary git project to analyze
	configDir string // Isolated user config directory
}

// setupTestEnv builds the binary and creates a temporary git project.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	rootDir := findRepoRoot(t)
	bin := filepath.Join(t.TempDir(), "agentrules")
	build := exec.Command("go", "build", "-o", bin, "./cmd/agentrules")
	build.Dir = rootDir
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("failed to build agentrules: %v\n%s", err, out)
	}

	return &testEnv{
		bin:       bin,
		repoDir:   createTestRepo(t),
		configDir: t.TempDir(),
	}
}

// environ returns the process environment without variables that would
// change resolution, plus an isolated user config directory.
func (e *testEnv) environ(extra ...string) []string {
	var env []string
	for _, v := range os.Environ() {
		name, _, _ := strings.Cut(v, "=")
		if strings.HasPrefix(name, "AGENTRULES_") || strings.HasSuffix(name, "_API_KEY") || name == "OFFLINE" {
			continue
		}
		env = append(env, v)
	}
	env = append(env, "AGENTRULES_CONFIG_DIR="+e.configDir)
	return append(env, extra...)
}

// run executes agentrules with the given args and returns stdout, stderr, and exit code.
func (e *testEnv) run(args ...string) (stdout, stderr string, exitCode int) {
	return e.runWithEnv(nil, args...)
}

func (e *testEnv) runWithEnv(extra []string, args ...string) (stdout, stderr string, exitCode int) {
	cmd := exec.Command(e.bin, args...)
	cmd.Dir = e.repoDir
	cmd.Env = e.environ(extra...)

	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	exitCode = 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return outBuf.String(), errBuf.String(), exitCode
}

// findRepoRoot walks up to find the go.mod file.
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root (no go.mod)")
		}
		dir = parent
	}
}

// createTestRepo creates a git project with a committed source tree, an
// untracked file, and an ignored directory.
func createTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"go.mod":                   "module example.com/shop\n\ngo 1.24\n\nrequire github.com/spf13/cobra v1.10.2\n",
		"main.go":                  "package main\n\nimport \"example.com/shop/internal/api\"\n\nfunc main() { api.Serve() }\n",
		"internal/api/server.go":   "package api\n\n// Serve starts the HTTP API.\nfunc Serve() {}\n",
		"internal/store/orders.go": "package store\n\n// Order is a placed order.\ntype Order struct{ ID string }\n",
		"README.md":                "# shop\n\nA demo service.\n",
		".gitignore":               "generated/\n",
		"generated/huge.go":        "package generated\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cmds := [][]string{
		{"git", "init"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
		{"git", "add", "."},
		{"git", "commit", "-m", "initial"},
	}
	for _, c := range cmds {
		cmd := exec.Command(c[0], c[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git setup %v: %v\n%s", c, err, out)
		}
	}

	// Untracked but not ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestVersion(t *testing.T) {
	env := setupTestEnv(t)
	stdout, _, code := env.run("--version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(stdout, "agentrules ") {
		t.Errorf("unexpected version output: %q", stdout)
	}
}

func TestHelp(t *testing.T) {
	env := setupTestEnv(t)
	stdout, stderr, code := env.run("--help")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	out := stdout + stderr
	for _, want := range []string{"Run Settings:", "Agent Settings:", "--offline", "config"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in help output", want)
		}
	}
}

func TestConfigSubcommands(t *testing.T) {
	env := setupTestEnv(t)

	if _, stderr, code := env.run("config", "init"); code != 0 {
		t.Fatalf("config init: exit code = %d\n%s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(env.repoDir, ".agentrules.yaml")); err != nil {
		t.Fatalf("expected .agentrules.yaml: %v", err)
	}

	if _, stderr, code := env.run("config", "validate"); code != 0 {
		t.Errorf("config validate: exit code = %d\n%s", code, stderr)
	}

	stdout, stderr, code := env.runWithEnv([]string{"OFFLINE=1"}, "config", "show")
	if code != 0 {
		t.Fatalf("config show: exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "offline:offline") {
		t.Errorf("expected offline agents in config show, got:\n%s", stdout)
	}
}

func TestOfflineRun_WritesRules(t *testing.T) {
	env := setupTestEnv(t)

	_, stderr, code := env.run("--offline", "--phase-output")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, stderr)
	}

	rules, err := os.ReadFile(filepath.Join(env.repoDir, "AGENTS.md"))
	if err != nil {
		t.Fatalf("expected AGENTS.md: %v", err)
	}
	if strings.TrimSpace(string(rules)) == "" {
		t.Error("expected non-empty AGENTS.md")
	}
	if !strings.Contains(stderr, "AGENTS.md written") {
		t.Errorf("expected completion report on stderr, got:\n%s", stderr)
	}

	data, err := os.ReadFile(filepath.Join(env.repoDir, "phases_output", "run.json"))
	if err != nil {
		t.Fatalf("expected run.json: %v", err)
	}
	var summary struct {
		Assignments []struct {
			Role  string   `json:"role"`
			Files []string `json:"files"`
		} `json:"assignments"`
		Phases []struct {
			Phase  string `json:"phase"`
			Status string `json:"status"`
		} `json:"phases"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("invalid run.json: %v", err)
	}
	if len(summary.Assignments) == 0 {
		t.Error("expected at least one analysis assignment")
	}
	if strings.Contains(string(data), "generated/huge.go") {
		t.Error("ignored files must not reach the analysis plan")
	}

	seen := map[string]bool{}
	for _, p := range summary.Phases {
		seen[p.Phase] = true
	}
	for _, phase := range []string{"discovery", "planning", "analysis", "synthesis", "consolidation", "final"} {
		if !seen[phase] {
			t.Errorf("expected %s in run.json phases", phase)
		}
	}
}

func TestOfflineRun_Deterministic(t *testing.T) {
	env := setupTestEnv(t)

	read := func() string {
		if _, stderr, code := env.run("--offline", "--researcher", "off"); code != 0 {
			t.Fatalf("exit code = %d\n%s", code, stderr)
		}
		data, err := os.ReadFile(filepath.Join(env.repoDir, "AGENTS.md"))
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	first := read()
	if second := read(); first != second {
		t.Error("expected identical rules across offline runs")
	}
}

func TestMissingAPIKey(t *testing.T) {
	env := setupTestEnv(t)

	_, stderr, code := env.run("--provider", "anthropic")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "ANTHROPIC_API_KEY") {
		t.Errorf("expected missing key to be named, got:\n%s", stderr)
	}
	if _, err := os.Stat(filepath.Join(env.repoDir, "AGENTS.md")); !os.IsNotExist(err) {
		t.Error("expected no rules file")
	}
}

func TestInvalidConfig(t *testing.T) {
	env := setupTestEnv(t)
	if err := os.WriteFile(filepath.Join(env.repoDir, ".agentrules.yaml"), []byte("concurrency: -2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := env.run("--offline")
	if code != 2 {
		t.Errorf("exit code = %d, want 2\n%s", code, stderr)
	}

	// --no-config skips the broken file
	if _, stderr, code := env.run("--offline", "--no-config"); code != 0 {
		t.Errorf("--no-config: exit code = %d, want 0\n%s", code, stderr)
	}
}

func TestVerboseOutput(t *testing.T) {
	env := setupTestEnv(t)

	_, stderr, code := env.run("--offline", "--verbose", "--researcher", "off")
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stderr, "Phase 1: Initial Discovery") {
		t.Errorf("expected phase progress in verbose output, got:\n%s", stderr)
	}
}
