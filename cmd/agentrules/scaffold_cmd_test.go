package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/scaffold"
)

func TestScaffoldSync(t *testing.T) {
	dir := t.TempDir()

	code, out := runCLI(t, "scaffold", "sync", "--check", dir)
	if code != domain.ExitPartial.Int() {
		t.Fatalf("check on empty repo: exit code = %d, want %d\n%s", code, domain.ExitPartial.Int(), out)
	}
	if !strings.Contains(out, "Missing .agent/PLANS.md") {
		t.Errorf("expected missing report, got:\n%s", out)
	}

	code, out = runCLI(t, "scaffold", "sync", dir)
	if code != domain.ExitSuccess.Int() {
		t.Fatalf("sync: exit code = %d\n%s", code, out)
	}
	if !strings.Contains(out, "Created .agent/templates/MILESTONE_TEMPLATE.md") {
		t.Errorf("expected created report, got:\n%s", out)
	}

	code, out = runCLI(t, "scaffold", "sync", "--check", dir)
	if code != domain.ExitSuccess.Int() || !strings.Contains(out, "up-to-date") {
		t.Errorf("check after sync: exit code = %d\n%s", code, out)
	}
}

func TestScaffoldSync_OutdatedNeedsForce(t *testing.T) {
	dir := t.TempDir()
	plans := filepath.Join(dir, scaffold.AgentDir, scaffold.PlansFile)
	if code, out := runCLI(t, "scaffold", "sync", dir); code != 0 {
		t.Fatalf("sync: %s", out)
	}
	if err := os.WriteFile(plans, []byte("edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out := runCLI(t, "scaffold", "sync", dir)
	if code != domain.ExitSuccess.Int() || !strings.Contains(out, "run with --force") {
		t.Errorf("expected kept-file hint, exit %d:\n%s", code, out)
	}

	code, out = runCLI(t, "scaffold", "sync", "--force", dir)
	if code != domain.ExitSuccess.Int() || !strings.Contains(out, "Updated .agent/PLANS.md (backup: ") {
		t.Errorf("expected forced update, exit %d:\n%s", code, out)
	}
	want, _ := scaffold.Template(scaffold.PlansFile)
	if data, _ := os.ReadFile(plans); string(data) != string(want) {
		t.Error("expected PLANS.md to match the template after --force")
	}
}

func TestScaffoldSync_CheckAndForceConflict(t *testing.T) {
	code, out := runCLI(t, "scaffold", "sync", "--check", "--force", t.TempDir())
	if code != domain.ExitError.Int() || !strings.Contains(out, "not both") {
		t.Errorf("exit code = %d\n%s", code, out)
	}
}
