package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentrules/agentrules/internal/agent"
)

func TestLoadUserFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), UserConfigFileName)
	content := `verbosity = "standard"
rules_filename = "CLAUDE.md"
colour = "blue"

[providers.anthropic]
api_key = "sk-ant"

[providers.tavily]
api_key = "tvly"

[models]
planning = "openai:gpt-4.1"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := LoadUserFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := result.Config
	if !result.Found || cfg.Verbosity != "standard" || cfg.RulesFilename != "CLAUDE.md" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.APIKey("anthropic") != "sk-ant" || cfg.APIKey("tavily") != "tvly" || cfg.APIKey("openai") != "" {
		t.Errorf("unexpected provider keys: %+v", cfg.Providers)
	}
	if cfg.Models["planning"] != "openai:gpt-4.1" {
		t.Errorf("unexpected models: %v", cfg.Models)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], `"colour"`) {
		t.Errorf("expected one warning for colour, got %v", result.Warnings)
	}
}

func TestLoadUserFromPath_Missing(t *testing.T) {
	result, err := LoadUserFromPath(filepath.Join(t.TempDir(), "nope", UserConfigFileName))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Found || result.Config == nil {
		t.Errorf("expected empty config, got %+v", result)
	}
}

func TestLoadUserFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "verbosity = \n"},
		{"verbosity", `verbosity = "loud"`},
		{"provider", "[providers.mistral]\napi_key = \"x\"\n"},
		{"model phase", "[models]\nreview = \"openai\"\n"},
		{"model provider", "[models]\nplanning = \"mistral:large\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), UserConfigFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadUserFromPath(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveUser_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentrules", UserConfigFileName)
	in := &UserConfig{
		Providers: map[string]ProviderCredentials{"openai": {APIKey: "sk-openai"}},
		Models:    map[string]string{"final": "anthropic"},
		Verbosity: VerbosityVerbose,
	}
	if err := SaveUser(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %o", perm)
	}

	result, err := LoadUserFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if result.Config.APIKey("openai") != "sk-openai" || result.Config.Models["final"] != "anthropic" {
		t.Errorf("round trip lost data: %+v", result.Config)
	}
}

func TestUserConfigDir_Env(t *testing.T) {
	t.Setenv(ConfigDirEnv, "/tmp/agentrules-test")
	path, err := UserConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join("/tmp/agentrules-test", UserConfigFileName) {
		t.Errorf("unexpected path %q", path)
	}
}

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		ref      string
		provider agent.Provider
		model    string
		wantErr  bool
	}{
		{"openai:gpt-4.1", agent.ProviderOpenAI, "gpt-4.1", false},
		{"anthropic", agent.ProviderAnthropic, "", false},
		{" gemini : gemini-2.5-flash ", agent.ProviderGemini, "gemini-2.5-flash", false},
		{"mistral:large", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			p, m, err := ParseModelRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if p != tt.provider || m != tt.model {
				t.Errorf("got %s/%q, want %s/%q", p, m, tt.provider, tt.model)
			}
		})
	}
}
