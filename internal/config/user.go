package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// UserConfigFileName is the name of the per-user settings file.
const UserConfigFileName = "config.toml"

// ConfigDirEnv overrides the directory holding the user settings file.
const ConfigDirEnv = "AGENTRULES_CONFIG_DIR"

// Verbosity presets.
const (
	VerbosityQuiet    = "quiet"
	VerbosityStandard = "standard"
	VerbosityVerbose  = "verbose"
)

// Verbosities lists the valid verbosity presets.
var Verbosities = []string{VerbosityQuiet, VerbosityStandard, VerbosityVerbose}

// UserConfig is the per-user TOML settings file. It holds credentials and
// defaults shared by every project.
type UserConfig struct {
	Providers     map[string]ProviderCredentials `toml:"providers,omitempty"`
	Models        map[string]string              `toml:"models,omitempty"`
	Verbosity     string                         `toml:"verbosity,omitempty"`
	RulesFilename string                         `toml:"rules_filename,omitempty"`
}

// ProviderCredentials holds a stored API key. Tavily is stored here too.
type ProviderCredentials struct {
	APIKey string `toml:"api_key,omitempty"`
}

// UserLoadResult contains the loaded user config and any warnings.
type UserLoadResult struct {
	Config   *UserConfig
	Path     string
	Found    bool
	Warnings []string
}

// UserConfigDir returns $AGENTRULES_CONFIG_DIR or <user config dir>/agentrules.
func UserConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, "agentrules"), nil
}

// UserConfigPath returns the full path of the user settings file.
func UserConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUser reads the user settings file from its default location.
func LoadUser() (*UserLoadResult, error) {
	path, err := UserConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadUserFromPath(path)
}

// LoadUserFromPath reads a user settings file. Returns an empty config (not
// error) if the file doesn't exist. Keys that do not map to a field become
// warnings.
func LoadUserFromPath(path string) (*UserLoadResult, error) {
	var cfg UserConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return &UserLoadResult{Config: &UserConfig{}, Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var warnings []string
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown key %q in %s", key.String(), path))
	}
	sort.Strings(warnings)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &UserLoadResult{Config: &cfg, Path: path, Found: true, Warnings: warnings}, nil
}

// SaveUser writes cfg to path, creating the directory with owner-only
// permissions since the file may hold API keys.
func SaveUser(path string, cfg *UserConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Validate checks verbosity, provider names and model overrides.
func (u *UserConfig) Validate() error {
	if u.Verbosity != "" && normalizeVerbosity(u.Verbosity) == "" {
		return fmt.Errorf("verbosity must be one of %v, got %q", Verbosities, u.Verbosity)
	}
	for name := range u.Providers {
		if name == "tavily" {
			continue
		}
		if _, err := agent.ParseProvider(name); err != nil {
			return err
		}
	}
	for name, value := range u.Models {
		if name != ResearcherKey {
			if _, err := domain.ParsePhase(name); err != nil {
				return fmt.Errorf("models: %w", err)
			}
		}
		if _, _, err := ParseModelRef(value); err != nil {
			return fmt.Errorf("models.%s: %w", name, err)
		}
	}
	return nil
}

// APIKey returns the stored key for a provider name, or "".
func (u *UserConfig) APIKey(provider string) string {
	if u == nil {
		return ""
	}
	return u.Providers[provider].APIKey
}

// ParseModelRef parses a model override of the form "provider:model" or
// "provider". An empty model selects the provider default.
func ParseModelRef(ref string) (agent.Provider, string, error) {
	name, model, _ := strings.Cut(strings.TrimSpace(ref), ":")
	provider, err := agent.ParseProvider(strings.TrimSpace(name))
	if err != nil {
		return "", "", err
	}
	return provider, strings.TrimSpace(model), nil
}

func normalizeVerbosity(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case VerbosityQuiet, VerbosityStandard, VerbosityVerbose:
		return v
	case "warn", "warning":
		return VerbosityQuiet
	case "info":
		return VerbosityStandard
	case "debug":
		return VerbosityVerbose
	}
	return ""
}
