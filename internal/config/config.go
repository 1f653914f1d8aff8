// Package config provides configuration file support for agentrules.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/filter"
	"github.com/agentrules/agentrules/internal/output"
	"github.com/agentrules/agentrules/internal/phase"
)

// ConfigFileName is the name of the project config file.
const ConfigFileName = ".agentrules.yaml"

// ResearcherKey is the phases entry that configures the researcher agent.
const ResearcherKey = "researcher"

// Duration is a custom type that handles YAML duration parsing.
// Supports both Go duration format ("5m", "300s") and numeric seconds.
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration type: %T", v)
	}
	return nil
}

// MarshalYAML writes the duration in Go format.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Config represents the project configuration file.
type Config struct {
	Concurrency       *int                     `yaml:"concurrency,omitempty"`
	Timeout           *Duration                `yaml:"timeout,omitempty"`
	Retries           *int                     `yaml:"retries,omitempty"`
	RulesFilename     *string                  `yaml:"rules_filename,omitempty"`
	Researcher        *string                  `yaml:"researcher,omitempty"`
	PhaseOutput       *bool                    `yaml:"phase_output,omitempty"`
	TreeMaxDepth      *int                     `yaml:"tree_max_depth,omitempty"`
	MaxFileSize       *int64                   `yaml:"max_file_size,omitempty"`
	RequestsPerMinute *int                     `yaml:"requests_per_minute,omitempty"`
	Phases            map[string]PhaseSettings `yaml:"phases,omitempty"`
	Exclusions        filter.Rules             `yaml:"exclusions,omitempty"`
}

// PhaseSettings overrides the agent used by one phase.
type PhaseSettings struct {
	Provider    *string  `yaml:"provider,omitempty"`
	Model       *string  `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Reasoning   *string  `yaml:"reasoning,omitempty"`
	Tools       []string `yaml:"tools,omitempty"`
	BaseURL     *string  `yaml:"base_url,omitempty"`
}

// LoadResult contains the loaded config and any warnings encountered.
type LoadResult struct {
	Config   *Config
	Path     string
	Found    bool
	Warnings []string
}

// LoadFromDirWithWarnings reads .agentrules.yaml from dir, the project being
// analyzed. Returns an empty config (not error) if the file doesn't exist.
func LoadFromDirWithWarnings(dir string) (*LoadResult, error) {
	return LoadFromPathWithWarnings(filepath.Join(dir, ConfigFileName))
}

// LoadFromPathWithWarnings reads a config file and returns warnings for unknown keys.
// Returns an empty config (not error) if the file doesn't exist.
// Returns an error if the file exists but is invalid YAML or fails validation.
func LoadFromPathWithWarnings(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &LoadResult{Config: &Config{}, Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	warnings := checkUnknownKeys(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigFileName, err)
	}

	if err := cfg.validatePatterns(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFileName, err)
	}

	return &LoadResult{Config: &cfg, Path: path, Found: true, Warnings: warnings}, nil
}

// validatePatterns checks that all exclusion patterns are valid regex.
func (c *Config) validatePatterns() error {
	for _, pattern := range c.Exclusions.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex pattern %q in %s: %w", pattern, ConfigFileName, err)
		}
	}
	return nil
}

// knownTopLevelKeys are the valid top-level keys in the config file.
var knownTopLevelKeys = []string{
	"concurrency", "timeout", "retries", "rules_filename", "researcher", "phase_output",
	"tree_max_depth", "max_file_size", "requests_per_minute", "phases", "exclusions",
}

// knownPhaseKeys are the valid keys under each "phases.<name>" section.
var knownPhaseKeys = []string{"provider", "model", "temperature", "max_tokens", "reasoning", "tools", "base_url"}

// knownExclusionKeys are the valid keys under the "exclusions" section.
var knownExclusionKeys = []string{"directories", "files", "extensions", "patterns"}

// phaseNames are the accepted phase section names.
func phaseNames() []string {
	names := make([]string, 0, len(domain.Phases)+1)
	for _, p := range domain.Phases {
		names = append(names, string(p))
	}
	return append(names, ResearcherKey)
}

// checkUnknownKeys checks for unknown keys in the YAML data and returns warnings.
func checkUnknownKeys(data []byte) []string {
	var warnings []string

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		// Let the main parser report the error
		return nil
	}

	warnings = append(warnings, unknownKeys(raw, knownTopLevelKeys, "")...)

	if exclusions, ok := raw["exclusions"].(map[string]any); ok {
		warnings = append(warnings, unknownKeys(exclusions, knownExclusionKeys, "exclusions section of ")...)
	}

	if phases, ok := raw["phases"].(map[string]any); ok {
		for name, section := range phases {
			settings, ok := section.(map[string]any)
			if !ok {
				continue
			}
			warnings = append(warnings, unknownKeys(settings, knownPhaseKeys, fmt.Sprintf("phases.%s section of ", name))...)
		}
	}

	sort.Strings(warnings)
	return warnings
}

func unknownKeys(section map[string]any, known []string, where string) []string {
	var warnings []string
	for key := range section {
		if slices.Contains(known, key) {
			continue
		}
		warning := fmt.Sprintf("unknown key %q in %s%s", key, where, ConfigFileName)
		if suggestion := findSimilar(key, known); suggestion != "" {
			warning += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		warnings = append(warnings, warning)
	}
	return warnings
}

// findSimilar finds the most similar string from candidates using Levenshtein distance.
// Returns empty string if no candidate is similar enough (threshold: 3 edits).
func findSimilar(input string, candidates []string) string {
	const maxDistance = 3
	bestMatch := ""
	bestDistance := maxDistance + 1

	for _, candidate := range candidates {
		dist := levenshtein(input, candidate)
		if dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshtein calculates the Levenshtein distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	matrix := make([][]int, len(ra)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(rb)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(ra)][len(rb)]
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	if c.Concurrency != nil && *c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", *c.Concurrency)
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", *c.Retries)
	}
	if c.Timeout != nil && *c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %s", time.Duration(*c.Timeout))
	}
	if c.TreeMaxDepth != nil && *c.TreeMaxDepth < 1 {
		return fmt.Errorf("tree_max_depth must be >= 1, got %d", *c.TreeMaxDepth)
	}
	if c.MaxFileSize != nil && *c.MaxFileSize < 1 {
		return fmt.Errorf("max_file_size must be >= 1, got %d", *c.MaxFileSize)
	}
	if c.RequestsPerMinute != nil && *c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be >= 0, got %d", *c.RequestsPerMinute)
	}
	if c.RulesFilename != nil {
		if err := output.ValidateFilename(*c.RulesFilename); err != nil {
			return err
		}
	}
	if c.Researcher != nil {
		if _, err := phase.ParseResearcherMode(*c.Researcher); err != nil {
			return err
		}
	}
	for name, settings := range c.Phases {
		if err := validatePhase(name, settings); err != nil {
			return err
		}
	}
	return nil
}

func validatePhase(name string, s PhaseSettings) error {
	if name != ResearcherKey {
		if _, err := domain.ParsePhase(name); err != nil {
			msg := fmt.Sprintf("unknown phase %q", name)
			if suggestion := findSimilar(name, phaseNames()); suggestion != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
			}
			return &domain.ConfigurationError{Key: "phases", Reason: msg}
		}
	}
	key := "phases." + name
	if s.Provider != nil {
		if _, err := agent.ParseProvider(*s.Provider); err != nil {
			return err
		}
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return &domain.ConfigurationError{Key: key + ".temperature", Reason: fmt.Sprintf("must be between 0 and 2, got %g", *s.Temperature)}
	}
	if s.MaxTokens != nil && *s.MaxTokens < 0 {
		return &domain.ConfigurationError{Key: key + ".max_tokens", Reason: fmt.Sprintf("must be >= 0, got %d", *s.MaxTokens)}
	}
	if s.Reasoning != nil {
		if _, err := agent.ParseReasoningMode(*s.Reasoning); err != nil {
			return &domain.ConfigurationError{Key: key + ".reasoning", Reason: err.Error()}
		}
	}
	return nil
}

// PhaseSettingsFor returns the settings for p, accepting positional aliases
// such as "phase2" as section names.
func (c *Config) PhaseSettingsFor(name string) (PhaseSettings, bool) {
	if c == nil {
		return PhaseSettings{}, false
	}
	if s, ok := c.Phases[name]; ok {
		return s, true
	}
	if name == ResearcherKey {
		return PhaseSettings{}, false
	}
	for key, s := range c.Phases {
		if p, err := domain.ParsePhase(key); err == nil && string(p) == name {
			return s, true
		}
	}
	return PhaseSettings{}, false
}
