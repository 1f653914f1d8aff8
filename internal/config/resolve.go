package config

import (
	"fmt"
	"time"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/output"
	"github.com/agentrules/agentrules/internal/phase"
	"github.com/agentrules/agentrules/internal/snapshot"
	"github.com/agentrules/agentrules/internal/tools"
)

// Defaults holds the built-in default values.
var Defaults = ResolvedConfig{
	Concurrency:   4,
	Timeout:       10 * time.Minute,
	Retries:       2,
	RulesFilename: phase.DefaultRulesFilename,
	Researcher:    string(phase.ResearcherAuto),
	TreeMaxDepth:  snapshot.DefaultTreeDepth,
	MaxFileSize:   snapshot.DefaultMaxFileSize,
	Verbosity:     VerbosityQuiet,
}

// ResolvedConfig holds the final resolved run-wide values.
type ResolvedConfig struct {
	Concurrency       int
	Timeout           time.Duration
	Retries           int
	RulesFilename     string
	Researcher        string
	PhaseOutput       bool
	TreeMaxDepth      int
	MaxFileSize       int64
	RequestsPerMinute int
	Verbosity         string
	Provider          string // Applies to every phase when set
	Model             string // Applies to every phase when set
	Offline           bool
}

// FlagState tracks whether a flag was explicitly set.
type FlagState struct {
	ConcurrencySet   bool
	TimeoutSet       bool
	RetriesSet       bool
	RulesFilenameSet bool
	ResearcherSet    bool
	PhaseOutputSet   bool
	VerbositySet     bool
	ProviderSet      bool
	ModelSet         bool
	OfflineSet       bool
}

// Resolve merges config file values with env vars and flags.
// Precedence: flags > env vars > project file > user file > defaults
func Resolve(cfg *Config, user *UserConfig, envState EnvState, flagState FlagState, flagValues ResolvedConfig) ResolvedConfig {
	result := Defaults

	if user != nil {
		if v := normalizeVerbosity(user.Verbosity); v != "" {
			result.Verbosity = v
		}
		if user.RulesFilename != "" {
			result.RulesFilename = user.RulesFilename
		}
	}

	if cfg != nil {
		if cfg.Concurrency != nil {
			result.Concurrency = *cfg.Concurrency
		}
		if cfg.Timeout != nil {
			result.Timeout = cfg.Timeout.AsDuration()
		}
		if cfg.Retries != nil {
			result.Retries = *cfg.Retries
		}
		if cfg.RulesFilename != nil {
			result.RulesFilename = *cfg.RulesFilename
		}
		if cfg.Researcher != nil {
			result.Researcher = *cfg.Researcher
		}
		if cfg.PhaseOutput != nil {
			result.PhaseOutput = *cfg.PhaseOutput
		}
		if cfg.TreeMaxDepth != nil {
			result.TreeMaxDepth = *cfg.TreeMaxDepth
		}
		if cfg.MaxFileSize != nil {
			result.MaxFileSize = *cfg.MaxFileSize
		}
		if cfg.RequestsPerMinute != nil {
			result.RequestsPerMinute = *cfg.RequestsPerMinute
		}
	}

	if envState.ConcurrencySet {
		result.Concurrency = envState.Concurrency
	}
	if envState.TimeoutSet {
		result.Timeout = envState.Timeout
	}
	if envState.RetriesSet {
		result.Retries = envState.Retries
	}
	if envState.RulesFilenameSet {
		result.RulesFilename = envState.RulesFilename
	}
	if envState.ResearcherSet {
		result.Researcher = envState.Researcher
	}
	if envState.VerbositySet {
		result.Verbosity = envState.Verbosity
	}
	if envState.ProviderSet {
		result.Provider = envState.Provider
	}
	if envState.ModelSet {
		result.Model = envState.Model
	}
	if envState.OfflineSet {
		result.Offline = envState.Offline
	}

	if flagState.ConcurrencySet {
		result.Concurrency = flagValues.Concurrency
	}
	if flagState.TimeoutSet {
		result.Timeout = flagValues.Timeout
	}
	if flagState.RetriesSet {
		result.Retries = flagValues.Retries
	}
	if flagState.RulesFilenameSet {
		result.RulesFilename = flagValues.RulesFilename
	}
	if flagState.ResearcherSet {
		result.Researcher = flagValues.Researcher
	}
	if flagState.PhaseOutputSet {
		result.PhaseOutput = flagValues.PhaseOutput
	}
	if flagState.VerbositySet {
		result.Verbosity = flagValues.Verbosity
	}
	if flagState.ProviderSet {
		result.Provider = flagValues.Provider
	}
	if flagState.ModelSet {
		result.Model = flagValues.Model
	}
	if flagState.OfflineSet {
		result.Offline = flagValues.Offline
	}

	return result
}

// PhaseKeys lists the agent configurations ResolvePhases produces: one per
// pipeline phase plus the researcher.
func PhaseKeys() []string {
	return phaseNames()
}

// ResolvePhases builds the agent configuration for every phase and for the
// researcher. Model selection, lowest to highest: provider default, user
// models.<phase>, project phases.<phase>, then the run-wide provider and
// model. Offline mode replaces every provider. Credentials come from getenv
// and then the user file; a missing key is reported by agent.New.
func ResolvePhases(resolved ResolvedConfig, cfg *Config, user *UserConfig, getenv func(string) string) (map[string]agent.PhaseConfig, error) {
	out := make(map[string]agent.PhaseConfig, len(domain.Phases)+1)
	for _, name := range PhaseKeys() {
		pc, err := resolvePhase(name, resolved, cfg, user, getenv)
		if err != nil {
			return nil, err
		}
		out[name] = pc
	}
	return out, nil
}

func resolvePhase(name string, resolved ResolvedConfig, cfg *Config, user *UserConfig, getenv func(string) string) (agent.PhaseConfig, error) {
	provider, model := agent.DefaultProvider, ""
	use := func(p agent.Provider) {
		if p != provider {
			model = ""
		}
		provider = p
	}

	if user != nil {
		if ref, ok := user.Models[name]; ok {
			p, m, err := ParseModelRef(ref)
			if err != nil {
				return agent.PhaseConfig{}, err
			}
			provider, model = p, m
		}
	}

	pc := agent.PhaseConfig{
		Timeout:           resolved.Timeout,
		RequestsPerMinute: resolved.RequestsPerMinute,
	}
	if name == ResearcherKey {
		pc.Tools = []string{tools.TavilySearchName}
	}

	if s, ok := cfg.PhaseSettingsFor(name); ok {
		if s.Provider != nil {
			p, err := agent.ParseProvider(*s.Provider)
			if err != nil {
				return agent.PhaseConfig{}, err
			}
			use(p)
		}
		if s.Model != nil {
			model = *s.Model
		}
		pc.Temperature = s.Temperature
		if s.MaxTokens != nil {
			pc.MaxTokens = *s.MaxTokens
		}
		if s.Reasoning != nil {
			pc.Reasoning = agent.ReasoningMode(*s.Reasoning)
		}
		if s.Tools != nil {
			pc.Tools = s.Tools
		}
		if s.BaseURL != nil {
			pc.BaseURL = *s.BaseURL
		}
	}

	if resolved.Provider != "" {
		p, err := agent.ParseProvider(resolved.Provider)
		if err != nil {
			return agent.PhaseConfig{}, err
		}
		use(p)
	}
	if resolved.Model != "" {
		model = resolved.Model
	}
	if resolved.Offline {
		provider, model = agent.ProviderOffline, ""
		pc.BaseURL = ""
	}

	if model == "" {
		model = provider.DefaultModel()
	}
	pc.Provider = provider
	pc.Model = model
	if provider != agent.ProviderOffline {
		pc.APIKey = APIKey(provider, user, getenv)
	}
	return pc, nil
}

// Validate checks values that may have come from flags or the environment.
func (r ResolvedConfig) Validate() error {
	if r.Concurrency < 0 {
		return &domain.ConfigurationError{Key: "concurrency", Reason: fmt.Sprintf("must be >= 0, got %d", r.Concurrency)}
	}
	if r.Retries < 0 {
		return &domain.ConfigurationError{Key: "retries", Reason: fmt.Sprintf("must be >= 0, got %d", r.Retries)}
	}
	if r.Timeout <= 0 {
		return &domain.ConfigurationError{Key: "timeout", Reason: fmt.Sprintf("must be > 0, got %s", r.Timeout)}
	}
	if err := output.ValidateFilename(r.RulesFilename); err != nil {
		return err
	}
	if _, err := phase.ParseResearcherMode(r.Researcher); err != nil {
		return err
	}
	if normalizeVerbosity(r.Verbosity) == "" {
		return &domain.ConfigurationError{Key: "verbosity", Reason: fmt.Sprintf("must be one of %v, got %q", Verbosities, r.Verbosity)}
	}
	if r.Provider != "" {
		if _, err := agent.ParseProvider(r.Provider); err != nil {
			return err
		}
	}
	return nil
}
