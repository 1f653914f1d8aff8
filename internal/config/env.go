package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentrules/agentrules/internal/agent"
)

// Environment variable names.
const (
	EnvConcurrency   = "AGENTRULES_CONCURRENCY"
	EnvTimeout       = "AGENTRULES_TIMEOUT"
	EnvRetries       = "AGENTRULES_RETRIES"
	EnvRulesFilename = "AGENTRULES_RULES_FILENAME"
	EnvLogLevel      = "AGENTRULES_LOG_LEVEL"
	EnvResearcher    = "AGENTRULES_RESEARCHER"
	EnvProvider      = "AGENTRULES_PROVIDER"
	EnvModel         = "AGENTRULES_MODEL"
	EnvOffline       = "OFFLINE"
	EnvTavilyAPIKey  = "TAVILY_API_KEY"
	envGeminiAPIKey  = "GEMINI_API_KEY"
)

// LoadDotEnv loads dir/.env into the process environment. Variables that are
// already set are left alone. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvState captures env var values and whether they were set.
type EnvState struct {
	Concurrency      int
	ConcurrencySet   bool
	Timeout          time.Duration
	TimeoutSet       bool
	Retries          int
	RetriesSet       bool
	RulesFilename    string
	RulesFilenameSet bool
	Researcher       string
	ResearcherSet    bool
	Verbosity        string
	VerbositySet     bool
	Provider         string
	ProviderSet      bool
	Model            string
	ModelSet         bool
	Offline          bool
	OfflineSet       bool
}

// LoadEnvState reads environment variables and returns their state.
// Malformed numeric values are ignored.
func LoadEnvState() EnvState {
	return envStateFrom(os.Getenv)
}

func envStateFrom(getenv func(string) string) EnvState {
	var state EnvState

	if v := getenv(EnvConcurrency); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			state.Concurrency = i
			state.ConcurrencySet = true
		}
	}
	if v := getenv(EnvTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			state.Timeout = d
			state.TimeoutSet = true
		} else if secs, err := strconv.Atoi(v); err == nil {
			state.Timeout = time.Duration(secs) * time.Second
			state.TimeoutSet = true
		}
	}
	if v := getenv(EnvRetries); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			state.Retries = i
			state.RetriesSet = true
		}
	}
	if v := getenv(EnvRulesFilename); v != "" {
		state.RulesFilename = v
		state.RulesFilenameSet = true
	}
	if v := getenv(EnvResearcher); v != "" {
		state.Researcher = v
		state.ResearcherSet = true
	}
	if v := normalizeVerbosity(getenv(EnvLogLevel)); v != "" {
		state.Verbosity = v
		state.VerbositySet = true
	}
	if v := getenv(EnvProvider); v != "" {
		state.Provider = v
		state.ProviderSet = true
	}
	if v := getenv(EnvModel); v != "" {
		state.Model = v
		state.ModelSet = true
	}
	if v := getenv(EnvOffline); v != "" {
		state.Offline = isTruthy(v)
		state.OfflineSet = true
	}

	return state
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// APIKey resolves a provider credential: the provider's environment
// variable first, then the user settings file. Gemini also accepts
// GEMINI_API_KEY.
func APIKey(provider agent.Provider, user *UserConfig, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if env := provider.APIKeyEnv(); env != "" {
		if v := getenv(env); v != "" {
			return v
		}
	}
	if provider == agent.ProviderGemini {
		if v := getenv(envGeminiAPIKey); v != "" {
			return v
		}
	}
	return user.APIKey(string(provider))
}

// TavilyAPIKey resolves the web search credential the same way.
func TavilyAPIKey(user *UserConfig, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvTavilyAPIKey); v != "" {
		return v
	}
	return user.APIKey("tavily")
}
