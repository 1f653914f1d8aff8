package agent

import (
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// Provider identifies an Architect variant.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderXAI       Provider = "xai"
	ProviderOffline   Provider = "offline"
)

// SupportedProviders lists all valid provider names.
var SupportedProviders = []string{"anthropic", "openai", "gemini", "deepseek", "xai", "offline"}

// DefaultProvider is used when a phase names no provider.
const DefaultProvider = ProviderAnthropic

// ParseProvider resolves a provider name.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(name); p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderDeepSeek, ProviderXAI, ProviderOffline:
		return p, nil
	default:
		return "", &domain.UnsupportedProviderError{Provider: name, Supported: SupportedProviders}
	}
}

// APIKeyEnv returns the environment variable holding the provider's key.
func (p Provider) APIKeyEnv() string {
	switch p {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderXAI:
		return "XAI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the model the configuration layer selects when a phase
// names none.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	case ProviderOpenAI:
		return "gpt-4.1"
	case ProviderGemini:
		return "gemini-2.5-pro"
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderXAI:
		return "grok-4"
	case ProviderOffline:
		return "offline"
	default:
		return ""
	}
}

// DefaultBaseURL returns the endpoint for OpenAI-compatible providers.
func (p Provider) DefaultBaseURL() string {
	switch p {
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	case ProviderXAI:
		return "https://api.x.ai/v1"
	default:
		return ""
	}
}

// DefaultMaxTokens returns the response budget used when a phase sets none.
func (p Provider) DefaultMaxTokens() int {
	switch p {
	case ProviderAnthropic:
		return anthropicDefaultMaxTokens
	case ProviderOffline:
		return 0
	default:
		return 8192
	}
}

type options struct {
	logger    *zap.Logger
	responder Responder
}

// Option customizes Architect construction.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResponder replaces the offline architect's canned responses.
// It has no effect on network providers.
func WithResponder(r Responder) Option {
	return func(o *options) {
		o.responder = r
	}
}

// New creates an Architect for the phase configuration.
// Returns *domain.UnsupportedProviderError for unknown providers and
// *domain.ConfigurationError when the model or credentials are missing.
// No network connection is made until the first call.
func New(cfg PhaseConfig, opts ...Option) (Architect, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	cfg.Provider = provider
	cfg = cfg.withDefaults()

	if cfg.Model == "" {
		return nil, &domain.ConfigurationError{Key: "model", Reason: "no model configured for provider " + string(provider)}
	}
	if provider != ProviderOffline && cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Key: provider.APIKeyEnv(), Reason: "API key is not set"}
	}
	if _, err := ParseReasoningMode(string(cfg.Reasoning)); err != nil {
		return nil, &domain.ConfigurationError{Key: "reasoning", Reason: err.Error()}
	}

	b := newBase(cfg, o.logger)

	switch provider {
	case ProviderAnthropic:
		return newAnthropicArchitect(b), nil
	case ProviderOpenAI, ProviderDeepSeek, ProviderXAI:
		return newOpenAIArchitect(b), nil
	case ProviderGemini:
		return newGeminiArchitect(b), nil
	default:
		return newOfflineArchitect(b, o.responder), nil
	}
}
