package agent

import (
	"fmt"
	"time"
)

// ReasoningMode controls extended thinking on providers that support it.
type ReasoningMode string

const (
	ReasoningDisabled ReasoningMode = "disabled"
	ReasoningEnabled  ReasoningMode = "enabled"
	ReasoningDynamic  ReasoningMode = "dynamic" // Provider chooses the budget
)

// ParseReasoningMode parses a reasoning mode; empty means disabled.
func ParseReasoningMode(s string) (ReasoningMode, error) {
	switch ReasoningMode(s) {
	case "", ReasoningDisabled:
		return ReasoningDisabled, nil
	case ReasoningEnabled, ReasoningDynamic:
		return ReasoningMode(s), nil
	default:
		return "", fmt.Errorf("invalid reasoning mode %q, expected disabled, enabled or dynamic", s)
	}
}

// PhaseConfig is the resolved, immutable configuration for one phase's agent.
type PhaseConfig struct {
	// Provider selects the Architect variant.
	Provider Provider

	// Model is the provider's model identifier. Required except for offline.
	Model string

	// APIKey is the resolved credential. Required for every provider except offline.
	APIKey string

	// BaseURL overrides the provider endpoint (OpenAI-compatible providers and Anthropic).
	BaseURL string

	// Temperature is optional; nil leaves the provider default.
	Temperature *float64

	// MaxTokens bounds the response length. Zero selects the provider default.
	MaxTokens int

	// Reasoning enables extended thinking where supported.
	Reasoning ReasoningMode

	// Tools lists tool names from the registry this agent may call.
	Tools []string

	// Timeout bounds a single provider call. Zero means no per-call timeout.
	Timeout time.Duration

	// RequestsPerMinute rate-limits this architect's calls. Zero disables limiting.
	RequestsPerMinute int
}

// withDefaults fills provider defaults for unset fields.
func (c PhaseConfig) withDefaults() PhaseConfig {
	if c.Model == "" && c.Provider == ProviderOffline {
		c.Model = ProviderOffline.DefaultModel()
	}
	if c.BaseURL == "" {
		c.BaseURL = c.Provider.DefaultBaseURL()
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = c.Provider.DefaultMaxTokens()
	}
	if c.Reasoning == "" {
		c.Reasoning = ReasoningDisabled
	}
	return c
}
