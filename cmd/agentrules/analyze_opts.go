package main

import (
	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/config"
	"github.com/agentrules/agentrules/internal/filter"
)

// AnalyzeOpts holds the resolved configuration and the inputs that do not
// participate in config resolution, so executeAnalyze can run without reading
// flags or the environment.
type AnalyzeOpts struct {
	config.ResolvedConfig

	Root         string                        // Project directory being analyzed
	Phases       map[string]agent.PhaseConfig  // From config.ResolvePhases
	Exclusions   filter.Rules                  // Project file plus --exclude-* flags
	TavilyAPIKey string                        // Empty disables web research tools
	Responder    agent.Responder               // Test hook for the offline provider
}

// Verbose reports whether streamed agent output is shown.
func (o AnalyzeOpts) Verbose() bool {
	return o.Verbosity == config.VerbosityVerbose
}
