// Package main provides the CLI entry point for agentrules.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentrules/agentrules/internal/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// analyzeFlags holds the root command's flag values.
type analyzeFlags struct {
	concurrency     int
	timeout         time.Duration
	retries         int
	rulesFilename   string
	researcher      string
	phaseOutput     bool
	offline         bool
	provider        string
	model           string
	verbose         bool
	quiet           bool
	noConfig        bool
	excludeDirs     []string
	excludePatterns []string
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		// Exit code wrappers are not real errors
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code.Int()
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return domain.ExitError.Int()
	}
	return domain.ExitSuccess.Int()
}

func newRootCmd() *cobra.Command {
	flags := &analyzeFlags{}

	rootCmd := &cobra.Command{
		Use:   "agentrules [path]",
		Short: "Analyze a project with a multi-phase agent pipeline and write AGENTS.md",
		Long: `Analyze a source tree with a sequence of LLM agents (discovery, planning,
parallel deep analysis, synthesis, consolidation and a final pass) and write a
rules document for coding agents.

Exit codes:
  0 - Rules written, every analysis agent succeeded
  1 - Rules written, some analysis agents failed
  2 - Error
  130 - Interrupted`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildVersionString(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, flags)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Defaults are resolved via config.Resolve (flag > env > project file > user file > default)
	f := rootCmd.Flags()
	f.IntVarP(&flags.concurrency, "concurrency", "c", 0,
		"Max concurrent analysis agents, 0 for one per assignment (default: 4, env: AGENTRULES_CONCURRENCY)")
	f.DurationVarP(&flags.timeout, "timeout", "t", 0,
		"Timeout for the whole run (default: 10m, env: AGENTRULES_TIMEOUT)")
	f.IntVarP(&flags.retries, "retries", "R", 0,
		"Retry transient provider failures N times (default: 2, env: AGENTRULES_RETRIES)")
	f.StringVar(&flags.rulesFilename, "rules-filename", "",
		"Name of the generated rules file (default: AGENTS.md, env: AGENTRULES_RULES_FILENAME)")
	f.StringVar(&flags.researcher, "researcher", "",
		"Web research during discovery: auto, on, off (default: auto, env: AGENTRULES_RESEARCHER)")
	f.BoolVar(&flags.phaseOutput, "phase-output", false,
		"Also write per-phase markdown and run.json under phases_output/")
	f.BoolVar(&flags.offline, "offline", false,
		"Use the deterministic offline agent for every phase (env: OFFLINE=1)")
	f.StringVarP(&flags.provider, "provider", "p", "",
		"Provider for every phase: anthropic, openai, gemini, deepseek, xai, offline (env: AGENTRULES_PROVIDER)")
	f.StringVarP(&flags.model, "model", "m", "",
		"Model for every phase (env: AGENTRULES_MODEL)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Debug logging and streamed agent output")
	f.BoolVarP(&flags.quiet, "quiet", "q", false,
		"Only warnings and errors")
	f.BoolVar(&flags.noConfig, "no-config", false,
		"Skip loading the project .agentrules.yaml")
	f.StringArrayVar(&flags.excludeDirs, "exclude-dir", nil,
		"Exclude a directory name from the snapshot (repeatable)")
	f.StringArrayVar(&flags.excludePatterns, "exclude-pattern", nil,
		"Exclude paths matching a regex (repeatable)")

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	setGroupedUsage(rootCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newScaffoldCmd())
	return rootCmd
}
