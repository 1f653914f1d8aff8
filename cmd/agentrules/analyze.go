package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/config"
	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/filter"
	"github.com/agentrules/agentrules/internal/logging"
	"github.com/agentrules/agentrules/internal/output"
	"github.com/agentrules/agentrules/internal/phase"
	"github.com/agentrules/agentrules/internal/pipeline"
	"github.com/agentrules/agentrules/internal/runner"
	"github.com/agentrules/agentrules/internal/snapshot"
	"github.com/agentrules/agentrules/internal/terminal"
	"github.com/agentrules/agentrules/internal/tools"
)

const (
	toolCacheSize = 128
	maxToolRounds = 4
	retryDelay    = time.Second
)

func runAnalyze(cmd *cobra.Command, args []string, flags *analyzeFlags) error {
	terminal.AutoColors()

	logger := terminal.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr)
			logger.Log("Interrupted, shutting down...", terminal.StyleWarning)
			cancel()
		case <-ctx.Done():
		}
	}()

	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		logger.Logf(terminal.StyleError, "Invalid path: %v", err)
		return exitCode(domain.ExitError)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		logger.Logf(terminal.StyleError, "Not a directory: %s", root)
		return exitCode(domain.ExitError)
	}

	if err := config.LoadDotEnv(root); err != nil {
		logger.Logf(terminal.StyleWarning, "Ignoring .env: %v", err)
	}

	userResult, err := config.LoadUser()
	if err != nil {
		logger.Logf(terminal.StyleError, "User config error: %v", err)
		return exitCode(domain.ExitError)
	}
	for _, w := range userResult.Warnings {
		logger.Logf(terminal.StyleWarning, "User config: %s", w)
	}

	cfg := &config.Config{}
	if !flags.noConfig {
		result, err := config.LoadFromDirWithWarnings(root)
		if err != nil {
			logger.Logf(terminal.StyleError, "Config error: %v", err)
			return exitCode(domain.ExitError)
		}
		cfg = result.Config
		for _, w := range result.Warnings {
			logger.Logf(terminal.StyleWarning, "Config: %s", w)
		}
	}

	resolved := config.Resolve(cfg, userResult.Config, config.LoadEnvState(), flagStateOf(cmd), flagValuesOf(flags))
	if err := resolved.Validate(); err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return exitCode(domain.ExitError)
	}

	phases, err := config.ResolvePhases(resolved, cfg, userResult.Config, os.Getenv)
	if err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return exitCode(domain.ExitError)
	}

	exclusions := cfg.Exclusions.Merge(filter.Rules{
		Directories: flags.excludeDirs,
		Patterns:    flags.excludePatterns,
	})

	if resolved.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, resolved.Timeout)
		defer timeoutCancel()
	}

	return exitCode(executeAnalyze(ctx, AnalyzeOpts{
		ResolvedConfig: resolved,
		Root:           root,
		Phases:         phases,
		Exclusions:     exclusions,
		TavilyAPIKey:   config.TavilyAPIKey(userResult.Config, os.Getenv),
	}, logger))
}

// flagStateOf records which flags were set explicitly.
func flagStateOf(cmd *cobra.Command) config.FlagState {
	f := cmd.Flags()
	return config.FlagState{
		ConcurrencySet:   f.Changed("concurrency"),
		TimeoutSet:       f.Changed("timeout"),
		RetriesSet:       f.Changed("retries"),
		RulesFilenameSet: f.Changed("rules-filename"),
		ResearcherSet:    f.Changed("researcher"),
		PhaseOutputSet:   f.Changed("phase-output"),
		VerbositySet:     f.Changed("verbose") || f.Changed("quiet"),
		ProviderSet:      f.Changed("provider"),
		ModelSet:         f.Changed("model"),
		OfflineSet:       f.Changed("offline"),
	}
}

func flagValuesOf(flags *analyzeFlags) config.ResolvedConfig {
	verbosity := config.VerbosityStandard
	switch {
	case flags.verbose:
		verbosity = config.VerbosityVerbose
	case flags.quiet:
		verbosity = config.VerbosityQuiet
	}
	return config.ResolvedConfig{
		Concurrency:   flags.concurrency,
		Timeout:       flags.timeout,
		Retries:       flags.retries,
		RulesFilename: flags.rulesFilename,
		Researcher:    flags.researcher,
		PhaseOutput:   flags.phaseOutput,
		Verbosity:     verbosity,
		Provider:      flags.provider,
		Model:         flags.model,
		Offline:       flags.offline,
	}
}

func executeAnalyze(ctx context.Context, opts AnalyzeOpts, logger *terminal.Logger) domain.ExitCode {
	zlog, err := logging.New(logging.Options{Verbosity: opts.Verbosity, Output: os.Stderr})
	if err != nil {
		logger.Logf(terminal.StyleError, "Logger setup failed: %v", err)
		return domain.ExitError
	}
	defer logging.Sync(zlog)

	researcherMode, err := phase.ParseResearcherMode(opts.Researcher)
	if err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return domain.ExitError
	}

	architects, err := buildArchitects(opts, researcherMode, zlog, logger)
	if err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return domain.ExitError
	}

	registry := agent.NewToolRegistry(toolCacheSize)
	if opts.TavilyAPIKey != "" && !opts.Offline {
		tools.NewTavilySearch(opts.TavilyAPIKey, tools.WithLogger(zlog)).Register(registry)
	}

	logger.Logf(terminal.StyleInfo, "Capturing %s%s%s",
		terminal.Color(terminal.Bold), opts.Root, terminal.Color(terminal.Reset))
	snap, err := snapshot.Capture(ctx, opts.Root, snapshot.Options{
		Rules:       opts.Exclusions,
		MaxFileSize: opts.MaxFileSize,
		TreeDepth:   opts.TreeMaxDepth,
		UseGit:      true,
		Logger:      zlog,
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.ExitInterrupted
		}
		logger.Logf(terminal.StyleError, "Snapshot failed: %v", err)
		return domain.ExitError
	}
	if snap.Len() == 0 {
		logger.Log("No files to analyze after exclusions", terminal.StyleError)
		return domain.ExitError
	}
	logger.Logf(terminal.StyleDim, "%d files captured", snap.Len())

	emitter := pipeline.NewChannelEmitter(0)
	display := terminal.NewDisplay(logger, opts.Verbose())
	displayDone := make(chan struct{})
	go func() {
		display.Run(emitter.Events())
		close(displayDone)
	}()

	p, err := pipeline.New(pipeline.Config{
		Concurrency:     opts.Concurrency,
		Retries:         opts.Retries,
		RetryDelay:      retryDelay,
		RulesFilename:   opts.RulesFilename,
		Researcher:      researcherMode,
		ResearcherTools: opts.Phases[config.ResearcherKey].Tools,
		MaxToolRounds:   maxToolRounds,
		Stream:          opts.Verbose(),
	}, architects,
		pipeline.WithLogger(zlog),
		pipeline.WithEventSink(emitter),
		pipeline.WithTools(registry),
	)
	if err != nil {
		emitter.Close()
		<-displayDone
		logger.Logf(terminal.StyleError, "%v", err)
		return domain.ExitError
	}

	artifact, runErr := p.Run(ctx, snap)
	emitter.Close()
	<-displayDone
	if n := emitter.Dropped(); n > 0 {
		zlog.Debug("progress events dropped", zap.Int64("count", n))
	}

	code := exitCodeFor(artifact, runErr)
	if runErr != nil {
		if code == domain.ExitInterrupted {
			logger.Log("Analysis interrupted", terminal.StyleWarning)
		} else {
			logger.Logf(terminal.StyleError, "Analysis failed: %v", runErr)
		}
		return code
	}

	writer := &output.Writer{
		Dir:         opts.Root,
		PhaseOutput: opts.PhaseOutput,
		Logger:      zlog,
	}
	paths, err := writer.Write(artifact)
	if err != nil {
		logger.Logf(terminal.StyleError, "Writing output failed: %v", err)
		return domain.ExitError
	}

	fmt.Fprint(os.Stderr, runner.RenderReport(artifact, artifact.Analysis, paths.Rules))
	if len(paths.Phases) > 0 {
		logger.Logf(terminal.StyleDim, "Phase outputs written to %s", filepath.Dir(paths.Phases[0]))
	}
	return code
}

// buildArchitects creates one architect per phase. The researcher is optional:
// when it cannot be built and research is not forced on, discovery runs without it.
func buildArchitects(opts AnalyzeOpts, mode phase.ResearcherMode, zlog *zap.Logger, logger *terminal.Logger) (pipeline.Architects, error) {
	agentOpts := []agent.Option{agent.WithLogger(zlog)}
	if opts.Responder != nil {
		agentOpts = append(agentOpts, agent.WithResponder(opts.Responder))
	}

	build := func(key string) (agent.Architect, error) {
		cfg, ok := opts.Phases[key]
		if !ok {
			return nil, &domain.ConfigurationError{Key: "phases." + key, Reason: "no agent configuration"}
		}
		arch, err := agent.New(cfg, agentOpts...)
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", key, err)
		}
		return arch, nil
	}

	var a pipeline.Architects
	var err error
	targets := []struct {
		phase domain.Phase
		dst   *agent.Architect
	}{
		{domain.PhaseDiscovery, &a.Discovery},
		{domain.PhasePlanning, &a.Planning},
		{domain.PhaseAnalysis, &a.Analysis},
		{domain.PhaseSynthesis, &a.Synthesis},
		{domain.PhaseConsolidation, &a.Consolidation},
		{domain.PhaseFinal, &a.Final},
	}
	for _, t := range targets {
		if *t.dst, err = build(string(t.phase)); err != nil {
			return pipeline.Architects{}, err
		}
	}

	if mode == phase.ResearcherOff {
		return a, nil
	}
	researcher, err := build(config.ResearcherKey)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if mode == phase.ResearcherOn || !errors.As(err, &cfgErr) {
			return pipeline.Architects{}, err
		}
		logger.Logf(terminal.StyleDim, "Researcher disabled: %v", err)
		return a, nil
	}
	a.Researcher = researcher
	return a, nil
}
