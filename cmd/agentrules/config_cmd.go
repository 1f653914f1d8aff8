package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/config"
	"github.com/agentrules/agentrules/internal/terminal"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage agentrules configuration",
		Long: `View, initialize, and validate the project file (.agentrules.yaml), the user
file (config.toml) and environment variables.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigSetKeyCmd())

	return cmd
}

// projectDir returns the directory named by args, or the working directory.
func projectDir(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	return os.Getwd()
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Display resolved configuration",
		Long:  "Show the configuration resolved from defaults, the user file, the project file and environment variables.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(args)
			if err != nil {
				return err
			}
			_ = config.LoadDotEnv(dir)

			user, err := config.LoadUser()
			if err != nil {
				return fmt.Errorf("user config error: %w", err)
			}
			result, err := config.LoadFromDirWithWarnings(dir)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			resolved := config.Resolve(result.Config, user.Config, config.LoadEnvState(), config.FlagState{}, config.ResolvedConfig{})
			phases, err := config.ResolvePhases(resolved, result.Config, user.Config, os.Getenv)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Resolved configuration:")
			fmt.Fprintln(w)
			printSource(w, "project file:", result.Path, result.Found)
			printSource(w, "user file:", user.Path, user.Found)
			fmt.Fprintf(w, "  %-22s %d\n", "concurrency:", resolved.Concurrency)
			fmt.Fprintf(w, "  %-22s %s\n", "timeout:", resolved.Timeout)
			fmt.Fprintf(w, "  %-22s %d\n", "retries:", resolved.Retries)
			fmt.Fprintf(w, "  %-22s %s\n", "rules_filename:", resolved.RulesFilename)
			fmt.Fprintf(w, "  %-22s %s\n", "researcher:", resolved.Researcher)
			fmt.Fprintf(w, "  %-22s %t\n", "phase_output:", resolved.PhaseOutput)
			fmt.Fprintf(w, "  %-22s %d\n", "tree_max_depth:", resolved.TreeMaxDepth)
			fmt.Fprintf(w, "  %-22s %d\n", "max_file_size:", resolved.MaxFileSize)
			fmt.Fprintf(w, "  %-22s %d\n", "requests_per_minute:", resolved.RequestsPerMinute)
			fmt.Fprintf(w, "  %-22s %s\n", "verbosity:", resolved.Verbosity)
			fmt.Fprintf(w, "  %-22s %t\n", "offline:", resolved.Offline)

			fmt.Fprintln(w)
			fmt.Fprintln(w, "Agents:")
			fmt.Fprintln(w)
			for _, key := range config.PhaseKeys() {
				pc := phases[key]
				label := "phases." + key + ":"
				fmt.Fprintf(w, "  %-22s %s:%s %s\n", label, pc.Provider, pc.Model, credentialState(pc))
			}
			return nil
		},
	}
}

func printSource(w io.Writer, label, path string, found bool) {
	switch {
	case path == "":
		fmt.Fprintf(w, "  %-22s %s\n", label, "(none)")
	case found:
		fmt.Fprintf(w, "  %-22s %s\n", label, path)
	default:
		fmt.Fprintf(w, "  %-22s %s (not found)\n", label, path)
	}
}

func credentialState(pc agent.PhaseConfig) string {
	switch {
	case pc.Provider == agent.ProviderOffline:
		return ""
	case pc.APIKey != "":
		return "(key set)"
	default:
		return "(no key: set " + pc.Provider.APIKeyEnv() + ")"
	}
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Generate a starter .agentrules.yaml file",
		Long: `Create a commented .agentrules.yaml in the project directory. With --user,
create the user config.toml instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user {
				return initUserConfig(cmd, force)
			}
			dir, err := projectDir(args)
			if err != nil {
				return err
			}
			path, err := config.WriteTemplate(dir, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with default settings (commented out).\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user config.toml instead of the project file")
	return cmd
}

func initUserConfig(cmd *cobra.Command, force bool) error {
	path, err := config.UserConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	starter := &config.UserConfig{
		Verbosity:     config.Defaults.Verbosity,
		RulesFilename: config.Defaults.RulesFilename,
	}
	if err := config.SaveUser(path, starter); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s.\n", path)
	return nil
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <provider> [key]",
		Short: "Store an API key in the user config file",
		Long: `Store a provider API key (anthropic, openai, gemini, deepseek, xai or tavily)
in the user config.toml. Without a key argument the key is read from stdin,
hidden when stdin is a terminal. Environment variables still take precedence.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.TrimSpace(args[0]))
			if name != "tavily" {
				p, err := agent.ParseProvider(name)
				if err != nil {
					return err
				}
				if p == agent.ProviderOffline {
					return fmt.Errorf("the offline provider does not use an API key")
				}
			}

			key := ""
			if len(args) > 1 {
				key = args[1]
			} else {
				var err error
				if key, err = readKey(cmd, name); err != nil {
					return err
				}
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("empty API key")
			}

			path, err := config.UserConfigPath()
			if err != nil {
				return err
			}
			result, err := config.LoadUserFromPath(path)
			if err != nil {
				return err
			}
			cfg := result.Config
			if cfg.Providers == nil {
				cfg.Providers = make(map[string]config.ProviderCredentials)
			}
			cfg.Providers[name] = config.ProviderCredentials{APIKey: key}
			if err := config.SaveUser(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s API key in %s.\n", name, path)
			return nil
		},
	}
}

func readKey(cmd *cobra.Command, name string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s API key: ", name)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read key: %w", err)
	}
	return line, nil
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate configuration files and environment variables",
		Long:  "Load and validate the user file, the project file and environment variables, reporting any warnings or errors.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			terminal.AutoColors()
			logger := terminal.NewLogger()
			var errs []string
			var warnings []string

			dir, err := projectDir(args)
			if err != nil {
				return err
			}
			_ = config.LoadDotEnv(dir)

			// Keep going after a file error so env issues are also reported
			user := &config.UserConfig{}
			if result, err := config.LoadUser(); err != nil {
				errs = append(errs, fmt.Sprintf("user file: %v", err))
			} else {
				user = result.Config
				warnings = append(warnings, result.Warnings...)
			}

			cfg := &config.Config{}
			if result, err := config.LoadFromDirWithWarnings(dir); err != nil {
				errs = append(errs, fmt.Sprintf("project file: %v", err))
			} else {
				cfg = result.Config
				warnings = append(warnings, result.Warnings...)
			}

			resolved := config.Resolve(cfg, user, config.LoadEnvState(), config.FlagState{}, config.ResolvedConfig{})
			if err := resolved.Validate(); err != nil {
				errs = append(errs, err.Error())
			}
			if _, err := config.ResolvePhases(resolved, cfg, user, os.Getenv); err != nil {
				errs = append(errs, err.Error())
			}

			sort.Strings(warnings)
			for _, w := range warnings {
				logger.Logf(terminal.StyleWarning, "Config: %s", w)
			}
			for _, e := range errs {
				logger.Logf(terminal.StyleError, "%s", e)
			}

			if len(errs) > 0 {
				return fmt.Errorf("configuration has %d error(s)", len(errs))
			}
			if len(warnings) > 0 {
				logger.Log("Configuration is valid (with warnings).", terminal.StyleSuccess)
			} else {
				logger.Log("Configuration is valid.", terminal.StyleSuccess)
			}
			return nil
		},
	}
}
