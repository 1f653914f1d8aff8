package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Template is the commented starter file written by `agentrules config init`.
const Template = `# agentrules project configuration
# Precedence: flags > environment > this file > user config.toml > defaults

# Maximum concurrent Phase 3 agents (0 = one per assignment)
concurrency: 4

# Whole-run timeout, Go duration or seconds
timeout: 10m

# Extra attempts for transient provider failures
retries: 2

# Name of the generated rules file
rules_filename: AGENTS.md

# Web research during discovery: auto, on or off
researcher: auto

# Also write per-phase markdown under phases_output/
phase_output: false

# Per-phase agent overrides. Section names: discovery, planning, analysis,
# synthesis, consolidation, final, researcher (or phase1..phase6).
# phases:
#   planning:
#     provider: openai
#     model: gpt-4.1
#     temperature: 0.2
#   analysis:
#     provider: anthropic
#     reasoning: enabled

# Additional exclusions on top of the built-in rules
# exclusions:
#   directories: [fixtures]
#   extensions: [.csv]
#   patterns: ["^docs/generated/"]
`

// WriteTemplate writes Template to dir/.agentrules.yaml. An existing file is
// only replaced when force is set.
func WriteTemplate(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return path, err
		}
	}
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		return path, fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
