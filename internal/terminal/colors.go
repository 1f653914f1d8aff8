// Package terminal renders run progress for a human: styled log lines,
// spinners and the final report, all on stderr.
package terminal

import (
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

// ANSI escape sequences.
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

const defaultWidth = 80

var colorsOff atomic.Bool

// DisableColors turns off escape sequences process-wide.
func DisableColors() {
	colorsOff.Store(true)
}

// ColorsEnabled reports whether Color returns escape sequences.
func ColorsEnabled() bool {
	return !colorsOff.Load()
}

// AutoColors disables colors when stderr is not a terminal, NO_COLOR is set,
// or TERM is "dumb".
func AutoColors() {
	if !IsStderrTTY() || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		DisableColors()
	}
}

// WithColorsDisabled runs fn with colors off and restores the previous state.
// Tests use it to compare plain text.
func WithColorsDisabled(fn func()) {
	prev := colorsOff.Swap(true)
	defer colorsOff.Store(prev)
	fn()
}

// Color returns c, or "" when colors are disabled.
func Color(c string) string {
	if colorsOff.Load() {
		return ""
	}
	return c
}

// IsStderrTTY reports whether stderr is a terminal.
func IsStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Width returns the stderr terminal width, or 80 when it cannot be detected.
func Width() int {
	w, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}
