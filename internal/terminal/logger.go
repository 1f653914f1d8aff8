package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Style selects the color and symbol of a log line.
type Style string

const (
	StyleInfo    Style = "info"
	StyleSuccess Style = "success"
	StyleWarning Style = "warning"
	StyleError   Style = "error"
	StyleDim     Style = "dim"
	StylePhase   Style = "phase"
)

type styleDef struct {
	color  string
	symbol string
}

var styles = map[Style]styleDef{
	StyleInfo:    {Cyan, "I"},
	StyleSuccess: {Green, "✓"},
	StyleWarning: {Yellow, "W"},
	StyleError:   {Red, "!"},
	StyleDim:     {Dim, "·"},
	StylePhase:   {Magenta + Bold, "▸"},
}

// Logger writes human-facing status lines to stderr. Lines from concurrent
// goroutines never interleave.
type Logger struct {
	isTTY bool
	out   io.Writer
	mu    sync.Mutex
}

// NewLogger returns a logger for stderr.
func NewLogger() *Logger {
	return &Logger{isTTY: IsStderrTTY(), out: os.Stderr}
}

// tag renders the "[agentrules]" prefix.
func tag(color string) string {
	return Color(Dim) + "[" + Color(Reset) + Color(color) + "agentrules" + Color(Reset) + Color(Dim) + "]" + Color(Reset)
}

// Log writes msg with the given style. On a terminal it first erases any
// spinner frame on the current line.
func (l *Logger) Log(msg string, style Style) {
	def, ok := styles[style]
	if !ok {
		def = styles[StyleInfo]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.out
	if out == nil {
		out = os.Stderr
	}
	if l.isTTY {
		fmt.Fprint(out, "\r\033[K")
	}
	fmt.Fprintf(out, "%s %s%s%s %s\n", tag(def.color), Color(def.color), def.symbol, Color(Reset), msg)
}

// Logf formats and writes a styled line.
func (l *Logger) Logf(style Style, format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...), style)
}
