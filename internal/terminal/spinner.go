package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

const spinnerInterval = 200 * time.Millisecond

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Spinner animates a label on stderr while a phase runs. A counting spinner
// also shows finished/expected agents, and the expected count may grow while
// it runs.
type Spinner struct {
	isTTY    bool
	out      io.Writer
	label    string
	counting bool
	finished atomic.Int32
	expected atomic.Int32
}

// NewSpinner creates a spinner for a single-agent phase.
func NewSpinner(label string) *Spinner {
	return &Spinner{isTTY: IsStderrTTY(), out: os.Stderr, label: label}
}

// NewCountingSpinner creates a spinner that tracks concurrent agents.
func NewCountingSpinner(label string) *Spinner {
	s := NewSpinner(label)
	s.counting = true
	return s
}

// Expect raises the number of agents the spinner waits for.
func (s *Spinner) Expect(n int) {
	s.expected.Add(int32(n))
}

// Finish records one agent as done, successfully or not.
func (s *Spinner) Finish() {
	s.finished.Add(1)
}

// Progress renders "finished/expected".
func (s *Spinner) Progress() string {
	return fmt.Sprintf("%d/%d", s.finished.Load(), s.expected.Load())
}

func (s *Spinner) line(tick int) string {
	frame := string(spinnerFrames[tick%len(spinnerFrames)])
	line := fmt.Sprintf("\r%s %s%s%s %s", tag(Cyan), Color(Cyan), frame, Color(Reset), s.label)
	if s.counting {
		line += fmt.Sprintf(" %s(%s)%s", Color(Dim), s.Progress(), Color(Reset))
	}
	return line + "\033[K"
}

// Run animates until ctx is cancelled, then clears the line. Off a terminal it
// only waits.
func (s *Spinner) Run(ctx context.Context) {
	if !s.isTTY {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprint(s.out, s.line(tick))
		}
	}
}
