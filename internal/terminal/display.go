package terminal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/agentrules/agentrules/internal/domain"
)

// Display renders pipeline events as styled log lines, with a spinner while a
// phase runs. It is driven by a single goroutine reading the event channel.
type Display struct {
	logger   *Logger
	out      io.Writer
	spinners bool
	verbose  bool

	stop     func()
	analysis *Spinner
}

// NewDisplay creates a display. In verbose mode agent output chunks are
// echoed and spinners are disabled so the two do not interleave.
func NewDisplay(logger *Logger, verbose bool) *Display {
	return &Display{
		logger:   logger,
		out:      os.Stderr,
		spinners: IsStderrTTY() && !verbose,
		verbose:  verbose,
	}
}

// Run handles events until the channel is closed.
func (d *Display) Run(events <-chan domain.Event) {
	for e := range events {
		d.Handle(e)
	}
	d.stopSpinner()
}

// Handle renders one event.
func (d *Display) Handle(e domain.Event) {
	switch {
	case e.Kind == domain.EventPipelineCompleted:
		d.stopSpinner()
	case e.Role != "":
		d.handleAssignment(e)
	default:
		d.handlePhase(e)
	}
}

func (d *Display) handlePhase(e domain.Event) {
	title := e.Phase.Title()
	switch e.Kind {
	case domain.EventPhaseStarted:
		d.stopSpinner()
		d.logger.Log(title, StylePhase)
		if e.Phase == domain.PhaseAnalysis {
			d.analysis = NewCountingSpinner("Running analysis agents")
			d.startSpinner(d.analysis.Run)
		} else {
			d.startSpinner(NewSpinner(title).Run)
		}

	case domain.EventPhaseProgress:
		d.chunk(e)

	case domain.EventPhaseCompleted:
		d.stopSpinner()
		detail := FormatDuration(e.Duration)
		if e.Phase == domain.PhaseAnalysis && d.analysis != nil {
			detail = fmt.Sprintf("%s agents, %s", d.analysis.Progress(), detail)
		}
		d.logger.Logf(StyleSuccess, "%s complete %s(%s)%s", title, Color(Dim), detail, Color(Reset))

	case domain.EventPhaseFailed:
		d.stopSpinner()
		d.logger.Logf(StyleError, "%s failed: %v", title, e.Err)
	}
}

func (d *Display) handleAssignment(e domain.Event) {
	if d.analysis == nil {
		d.analysis = NewCountingSpinner("Running analysis agents")
	}
	switch e.Kind {
	case domain.EventPhaseStarted:
		d.analysis.Expect(1)
		if d.verbose {
			d.logger.Logf(StyleDim, "%s started", e.Role)
		}

	case domain.EventPhaseProgress:
		d.chunk(e)

	case domain.EventPhaseCompleted:
		d.analysis.Finish()
		if d.verbose {
			d.logger.Logf(StyleSuccess, "%s %s(%s)%s", e.Role, Color(Dim), FormatDuration(e.Duration), Color(Reset))
		}

	case domain.EventPhaseFailed:
		d.analysis.Finish()
		if e.Status == domain.StatusCancelled {
			d.logger.Logf(StyleWarning, "%s cancelled", e.Role)
		} else {
			d.logger.Logf(StyleWarning, "%s failed: %v", e.Role, e.Err)
		}
	}
}

// chunk echoes streamed agent output in verbose mode.
func (d *Display) chunk(e domain.Event) {
	if !d.verbose || e.Chunk == "" {
		return
	}
	fmt.Fprint(d.out, Color(Dim)+e.Chunk+Color(Reset))
}

func (d *Display) startSpinner(run func(context.Context)) {
	if !d.spinners {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()
	d.stop = func() {
		cancel()
		<-done
	}
}

func (d *Display) stopSpinner() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
}
