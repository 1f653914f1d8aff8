package domain

import "fmt"

// ExitCode is the process status of an agentrules run.
type ExitCode int

const (
	ExitSuccess     ExitCode = 0   // every phase and analysis role succeeded
	ExitPartial     ExitCode = 1   // rules were written but some roles failed
	ExitError       ExitCode = 2   // no rules were written
	ExitInterrupted ExitCode = 130 // cancelled by SIGINT or SIGTERM
)

// Int converts the code for os.Exit.
func (e ExitCode) Int() int {
	return int(e)
}

func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "analysis complete"
	case ExitPartial:
		return "some analysis agents failed"
	case ExitError:
		return "analysis failed with error"
	case ExitInterrupted:
		return "analysis was interrupted"
	default:
		return fmt.Sprintf("exit code %d", int(e))
	}
}
