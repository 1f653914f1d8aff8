package main

import (
	"context"
	"errors"

	"github.com/agentrules/agentrules/internal/domain"
)

// exitCodeError is a wrapper type for returning exit codes via error interface.
type exitCodeError struct {
	code domain.ExitCode
}

func (e exitCodeError) Error() string {
	return e.code.String()
}

func exitCode(code domain.ExitCode) error {
	if code == domain.ExitSuccess {
		return nil
	}
	return exitCodeError{code: code}
}

// exitCodeFor maps a run outcome to the process exit code.
func exitCodeFor(artifact *domain.Artifact, err error) domain.ExitCode {
	switch {
	case err != nil && (errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled)):
		return domain.ExitInterrupted
	case err != nil:
		return domain.ExitError
	case artifact != nil && artifact.Partial():
		return domain.ExitPartial
	default:
		return domain.ExitSuccess
	}
}
