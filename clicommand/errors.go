package clicommand

import (
	"errors"
	"fmt"
	"io"

	"github.com/buildkite/datapipeline-deploy/deploy"
)

const (
	// ExitCodeFailure is returned for every failed deploy.
	ExitCodeFailure = 1

	// ExitCodeUsage is returned for bad flags and missing configuration.
	ExitCodeUsage = 2
)

// ExitError is used to signal that the command should exit with the exit code
// in `code`. It also wraps an error, which can be used to provide more context.
type ExitError struct {
	code  int
	inner error
}

// NewExitError returns ExitError with the given code and wrapped error.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

// Code returns the exit code.
func (e *ExitError) Code() int {
	return e.code
}

// Error prints the message of the wrapped error. It ignores the exit code.
func (e *ExitError) Error() string {
	return e.inner.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.inner
}

// Is will return true if the target is an ExitError with the same code.
func (e *ExitError) Is(target error) bool {
	terr, ok := target.(*ExitError)
	return ok && e.code == terr.code
}

// commandError attaches an exit code to err. Configuration problems are
// usage errors; anything else is a failure.
func commandError(err error) error {
	if err == nil {
		return nil
	}
	if eerr := new(ExitError); errors.As(err, &eerr) {
		return err
	}
	if cerr := new(deploy.ConfigurationError); errors.As(err, &cerr) {
		return NewExitError(ExitCodeUsage, err)
	}
	return NewExitError(ExitCodeFailure, err)
}

// PrintMessageAndReturnExitCode prints the error message to w, preceded by
// "datapipeline-deploy: fatal: " and returns the exit code for the given
// error. An ExitError carries its own code; any other error exits with
// status 1, and nil with 0.
func PrintMessageAndReturnExitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(w, "%s: fatal: %s\n", appName, err)

	if eerr := new(ExitError); errors.As(err, &eerr) {
		return eerr.Code()
	}

	return ExitCodeFailure
}
