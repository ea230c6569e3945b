package cmd

import "errors"

// exitError carries the process exit code a failure should produce. main
// resolves it via ExitCode; an error that isn't an *exitError exits 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the exit code err should produce: 0 for a nil error, the
// code carried by an *exitError, or 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func usageError(err error) error    { return &exitError{code: 2, err: err} }
func loadError(err error) error     { return &exitError{code: 3, err: err} }
func dispatchError(err error) error { return &exitError{code: 4, err: err} }
func ioError(err error) error       { return &exitError{code: 5, err: err} }
