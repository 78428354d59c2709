package errors

// ExitCodeError carries the process exit code its failure maps to.
type ExitCodeError struct {
	code ExitCode
	error
}

// NewError tags err with exitCode. A nil err stays nil.
func NewError(err error, exitCode ExitCode) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

func (e *ExitCodeError) Cause() error { return e.error }

// ExitCodeOf returns the code err is tagged with, GenericFailureExitCode
// for untagged errors and 0 for nil.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return 0
	}
	if e, ok := err.(*ExitCodeError); ok {
		return e.code
	}
	return GenericFailureExitCode
}
