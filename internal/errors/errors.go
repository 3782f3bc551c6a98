// Package errors provides centralized error types and exit codes for the
// dontforgetest CLI.
package errors

import "fmt"

// Exit codes for different error categories.
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitConfigError     = 2
	ExitValidationError = 3
	ExitGitError        = 4
)

// CLIError is the base error type for tool-specific errors.
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message, including the cause if present.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error.
func NewConfigError(msg string, cause error) *CLIError {
	return &CLIError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewValidationError creates a validation error.
func NewValidationError(msg string) *CLIError {
	return &CLIError{Code: ExitValidationError, Message: msg}
}

// NewGitError creates a git error.
func NewGitError(msg string, cause error) *CLIError {
	return &CLIError{Code: ExitGitError, Message: msg, Cause: cause}
}

// NewGeneralError creates a general error.
func NewGeneralError(msg string, cause error) *CLIError {
	return &CLIError{Code: ExitGeneralError, Message: msg, Cause: cause}
}

// GetExitCode returns the exit code for an error. A nil error maps to
// ExitSuccess, a non-CLIError to ExitGeneralError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if cliErr, ok := err.(*CLIError); ok {
		return cliErr.Code
	}
	return ExitGeneralError
}
