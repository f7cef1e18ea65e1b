package tools

import "errors"

// Tool bus error taxonomy. PermissionDenied and SandboxViolation are policy
// decisions, never retried; ExecutionFailed and Timeout are retryable within
// the debug loop's ceiling; NotFound is a programmer error and fails fast.
var (
	ErrNotFound         = errors.New("tool not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSandboxViolation = errors.New("sandbox violation")
	ErrExecutionFailed  = errors.New("execution failed")
	ErrTimeout          = errors.New("tool timed out")

	ErrToolNameEmpty      = errors.New("tool name cannot be empty")
	ErrToolExecuteNil     = errors.New("tool execute function cannot be nil")
	ErrAlreadyRegistered  = errors.New("tool already registered")
	ErrMissingArg         = errors.New("missing required argument")
)

// Retryable reports whether err represents a transient tool failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrExecutionFailed) || errors.Is(err, ErrTimeout)
}

// Fatal reports whether err is a policy decision that must not be retried.
func Fatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrSandboxViolation)
}
