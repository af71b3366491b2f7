package pipeline

import (
	"errors"
	"fmt"
)

// ErrorType classifies step failures so the manager and callers can
// decide between retrying, aborting, and mapping to exit codes.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeFetch        ErrorType = "fetch"
	ErrorTypeParse        ErrorType = "parse"
	ErrorTypeReconcile    ErrorType = "reconcile"
	ErrorTypeQuota        ErrorType = "quota"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
)

// Sentinel errors for run lookup and lifecycle.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// PipelineError is the error type produced by steps and the manager.
// Retryable marks failures worth repeating under the retry config;
// quota, parse, and validation failures never are.
type PipelineError struct {
	Type      ErrorType
	Step      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Retryable bool
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("%s error in step %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for logs and API payloads.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError reports bad input or a missing upstream artifact.
func NewValidationError(step, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewAuthError reports a failed session login. Transport-level causes
// are retryable; rejected credentials are not.
func NewAuthError(step string, cause error, retryable bool) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeAuth,
		Step:      step,
		Message:   "session authentication failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewFetchError reports a transport failure while querying a window.
func NewFetchError(step string, cause error) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeFetch,
		Step:      step,
		Message:   "window fetch failed",
		Cause:     cause,
		Retryable: true,
	}
}

// NewParseError reports a response body that could not be interpreted.
// Repeating the query would fetch the same malformed body, so parse
// failures are terminal.
func NewParseError(step string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeParse,
		Step:    step,
		Message: "response format not recognized",
		Cause:   cause,
	}
}

// NewReconcileError reports a merge failure across fetched windows.
func NewReconcileError(step string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeReconcile,
		Step:    step,
		Message: "series reconciliation failed",
		Cause:   cause,
	}
}

// NewQuotaError reports quota exhaustion. The run aborts and keeps any
// partial raw output; nothing downstream retries.
func NewQuotaError(step string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeQuota,
		Step:    step,
		Message: "query quota exhausted",
		Cause:   cause,
	}
}

// NewTimeoutError reports a step that exceeded its configured timeout.
func NewTimeoutError(step string, timeout string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTimeout,
		Step:    step,
		Message: fmt.Sprintf("step timed out after %s", timeout),
	}
}

// NewCancellationError reports a run cancelled by the caller.
func NewCancellationError(step string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run cancelled",
	}
}

// WrapError wraps an arbitrary error as a non-retryable execution
// failure. PipelineError causes pass through unchanged.
func WrapError(err error, step, message string) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: message,
		Cause:   err,
	}
}

// IsRetryable reports whether err is a PipelineError marked retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetErrorType extracts the classification, or ErrorTypeExecution for
// foreign errors.
func GetErrorType(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeExecution
}
