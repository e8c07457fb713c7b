package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a run is requested while another runs
var ErrRunInProgress = errors.New("pipeline run already in progress")

// ErrorType represents the type of pipeline error
type ErrorType string

const (
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeDependency   ErrorType = "dependency"
)

// StageError wraps the failure of one stage
type StageError struct {
	Type    ErrorType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *StageError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewExecutionError wraps a stage's own error
func NewExecutionError(stage string, cause error) *StageError {
	return &StageError{Type: ErrorTypeExecution, Stage: stage, Message: "stage execution failed", Cause: cause}
}

// NewTimeoutError reports a stage that exceeded its timeout
func NewTimeoutError(stage, timeout string, cause error) *StageError {
	return &StageError{Type: ErrorTypeTimeout, Stage: stage, Message: "timed out after " + timeout, Cause: cause}
}

// NewCancellationError reports a run cancelled before stage started
func NewCancellationError(stage string, cause error) *StageError {
	return &StageError{Type: ErrorTypeCancellation, Stage: stage, Message: "run cancelled", Cause: cause}
}

// NewDependencyError reports a stage whose dependency did not complete
func NewDependencyError(stage, dependency string) *StageError {
	return &StageError{Type: ErrorTypeDependency, Stage: stage, Message: "dependency " + dependency + " did not complete"}
}
