package tools

import (
	"errors"
	"fmt"
)

// Registry errors
var (
	ErrNilTool           = errors.New("tool cannot be nil")
	ErrEmptyToolName     = errors.New("tool name cannot be empty")
	ErrToolAlreadyExists = errors.New("tool already exists")
	ErrToolNotFound      = errors.New("tool not found")
)

// Result error codes
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeProtectedNamespace = "PROTECTED_NAMESPACE"
	CodeStorageFailure     = "STORAGE_FAILURE"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeToolUnavailable    = "TOOL_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeCancelled          = "CANCELLED"
	CodePanic              = "PANIC"
	CodeNilResult          = "NIL_RESULT"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeExecution          = "EXECUTION_ERROR"
)

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Message   string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for parameter '%s': %s", e.Parameter, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(parameter, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Message:   message,
		Value:     value,
	}
}

// ExecutionError is a failed operation result surfaced as a Go error
type ExecutionError struct {
	ToolName string
	Code     string
	Message  string
	Cause    error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool '%s' execution failed [%s]: %s (caused by: %v)",
			e.ToolName, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool '%s' execution failed [%s]: %s", e.ToolName, e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a new execution error
func NewExecutionError(toolName, code, message string, cause error) *ExecutionError {
	return &ExecutionError{
		ToolName: toolName,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// IsValidationError checks if err is or wraps a validation error
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsExecutionError checks if err is or wraps an execution error
func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
