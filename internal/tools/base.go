package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExecuteFunc implements an operation on already sanitized input
type ExecuteFunc func(ctx ExecutionContext, input map[string]interface{}) *Result

// BaseTool implements Tool around a schema and an ExecuteFunc
type BaseTool struct {
	name        string
	schema      Schema
	executeFunc ExecuteFunc
	available   func(context.Context) bool
}

// NewBaseTool creates a new base tool
func NewBaseTool(name string, schema Schema, executeFunc ExecuteFunc) *BaseTool {
	return &BaseTool{
		name:        name,
		schema:      schema,
		executeFunc: executeFunc,
		available:   func(context.Context) bool { return true },
	}
}

// Name returns the tool's name
func (bt *BaseTool) Name() string {
	return bt.name
}

// Schema returns the tool's schema
func (bt *BaseTool) Schema() Schema {
	return bt.schema
}

// Validate validates the input using the schema
func (bt *BaseTool) Validate(input map[string]interface{}) error {
	return ValidateInput(bt.schema, input)
}

// Execute sanitizes input and runs the operation, recovering panics and
// giving up when the context ends first.
func (bt *BaseTool) Execute(ctx ExecutionContext, input map[string]interface{}) *Result {
	if ctx.Context == nil {
		ctx.Context = context.Background()
	}

	sanitized, err := SanitizeInput(bt.schema, input)
	if err != nil {
		return ValidationErrorResult(err)
	}

	if err := ctx.Context.Err(); err != nil {
		return contextResult(err, 0)
	}

	start := time.Now()
	done := make(chan *Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &Result{
					Success:   false,
					Error:     fmt.Sprintf("tool execution panicked: %v", r),
					ErrorCode: CodePanic,
					Duration:  time.Since(start),
				}
			}
		}()

		result := bt.executeFunc(ctx, sanitized)
		if result == nil {
			result = ErrorResult(CodeNilResult, "tool returned nil result")
		}
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Context.Done():
		return contextResult(ctx.Context.Err(), time.Since(start))
	}
}

func contextResult(err error, elapsed time.Duration) *Result {
	code, message := CodeCancelled, "execution cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		code, message = CodeTimeout, "execution timeout"
	}
	return &Result{
		Success:   false,
		Error:     message,
		ErrorCode: code,
		Duration:  elapsed,
	}
}

// IsAvailable checks if the tool is available
func (bt *BaseTool) IsAvailable(ctx context.Context) bool {
	return bt.available(ctx)
}

// SetAvailabilityCheck sets a custom availability check function
func (bt *BaseTool) SetAvailabilityCheck(available func(context.Context) bool) {
	bt.available = available
}

// SuccessResult creates a successful result
func SuccessResult(data interface{}, metadata ...map[string]interface{}) *Result {
	result := &Result{
		Success: true,
		Data:    data,
	}
	if len(metadata) > 0 {
		result.Metadata = metadata[0]
	}
	return result
}

// ErrorResult creates an error result
func ErrorResult(errorCode, message string, metadata ...map[string]interface{}) *Result {
	result := &Result{
		Success:   false,
		Error:     message,
		ErrorCode: errorCode,
	}
	if len(metadata) > 0 {
		result.Metadata = metadata[0]
	}
	return result
}

// ValidationErrorResult creates a validation error result. Parameter
// errors carry the offending parameter in the metadata.
func ValidationErrorResult(err error) *Result {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ErrorResult(CodeValidation, err.Error(), map[string]interface{}{"parameter": verr.Parameter})
	}
	return ErrorResult(CodeValidation, err.Error())
}
