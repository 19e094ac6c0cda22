package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Parameter types understood by validation and JSON schema generation
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Parameter represents an operation parameter definition
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`    // string parameters
	Minimum     *float64    `json:"minimum,omitempty"` // number and integer parameters
	Maximum     *float64    `json:"maximum,omitempty"`
	Pattern     string      `json:"pattern,omitempty"` // regex for string parameters
	Items       string      `json:"items,omitempty"`   // element type for array parameters
}

// Schema describes an operation and the input it accepts
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Examples    []Example   `json:"examples,omitempty"`
}

// Example represents an operation usage example
type Example struct {
	Description string                 `json:"description"`
	Input       map[string]interface{} `json:"input"`
	Output      interface{}            `json:"output"`
}

// Parameter looks up a parameter by name
func (s Schema) Parameter(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// JSONSchema renders the parameters as a JSON Schema object
func (s Schema) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Parameters))
	required := make([]string, 0)

	for _, param := range s.Parameters {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Minimum != nil {
			prop["minimum"] = *param.Minimum
		}
		if param.Maximum != nil {
			prop["maximum"] = *param.Maximum
		}
		if param.Pattern != "" {
			prop["pattern"] = param.Pattern
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		if param.Type == TypeArray && param.Items != "" {
			prop["items"] = map[string]interface{}{"type": param.Items}
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ExecutionContext carries per-call state into an operation
type ExecutionContext struct {
	Context   context.Context
	Provider  string
	RequestID string
	UserID    string
	Timeout   time.Duration
	Metadata  map[string]interface{}
}

// Result represents the outcome of one operation call
type Result struct {
	Success   bool                   `json:"success"`
	Data      interface{}            `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Duration  time.Duration          `json:"-"`
}

// MarshalJSON reports the duration in milliseconds
func (r *Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	return json.Marshal(&struct {
		DurationMs int64 `json:"duration_ms"`
		*Alias
	}{
		DurationMs: r.Duration.Milliseconds(),
		Alias:      (*Alias)(r),
	})
}

// Err converts a failed result into an *ExecutionError, nil on success
func (r *Result) Err(toolName string) error {
	if r == nil || r.Success {
		return nil
	}
	return NewExecutionError(toolName, r.ErrorCode, r.Error, nil)
}

// Tool defines one callable operation
type Tool interface {
	// Name returns the operation's unique name within its provider
	Name() string

	// Schema returns the operation's schema definition
	Schema() Schema

	// Validate validates the input parameters
	Validate(input map[string]interface{}) error

	// Execute runs the operation with the given input
	Execute(ctx ExecutionContext, input map[string]interface{}) *Result

	// IsAvailable checks if the operation can currently be called
	IsAvailable(ctx context.Context) bool
}

// Registry holds the operations one provider exposes
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return ErrNilTool
	}

	name := tool.Name()
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return ErrToolAlreadyExists
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the schemas of all tools ordered by name
func (r *Registry) Schemas() []Schema {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			schemas = append(schemas, tool.Schema())
		}
	}
	return schemas
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Executor looks up, validates and runs operations from a registry
type Executor struct {
	registry *Registry
	provider string
	timeout  time.Duration
}

// NewExecutor creates an executor for one provider's registry
func NewExecutor(provider string, registry *Registry, timeout time.Duration) *Executor {
	return &Executor{
		registry: registry,
		provider: provider,
		timeout:  timeout,
	}
}

// Execute runs toolName with input. Lookup, availability and validation
// failures come back as failed results, never as panics.
func (e *Executor) Execute(ctx context.Context, toolName string, input map[string]interface{}) *Result {
	tool, exists := e.registry.Get(toolName)
	if !exists {
		return ErrorResult(CodeToolNotFound, "tool not found: "+toolName)
	}

	if !tool.IsAvailable(ctx) {
		return ErrorResult(CodeToolUnavailable, "tool not available: "+toolName)
	}

	if input == nil {
		input = map[string]interface{}{}
	}
	if err := tool.Validate(input); err != nil {
		return ValidationErrorResult(err)
	}

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result := tool.Execute(ExecutionContext{
		Context:   execCtx,
		Provider:  e.provider,
		RequestID: uuid.NewString(),
		Timeout:   e.timeout,
		Metadata:  make(map[string]interface{}),
	}, input)
	result.Duration = time.Since(start)

	return result
}
