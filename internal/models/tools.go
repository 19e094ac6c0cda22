package models

// ToolInfo represents basic information about a provider operation
type ToolInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  []ToolParameterInfo `json:"parameters"`
	Available   bool                `json:"available"`
	Examples    []ToolExampleInfo   `json:"examples,omitempty"`
}

// ToolParameterInfo represents information about a tool parameter
type ToolParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// ToolExampleInfo represents an example of tool usage
type ToolExampleInfo struct {
	Description string                 `json:"description"`
	Input       map[string]interface{} `json:"input"`
	Output      interface{}            `json:"output"`
}

// ProviderInfo describes a running provider instance
type ProviderInfo struct {
	Name  string     `json:"name"`
	Tools []ToolInfo `json:"tools"`
}

// OverrideInfo describes one named override a provider accepts
type OverrideInfo struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
	Description string `json:"description"`
}

// CatalogEntry describes a provider that can be constructed
type CatalogEntry struct {
	Name        string         `json:"name"`
	Aliases     []string       `json:"aliases,omitempty"`
	Description string         `json:"description"`
	Args        string         `json:"args,omitempty"`
	Overrides   []OverrideInfo `json:"overrides,omitempty"`
}

// StartProviderRequest asks the host to construct a provider
type StartProviderRequest struct {
	Name      string            `json:"name" validate:"required"`
	Args      []string          `json:"args,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// ToolCallResult represents the result of a tool call
type ToolCallResult struct {
	ID        string      `json:"id"`
	ToolName  string      `json:"tool_name"`
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	Duration  int64       `json:"duration_ms"`
}

// ToolDefinition represents a tool schema for LLM providers
type ToolDefinition struct {
	Type     string                 `json:"type"` // Always "function" for now
	Function ToolFunctionDefinition `json:"function"`
}

// ToolFunctionDefinition represents the function definition for a tool
type ToolFunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// LLMToolCall represents a tool call from an LLM response
type LLMToolCall struct {
	ID       string              `json:"id,omitempty"`
	Type     string              `json:"type"` // "function"
	Function LLMToolCallFunction `json:"function"`
}

// LLMToolCallFunction represents the function call details
type LLMToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}
