package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"provider-host/internal/config"
	"provider-host/internal/models"
	"provider-host/internal/observability"
	"provider-host/internal/servers"
	"provider-host/internal/tools"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ToolNameSeparator joins provider and operation names in LLM tool names
const ToolNameSeparator = "__"

var (
	ErrProviderRunning    = errors.New("provider already running")
	ErrProviderNotRunning = errors.New("provider not running")
)

// ProviderService owns the providers the host has started and turns their
// operations into LLM tool definitions.
type ProviderService struct {
	registry  *servers.Registry
	providers map[string]config.ProviderConfig
	metrics   *observability.Metrics
	logger    *logrus.Entry

	mu      sync.RWMutex
	running map[string]servers.Server
}

// NewProviderService creates a provider service. providers holds the
// configured args and overrides per provider name; metrics may be nil.
func NewProviderService(registry *servers.Registry, providers map[string]config.ProviderConfig, metrics *observability.Metrics, logger *logrus.Entry) *ProviderService {
	if logger == nil {
		logger = logrus.WithField("component", "provider_service")
	}
	return &ProviderService{
		registry:  registry,
		providers: providers,
		metrics:   metrics,
		logger:    logger,
		running:   make(map[string]servers.Server),
	}
}

// configured returns the config entry for a provider, looked up by the
// requested name first and then by its canonical name
func (ps *ProviderService) configured(name, canonical string) config.ProviderConfig {
	if cfg, ok := ps.providers[strings.ToLower(name)]; ok {
		return cfg
	}
	return ps.providers[canonical]
}

// Start constructs a provider and keeps it running under its canonical
// catalog name. Caller overrides win over configured ones; configured
// args are used when the caller passes none.
func (ps *ProviderService) Start(ctx context.Context, name string, args []string, overrides map[string]string) (servers.Server, error) {
	kind, ok := servers.ParseKind(name)
	if !ok {
		return nil, &servers.UnknownProviderError{Name: name}
	}
	canonical := string(kind)
	cfg := ps.configured(name, canonical)

	merged := make(map[string]string, len(cfg.Overrides)+len(overrides))
	for key, value := range cfg.Overrides {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	if len(args) == 0 {
		args = cfg.Args
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.running[canonical]; exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderRunning, canonical)
	}

	server, err := ps.registry.Create(ctx, name, args, merged)
	if ps.metrics != nil {
		ps.metrics.ObserveProviderStart(canonical, err)
	}
	if err != nil {
		return nil, err
	}

	ps.running[canonical] = server
	ps.updateGauge()
	ps.logger.WithFields(logrus.Fields{
		"provider": canonical,
		"tools":    len(server.Tools()),
	}).Info("Provider started")
	return server, nil
}

// Autostart starts every configured provider marked autostart. Failures
// are logged and returned together; the other providers still start.
func (ps *ProviderService) Autostart(ctx context.Context) error {
	names := make([]string, 0, len(ps.providers))
	for name, cfg := range ps.providers {
		if cfg.Autostart {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if _, err := ps.Start(ctx, name, nil, nil); err != nil {
			ps.logger.WithError(err).WithField("provider", name).Error("Failed to autostart provider")
			errs = append(errs, fmt.Errorf("autostart %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Get returns a running provider by name or alias
func (ps *ProviderService) Get(name string) (servers.Server, bool) {
	kind, ok := servers.ParseKind(name)
	if !ok {
		return nil, false
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	server, ok := ps.running[string(kind)]
	return server, ok
}

// Stop closes a running provider and forgets it
func (ps *ProviderService) Stop(name string) error {
	kind, ok := servers.ParseKind(name)
	if !ok {
		return &servers.UnknownProviderError{Name: name}
	}

	ps.mu.Lock()
	server, exists := ps.running[string(kind)]
	if exists {
		delete(ps.running, string(kind))
		ps.updateGauge()
	}
	ps.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotRunning, kind)
	}
	ps.logger.WithField("provider", string(kind)).Info("Provider stopped")
	return server.Close()
}

// Close stops every running provider
func (ps *ProviderService) Close() error {
	ps.mu.Lock()
	running := ps.running
	ps.running = make(map[string]servers.Server)
	ps.updateGauge()
	ps.mu.Unlock()

	var errs []error
	for name, server := range running {
		if err := server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (ps *ProviderService) updateGauge() {
	if ps.metrics != nil {
		ps.metrics.ActiveProviders.Set(float64(len(ps.running)))
	}
}

// names returns the running provider names in sorted order
func (ps *ProviderService) names() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	names := make([]string, 0, len(ps.running))
	for name := range ps.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List describes the running providers and their operations
func (ps *ProviderService) List(ctx context.Context) []models.ProviderInfo {
	names := ps.names()
	infos := make([]models.ProviderInfo, 0, len(names))
	for _, name := range names {
		if info, ok := ps.Describe(ctx, name); ok {
			infos = append(infos, *info)
		}
	}
	return infos
}

// Describe returns one running provider's operations
func (ps *ProviderService) Describe(ctx context.Context, name string) (*models.ProviderInfo, bool) {
	server, ok := ps.Get(name)
	if !ok {
		return nil, false
	}

	schemas := server.Tools()
	toolInfos := make([]models.ToolInfo, 0, len(schemas))
	for _, schema := range schemas {
		toolInfos = append(toolInfos, toolInfo(schema, server.Available(ctx, schema.Name)))
	}
	return &models.ProviderInfo{Name: server.Name(), Tools: toolInfos}, true
}

func toolInfo(schema tools.Schema, available bool) models.ToolInfo {
	parameters := make([]models.ToolParameterInfo, len(schema.Parameters))
	for i, param := range schema.Parameters {
		parameters[i] = models.ToolParameterInfo{
			Name:        param.Name,
			Type:        param.Type,
			Description: param.Description,
			Required:    param.Required,
			Default:     param.Default,
			Enum:        param.Enum,
		}
	}

	examples := make([]models.ToolExampleInfo, len(schema.Examples))
	for i, example := range schema.Examples {
		examples[i] = models.ToolExampleInfo{
			Description: example.Description,
			Input:       example.Input,
			Output:      example.Output,
		}
	}

	return models.ToolInfo{
		Name:        schema.Name,
		Description: schema.Description,
		Parameters:  parameters,
		Available:   available,
		Examples:    examples,
	}
}

// Lookup is Get with an error telling an unknown provider apart from one
// that is not running
func (ps *ProviderService) Lookup(name string) (servers.Server, error) {
	server, ok := ps.Get(name)
	if ok {
		return server, nil
	}
	if _, known := servers.ParseKind(name); !known {
		return nil, &servers.UnknownProviderError{Name: name}
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotRunning, name)
}

// Call runs one operation of a running provider
func (ps *ProviderService) Call(ctx context.Context, provider, tool string, input map[string]interface{}) (*tools.Result, error) {
	server, err := ps.Lookup(provider)
	if err != nil {
		return nil, err
	}
	return server.Call(ctx, tool, input), nil
}

// QualifiedToolName is the LLM-facing name of a provider operation
func QualifiedToolName(provider, tool string) string {
	return provider + ToolNameSeparator + tool
}

// SplitToolName reverses QualifiedToolName
func SplitToolName(name string) (provider, tool string, ok bool) {
	provider, tool, ok = strings.Cut(name, ToolNameSeparator)
	if !ok || provider == "" || tool == "" {
		return "", "", false
	}
	return provider, tool, true
}

// GetToolDefinitions returns tool definitions for LLM providers. An empty
// providers list means every running provider. Unavailable operations are
// left out.
func (ps *ProviderService) GetToolDefinitions(ctx context.Context, providers []string) []models.ToolDefinition {
	if len(providers) == 0 {
		providers = ps.names()
	}

	definitions := make([]models.ToolDefinition, 0)
	for _, name := range providers {
		server, ok := ps.Get(name)
		if !ok {
			continue
		}

		for _, schema := range server.Tools() {
			if !server.Available(ctx, schema.Name) {
				continue
			}
			definitions = append(definitions, models.ToolDefinition{
				Type: "function",
				Function: models.ToolFunctionDefinition{
					Name:        QualifiedToolName(server.Name(), schema.Name),
					Description: schema.Description,
					Parameters:  schema.JSONSchema(),
				},
			})
		}
	}
	return definitions
}

// ExecuteToolCalls executes multiple tool calls in order and returns one
// result per call
func (ps *ProviderService) ExecuteToolCalls(ctx context.Context, toolCalls []models.LLMToolCall) []models.ToolCallResult {
	results := make([]models.ToolCallResult, len(toolCalls))
	for i, toolCall := range toolCalls {
		results[i] = ps.executeSingleToolCall(ctx, toolCall)
	}
	return results
}

func (ps *ProviderService) executeSingleToolCall(ctx context.Context, toolCall models.LLMToolCall) models.ToolCallResult {
	callID := toolCall.ID
	if callID == "" {
		callID = uuid.NewString()
	}
	name := toolCall.Function.Name

	log := ps.logger.WithFields(logrus.Fields{
		"tool_name": name,
		"call_id":   callID,
	})
	log.Info("Executing tool call")

	failed := func(code, message string) models.ToolCallResult {
		log.WithField("error_code", code).Warn(message)
		return models.ToolCallResult{
			ID:        callID,
			ToolName:  name,
			Success:   false,
			Error:     message,
			ErrorCode: code,
		}
	}

	provider, tool, ok := SplitToolName(name)
	if !ok {
		return failed(tools.CodeToolNotFound, fmt.Sprintf("Invalid tool name %q: expected provider%stool", name, ToolNameSeparator))
	}

	arguments := map[string]interface{}{}
	if raw := strings.TrimSpace(toolCall.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
			return failed(tools.CodeInvalidInput, fmt.Sprintf("Invalid tool arguments: %v", err))
		}
	}

	start := time.Now()
	result, err := ps.Call(ctx, provider, tool, arguments)
	if err != nil {
		return failed(tools.CodeToolNotFound, err.Error())
	}

	if err := result.Err(name); err != nil {
		log.WithError(err).Warn("Tool call failed")
	}

	return models.ToolCallResult{
		ID:        callID,
		ToolName:  name,
		Success:   result.Success,
		Result:    result.Data,
		Error:     result.Error,
		ErrorCode: result.ErrorCode,
		Duration:  time.Since(start).Milliseconds(),
	}
}
