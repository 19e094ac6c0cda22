package servers

import (
	"context"
	"errors"
	"strings"

	"provider-host/internal/memory"
	"provider-host/internal/tools"
)

func floatPtr(v float64) *float64 { return &v }

// memoryProvider exposes one pooled memory engine as remember, recall and
// forget. The storage location is fixed when the provider is built.
type memoryProvider struct {
	engine  *memory.Lease
	enabled *memory.Switch
}

func newMemoryServer(ctx context.Context, deps Dependencies, overrides map[string]string) (Server, error) {
	location := strings.TrimSpace(overrides[OverrideMemoryPath])
	if location == "" {
		location = strings.TrimSpace(overrides[OverrideMemoryFilePath])
	}
	if location == "" {
		location = deps.DefaultMemoryPath
	}
	if location == "" {
		return nil, missingOverride(KindMemory, OverrideMemoryPath)
	}

	lease, err := deps.Pool.Acquire(ctx, location)
	if err != nil {
		return nil, &ConfigError{Provider: string(KindMemory), Key: OverrideMemoryPath, Message: "cannot open memory store", Err: err}
	}

	p := &memoryProvider{engine: lease, enabled: deps.MemorySwitch}
	ts := []*tools.BaseTool{p.rememberTool(), p.recallTool(), p.forgetTool()}
	list := make([]tools.Tool, 0, len(ts))
	for _, t := range ts {
		t.SetAvailabilityCheck(func(context.Context) bool { return p.enabled.Enabled() })
		list = append(list, t)
	}

	server, err := newToolServer(string(KindMemory), deps, list...)
	if err != nil {
		lease.Release()
		return nil, err
	}
	server.onClose(lease.Release)
	server.logger.WithField("location", lease.Location()).Debug("Memory provider ready")
	return server, nil
}

func (p *memoryProvider) rememberTool() *tools.BaseTool {
	schema := tools.Schema{
		Name:        "remember",
		Description: "Store a piece of free-text knowledge in a user's memory",
		Parameters: []tools.Parameter{
			{Name: "content", Type: tools.TypeString, Description: "The text to remember", Required: true},
			{Name: "metadata", Type: tools.TypeObject, Description: "Arbitrary JSON attributes stored with the memory"},
			{Name: "userId", Type: tools.TypeString, Description: "Owning user namespace (default: default-user)"},
		},
		Examples: []tools.Example{
			{
				Description: "Remember a preference",
				Input:       map[string]interface{}{"content": "Prefers metric units", "userId": "alice"},
				Output:      map[string]interface{}{"id": "4b0c...", "memory": "Prefers metric units", "userId": "alice"},
			},
		},
	}
	return tools.NewBaseTool(schema.Name, schema, func(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
		item, err := p.engine.Add(ctx.Context, tools.String(input, "content"), tools.Object(input, "metadata"), tools.String(input, "userId"))
		if err != nil {
			return memoryErrorResult(err)
		}
		return tools.SuccessResult(item)
	})
}

func (p *memoryProvider) recallTool() *tools.BaseTool {
	schema := tools.Schema{
		Name:        "recall",
		Description: "Find memories of a user whose text contains the query, ignoring case. An empty query lists everything.",
		Parameters: []tools.Parameter{
			{Name: "query", Type: tools.TypeString, Description: "Substring to look for"},
			{Name: "userId", Type: tools.TypeString, Description: "User namespace to search (default: default-user)"},
			{Name: "limit", Type: tools.TypeInteger, Description: "Maximum number of results", Minimum: floatPtr(1), Maximum: floatPtr(100), Default: 10},
			{Name: "offset", Type: tools.TypeInteger, Description: "Number of results to skip", Minimum: floatPtr(0), Default: 0},
		},
		Examples: []tools.Example{
			{
				Description: "Search a user's memories",
				Input:       map[string]interface{}{"query": "units", "userId": "alice", "limit": 5},
				Output:      map[string]interface{}{"results": []interface{}{}, "total": 1},
			},
		},
	}
	return tools.NewBaseTool(schema.Name, schema, func(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
		result, err := p.engine.Search(ctx.Context,
			tools.String(input, "userId"),
			tools.String(input, "query"),
			tools.Int(input, "limit", 10),
			tools.Int(input, "offset", 0),
		)
		if err != nil {
			return memoryErrorResult(err)
		}
		return tools.SuccessResult(result)
	})
}

func (p *memoryProvider) forgetTool() *tools.BaseTool {
	schema := tools.Schema{
		Name:        "forget",
		Description: "Delete one memory by id",
		Parameters: []tools.Parameter{
			{Name: "id", Type: tools.TypeString, Description: "Id of the memory to delete", Required: true},
			{Name: "userId", Type: tools.TypeString, Description: "When set, the memory must belong to this user"},
		},
	}
	return tools.NewBaseTool(schema.Name, schema, func(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
		id := tools.String(input, "id")

		if owner := strings.TrimSpace(tools.String(input, "userId")); owner != "" {
			item, err := p.engine.Get(ctx.Context, id)
			if err != nil {
				return memoryErrorResult(err)
			}
			if item.UserID != owner {
				return tools.ErrorResult(tools.CodeAccessDenied, "Cannot delete memory belonging to another user")
			}
		}

		if err := p.engine.Delete(ctx.Context, id); err != nil {
			return memoryErrorResult(err)
		}
		return tools.SuccessResult(map[string]interface{}{
			"id":      id,
			"deleted": true,
		})
	})
}

// memoryErrorResult keeps the engine's error kinds distinguishable
func memoryErrorResult(err error) *tools.Result {
	code := tools.CodeExecution
	switch {
	case errors.Is(err, memory.ErrInvalidInput):
		code = tools.CodeInvalidInput
	case errors.Is(err, memory.ErrNotFound):
		code = tools.CodeNotFound
	case errors.Is(err, memory.ErrProtectedNamespace):
		code = tools.CodeProtectedNamespace
	case errors.Is(err, memory.ErrStorageFailure):
		code = tools.CodeStorageFailure
	}
	return tools.ErrorResult(code, err.Error())
}
