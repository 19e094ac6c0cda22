package servers

import (
	"context"
	"errors"
	"testing"
	"time"

	"provider-host/internal/memory"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	pool := memory.NewPool(nil)
	t.Cleanup(func() { pool.Close() })
	return Dependencies{
		Pool:              pool,
		MemorySwitch:      memory.NewSwitch(true),
		DefaultMemoryPath: t.TempDir(),
		ToolTimeout:       5 * time.Second,
	}
}

func create(t *testing.T, r *Registry, name string, args []string, overrides map[string]string) Server {
	t.Helper()
	server, err := r.Create(context.Background(), name, args, overrides)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(testDeps(t))

	server, err := r.Create(context.Background(), "unknown-provider", nil, nil)
	assert.Nil(t, server)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	var unknown *UnknownProviderError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown-provider", unknown.Name)
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestRegistry_CreatesEveryCatalogEntry(t *testing.T) {
	r := NewRegistry(testDeps(t))

	args := map[Kind][]string{
		KindFilesystem: {t.TempDir()},
	}
	overrides := map[Kind]map[string]string{
		KindSearch:        {OverrideBraveAPIKey: "k"},
		KindKnowledgeBase: {OverrideDifyKey: "k"},
	}

	for _, entry := range Catalog() {
		t.Run(entry.Name, func(t *testing.T) {
			kind := Kind(entry.Name)
			server := create(t, r, entry.Name, args[kind], overrides[kind])
			assert.Equal(t, entry.Name, server.Name())
			assert.NotEmpty(t, server.Tools())
		})
	}
}

func TestRegistry_Aliases(t *testing.T) {
	r := NewRegistry(testDeps(t))

	server := create(t, r, "@tutu/sequentialthinking", nil, nil)
	assert.Equal(t, string(KindSequentialThinking), server.Name())

	kind, ok := ParseKind("@cherry/python")
	assert.True(t, ok)
	assert.Equal(t, KindCodeExecution, kind)

	_, ok = ParseKind("@tutu/unknown")
	assert.False(t, ok)
}

func TestRegistry_ConfigErrors(t *testing.T) {
	r := NewRegistry(testDeps(t))

	tests := []struct {
		name      string
		provider  string
		args      []string
		overrides map[string]string
		wantKey   string
	}{
		{"search without key", "search", nil, nil, OverrideBraveAPIKey},
		{"search blank key", "search", nil, map[string]string{OverrideBraveAPIKey: "  "}, OverrideBraveAPIKey},
		{"search bad url", "search", nil, map[string]string{OverrideBraveAPIKey: "k", OverrideBraveAPIURL: "not a url"}, OverrideBraveAPIURL},
		{"knowledge without key", "knowledge-base", nil, nil, OverrideDifyKey},
		{"filesystem without roots", "filesystem", nil, nil, "args"},
		{"filesystem missing root", "filesystem", []string{"/definitely/not/here"}, nil, "args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(context.Background(), tt.provider, tt.args, tt.overrides)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrUnknownProvider))

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.provider, cfgErr.Provider)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestRegistry_LogsRedactedOverrides(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	deps := testDeps(t)
	deps.Logger = logrus.NewEntry(logger)
	r := NewRegistry(deps)

	create(t, r, "search", nil, map[string]string{
		OverrideBraveAPIKey: "super-secret",
		OverrideBraveAPIURL: "http://localhost:1/search",
	})

	require.NotEmpty(t, hook.Entries)
	entry := hook.Entries[0]
	assert.Equal(t, "search", entry.Data["provider"])

	logged := entry.Data["overrides"].(map[string]string)
	assert.Equal(t, "****", logged[OverrideBraveAPIKey])
	assert.Equal(t, "http://localhost:1/search", logged[OverrideBraveAPIURL])
	for _, e := range hook.AllEntries() {
		s, _ := e.String()
		assert.NotContains(t, s, "super-secret")
	}
}

func TestRedactOverrides(t *testing.T) {
	redacted := RedactOverrides(map[string]string{
		"DIFY_KEY":         "a",
		"github_token":     "b",
		"CLIENT_SECRET":    "c",
		"DB_PASSWORD":      "d",
		"MEMORY_PATH":      "/data",
		"FETCH_USER_AGENT": "bot",
	})

	assert.Equal(t, map[string]string{
		"DIFY_KEY":         "****",
		"github_token":     "****",
		"CLIENT_SECRET":    "****",
		"DB_PASSWORD":      "****",
		"MEMORY_PATH":      "/data",
		"FETCH_USER_AGENT": "bot",
	}, redacted)
}

func TestServer_UnknownTool(t *testing.T) {
	r := NewRegistry(testDeps(t))
	server := create(t, r, "code-execution", nil, nil)

	result := server.Call(context.Background(), "nope", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "TOOL_NOT_FOUND", result.ErrorCode)
}

type recordingCalls struct {
	calls []string
}

func (r *recordingCalls) ObserveToolCall(provider, tool, code string, _ time.Duration) {
	r.calls = append(r.calls, provider+"/"+tool+":"+code)
}

func TestServer_ObservesCalls(t *testing.T) {
	observer := &recordingCalls{}
	deps := testDeps(t)
	deps.Observer = observer
	r := NewRegistry(deps)
	server := create(t, r, "code-execution", nil, nil)

	server.Call(context.Background(), "evaluate", map[string]interface{}{"expression": "1+1"})
	server.Call(context.Background(), "evaluate", map[string]interface{}{})

	assert.Equal(t, []string{
		"code-execution/evaluate:",
		"code-execution/evaluate:VALIDATION_ERROR",
	}, observer.calls)
}
