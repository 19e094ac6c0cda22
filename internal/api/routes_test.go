package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"provider-host/internal/config"
	"provider-host/internal/memory"
	"provider-host/internal/observability"
	"provider-host/internal/servers"
	"provider-host/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
)

type RoutesSuite struct {
	suite.Suite
	pool       *memory.Pool
	lease      *memory.Lease
	providers  *services.ProviderService
	configPath string
	router     *gin.Engine
}

func (s *RoutesSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s.configPath = filepath.Join(s.T().TempDir(), "config.yaml")
	s.writeConfig("memory:\n  enabled: true\n")
	cfg, err := config.Load(s.configPath)
	s.Require().NoError(err)

	metrics := observability.NewMetrics("test")
	s.pool = memory.NewPool(nil, memory.WithObserver(metrics))
	s.lease, err = s.pool.Acquire(ctx, ":memory:")
	s.Require().NoError(err)

	enabled := memory.NewSwitch(true)
	registry := servers.NewRegistry(servers.Dependencies{
		Pool:              s.pool,
		MemorySwitch:      enabled,
		DefaultMemoryPath: ":memory:",
		ToolTimeout:       5 * time.Second,
		Observer:          metrics,
	})
	s.providers = services.NewProviderService(registry, nil, metrics, nil)
	memoryService := services.NewMemoryService(s.lease, enabled, config.NewLoader(s.configPath), "./data", nil)

	logger, _ := logtest.NewNullLogger()
	server := NewServer(cfg, s.providers, memoryService, metrics, logrus.NewEntry(logger))
	server.SetupRoutes()
	s.router = server.GetRouter()
}

func (s *RoutesSuite) TearDownTest() {
	s.providers.Close()
	s.lease.Release()
	s.pool.Close()
}

func (s *RoutesSuite) writeConfig(content string) {
	s.Require().NoError(os.WriteFile(s.configPath, []byte(content), 0o644))
}

// do sends a request and decodes a JSON response body into a map
func (s *RoutesSuite) do(method, path string, body interface{}) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w.Code, decoded
}

func (s *RoutesSuite) TestHealth() {
	code, body := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("ok", body["status"])
	s.Equal(true, body["memory_enabled"])
}

func (s *RoutesSuite) TestCatalog() {
	code, body := s.do(http.MethodGet, "/api/v1/servers/catalog", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["providers"], 7)
}

func (s *RoutesSuite) TestProviderLifecycle() {
	code, body := s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "@cherry/python"})
	s.Require().Equal(http.StatusCreated, code, body)
	s.Equal("code-execution", body["name"])

	code, _ = s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "code-execution"})
	s.Equal(http.StatusConflict, code)

	code, body = s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "nope"})
	s.Equal(http.StatusNotFound, code)
	s.Equal("UNKNOWN_PROVIDER", body["code"])

	code, body = s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "search"})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("PROVIDER_CONFIG_ERROR", body["code"])

	code, _ = s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{})
	s.Equal(http.StatusBadRequest, code)

	code, body = s.do(http.MethodGet, "/api/v1/servers", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(1.0, body["total"])

	code, body = s.do(http.MethodGet, "/api/v1/servers/code-execution/tools", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["tools"], 1)

	code, _ = s.do(http.MethodGet, "/api/v1/servers/memory/tools", nil)
	s.Equal(http.StatusNotFound, code)

	code, _ = s.do(http.MethodDelete, "/api/v1/servers/code-execution", nil)
	s.Equal(http.StatusNoContent, code)

	code, body = s.do(http.MethodDelete, "/api/v1/servers/code-execution", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("PROVIDER_NOT_RUNNING", body["code"])
}

func (s *RoutesSuite) TestCallTool() {
	code, _ := s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "code-execution"})
	s.Require().Equal(http.StatusCreated, code)

	tests := []struct {
		name     string
		path     string
		input    map[string]interface{}
		wantCode int
		wantErr  string
	}{
		{"success", "/api/v1/servers/code-execution/tools/evaluate/call", map[string]interface{}{"expression": "3 + 4"}, http.StatusOK, ""},
		{"missing parameter", "/api/v1/servers/code-execution/tools/evaluate/call", map[string]interface{}{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad expression", "/api/v1/servers/code-execution/tools/evaluate/call", map[string]interface{}{"expression": "1 / 0"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown tool", "/api/v1/servers/code-execution/tools/nope/call", map[string]interface{}{}, http.StatusNotFound, "TOOL_NOT_FOUND"},
		{"provider not running", "/api/v1/servers/fetch/tools/fetch/call", map[string]interface{}{}, http.StatusNotFound, "PROVIDER_NOT_RUNNING"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			code, body := s.do(http.MethodPost, tt.path, tt.input)
			s.Equal(tt.wantCode, code, body)
			if tt.wantErr == "" {
				s.Equal(true, body["success"])
				data := body["data"].(map[string]interface{})
				s.Equal(7.0, data["result"])
				s.Contains(body, "duration_ms")
				return
			}
			if code, ok := body["error_code"]; ok {
				s.Equal(tt.wantErr, code)
			} else {
				s.Equal(tt.wantErr, body["code"])
			}
		})
	}
}

func (s *RoutesSuite) TestToolDefinitionsAndCalls() {
	code, _ := s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "code-execution"})
	s.Require().Equal(http.StatusCreated, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers/tool-definitions?servers=code-execution,+fetch", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code)

	var defs []map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &defs))
	s.Require().Len(defs, 1)
	s.Equal("code-execution__evaluate", defs[0]["function"].(map[string]interface{})["name"])

	code, body := s.do(http.MethodPost, "/api/v1/servers/tool-calls", []map[string]interface{}{
		{"id": "a", "type": "function", "function": map[string]interface{}{"name": "code-execution__evaluate", "arguments": `{"expression":"2*21"}`}},
	})
	s.Require().Equal(http.StatusOK, code)
	results := body["results"].([]interface{})
	s.Require().Len(results, 1)
	s.Equal(true, results[0].(map[string]interface{})["success"])
}

func (s *RoutesSuite) TestMemorySession() {
	code, body := s.do(http.MethodPost, "/api/v1/memory/sessions", nil)
	s.Require().Equal(http.StatusCreated, code)
	s.Equal(memory.DefaultUserID, body["currentUser"])
	base := "/api/v1/memory/sessions/" + body["id"].(string)

	code, body = s.do(http.MethodPost, base+"/memories", map[string]interface{}{"memory": "likes green tea", "metadata": map[string]interface{}{"source": "test"}})
	s.Require().Equal(http.StatusCreated, code, body)
	id := body["id"].(string)
	s.Equal(memory.DefaultUserID, body["userId"])

	code, _ = s.do(http.MethodPost, base+"/memories", map[string]interface{}{"memory": ""})
	s.Equal(http.StatusBadRequest, code)

	code, body = s.do(http.MethodGet, base+"/memories?q=GREEN&limit=5", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(1.0, body["total"])

	code, _ = s.do(http.MethodGet, base+"/memories?offset=-1", nil)
	s.Equal(http.StatusBadRequest, code)
	code, _ = s.do(http.MethodGet, base+"/memories?limit=many", nil)
	s.Equal(http.StatusBadRequest, code)

	code, body = s.do(http.MethodPut, base+"/memories/"+id, map[string]interface{}{"memory": "likes black tea"})
	s.Require().Equal(http.StatusOK, code)
	s.Equal("likes black tea", body["memory"])
	s.Equal("test", body["metadata"].(map[string]interface{})["source"])

	code, _ = s.do(http.MethodDelete, base+"/memories/"+id, nil)
	s.Equal(http.StatusNoContent, code)
	code, body = s.do(http.MethodGet, base+"/memories/"+id, nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("NOT_FOUND", body["code"])

	code, _ = s.do(http.MethodDelete, base, nil)
	s.Equal(http.StatusNoContent, code)
	code, body = s.do(http.MethodGet, base, nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("SESSION_NOT_FOUND", body["code"])
}

func (s *RoutesSuite) TestMemoryUsers() {
	_, body := s.do(http.MethodPost, "/api/v1/memory/sessions", nil)
	base := "/api/v1/memory/sessions/" + body["id"].(string)

	code, body := s.do(http.MethodPost, base+"/users", map[string]interface{}{"userId": "alice"})
	s.Require().Equal(http.StatusCreated, code, body)
	s.Equal("alice", body["currentUser"])

	tests := []struct {
		userID   string
		wantCode int
	}{
		{"alice", http.StatusBadRequest},
		{"not valid!", http.StatusBadRequest},
		{memory.DefaultUserID, http.StatusForbidden},
	}
	for _, tt := range tests {
		code, _ := s.do(http.MethodPost, base+"/users", map[string]interface{}{"userId": tt.userID})
		s.Equal(tt.wantCode, code, tt.userID)
	}

	code, body = s.do(http.MethodGet, base+"/users", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(body["users"], 2)
	s.Equal("alice", body["currentUser"])

	code, body = s.do(http.MethodGet, "/api/v1/memory/users/alice/stats", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(1.0, body["totalMemories"])

	code, body = s.do(http.MethodDelete, base+"/users/alice/memories", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(1.0, body["removed"])

	code, _ = s.do(http.MethodPut, base+"/user", map[string]interface{}{"userId": "bob"})
	s.Require().Equal(http.StatusOK, code)
	_, err := s.lease.Add(context.Background(), "bob's", nil, "bob")
	s.Require().NoError(err)

	code, body = s.do(http.MethodDelete, base+"/users/bob", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(memory.DefaultUserID, body["currentUser"])

	code, body = s.do(http.MethodDelete, base+"/users/"+memory.DefaultUserID, nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal("PROTECTED_NAMESPACE", body["code"])
}

func (s *RoutesSuite) TestReloadConfigHidesMemoryTools() {
	code, _ := s.do(http.MethodPost, "/api/v1/servers", map[string]interface{}{"name": "memory"})
	s.Require().Equal(http.StatusCreated, code)

	s.writeConfig("memory:\n  enabled: false\n")
	code, body := s.do(http.MethodPost, "/api/v1/memory/config/reload", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(false, body["enabled"])

	code, body = s.do(http.MethodPost, "/api/v1/servers/memory/tools/recall/call", map[string]interface{}{})
	s.Equal(http.StatusServiceUnavailable, code)
	s.Equal("TOOL_UNAVAILABLE", body["error_code"])

	code, body = s.do(http.MethodGet, "/api/v1/memory/status", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(false, body["enabled"])

	s.writeConfig("server: [\n")
	code, body = s.do(http.MethodPost, "/api/v1/memory/config/reload", nil)
	s.Equal(http.StatusInternalServerError, code)
	s.Equal(false, body["enabled"])
}

func (s *RoutesSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/health", nil)
	s.do(http.MethodGet, "/api/v1/servers/catalog", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `test_http_requests_total{method="GET",route="/api/v1/servers/catalog",status="200"} 1`)
}

func (s *RoutesSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/servers", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutesSuite(t *testing.T) {
	suite.Run(t, new(RoutesSuite))
}
