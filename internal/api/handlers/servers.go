package handlers

import (
	"net/http"
	"strings"

	"provider-host/internal/models"
	"provider-host/internal/servers"
	"provider-host/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ServersHandler handles provider-related HTTP requests
type ServersHandler struct {
	providers *services.ProviderService
	validator *validator.Validate
}

// NewServersHandler creates a new servers handler
func NewServersHandler(providers *services.ProviderService) *ServersHandler {
	return &ServersHandler{
		providers: providers,
		validator: services.NewValidator(),
	}
}

// Catalog lists the providers that can be started
// @Router /servers/catalog [get]
func (h *ServersHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": servers.Catalog()})
}

// List returns the running providers with their operations
// @Router /servers [get]
func (h *ServersHandler) List(c *gin.Context) {
	infos := h.providers.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"servers": infos, "total": len(infos)})
}

// Start constructs a provider
// @Router /servers [post]
func (h *ServersHandler) Start(c *gin.Context) {
	var req models.StartProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondBadRequest(c, "Validation failed", err)
		return
	}

	ctx := c.Request.Context()
	server, err := h.providers.Start(ctx, req.Name, req.Args, req.Overrides)
	if err != nil {
		respondError(c, err)
		return
	}

	info, _ := h.providers.Describe(ctx, server.Name())
	c.JSON(http.StatusCreated, info)
}

// Stop closes a running provider
// @Router /servers/{name} [delete]
func (h *ServersHandler) Stop(c *gin.Context) {
	if err := h.providers.Stop(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Tools describes one running provider's operations
// @Router /servers/{name}/tools [get]
func (h *ServersHandler) Tools(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.providers.Lookup(name); err != nil {
		respondError(c, err)
		return
	}

	info, ok := h.providers.Describe(c.Request.Context(), name)
	if !ok {
		// stopped between the two lookups
		respondError(c, services.ErrProviderNotRunning)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Call runs one operation of a running provider
// @Router /servers/{name}/tools/{tool}/call [post]
func (h *ServersHandler) Call(c *gin.Context) {
	input := map[string]interface{}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBadRequest(c, "Invalid request body", err)
			return
		}
	}

	result, err := h.providers.Call(c.Request.Context(), c.Param("name"), c.Param("tool"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(resultStatus(result), result)
}

// ToolDefinitions returns LLM function definitions for running providers
// @Param servers query string false "Comma-separated provider names (empty for all)"
// @Router /servers/tool-definitions [get]
func (h *ServersHandler) ToolDefinitions(c *gin.Context) {
	var names []string
	for _, name := range strings.Split(c.Query("servers"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	c.JSON(http.StatusOK, h.providers.GetToolDefinitions(c.Request.Context(), names))
}

// ExecuteToolCalls runs tool calls produced by an LLM
// @Router /servers/tool-calls [post]
func (h *ServersHandler) ExecuteToolCalls(c *gin.Context) {
	var calls []models.LLMToolCall
	if err := c.ShouldBindJSON(&calls); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.providers.ExecuteToolCalls(c.Request.Context(), calls)})
}
