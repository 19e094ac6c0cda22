package handlers

import (
	"net/http"
	"strconv"

	"provider-host/internal/models"
	"provider-host/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// MemoryHandler exposes the memory facade to the settings surface
type MemoryHandler struct {
	service   *services.MemoryService
	sessions  *services.SessionStore
	validator *validator.Validate
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(service *services.MemoryService, sessions *services.SessionStore) *MemoryHandler {
	return &MemoryHandler{
		service:   service,
		sessions:  sessions,
		validator: services.NewValidator(),
	}
}

func sessionView(session *services.Session) gin.H {
	return gin.H{"id": session.ID(), "currentUser": session.CurrentUser()}
}

// session resolves the :sid path parameter, writing a 404 when it is unknown
func (h *MemoryHandler) session(c *gin.Context) (*services.Session, bool) {
	session, ok := h.sessions.Get(c.Param("sid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "code": "SESSION_NOT_FOUND"})
		return nil, false
	}
	return session, true
}

func (h *MemoryHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		respondBadRequest(c, "Validation failed", err)
		return false
	}
	return true
}

// page reads limit and offset query parameters; absent means no limit
func page(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			respondBadRequest(c, "Invalid limit parameter", err)
			return 0, 0, false
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			respondBadRequest(c, "Invalid offset parameter", err)
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// Status reports whether memory providers are enabled
// @Router /memory/status [get]
func (h *MemoryHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.service.Enabled()})
}

// ReloadConfig re-reads the configuration and applies the enable flag
// @Router /memory/config/reload [post]
func (h *MemoryHandler) ReloadConfig(c *gin.Context) {
	enabled, err := h.service.UpdateConfig(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload configuration", "details": err.Error(), "enabled": enabled})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

// CreateSession opens a facade session on the default user
// @Router /memory/sessions [post]
func (h *MemoryHandler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, sessionView(h.sessions.Create()))
}

// GetSession returns a session and its current user
// @Router /memory/sessions/{sid} [get]
func (h *MemoryHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// DeleteSession closes a session
// @Router /memory/sessions/{sid} [delete]
func (h *MemoryHandler) DeleteSession(c *gin.Context) {
	if !h.sessions.Delete(c.Param("sid")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "code": "SESSION_NOT_FOUND"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetCurrentUser switches the session's namespace
// @Router /memory/sessions/{sid}/user [put]
func (h *MemoryHandler) SetCurrentUser(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req models.SetCurrentUserRequest
	if !h.bind(c, &req) {
		return
	}
	if err := session.SetCurrentUser(req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// ListMemories pages through the current user's memories. A q parameter
// switches to a substring search.
// @Router /memory/sessions/{sid}/memories [get]
func (h *MemoryHandler) ListMemories(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}

	var (
		result *models.ListResult
		err    error
	)
	if query, search := c.GetQuery("q"); search {
		result, err = session.Search(c.Request.Context(), query, limit, offset)
	} else {
		result, err = session.List(c.Request.Context(), limit, offset)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddMemory stores a memory for the current user
// @Router /memory/sessions/{sid}/memories [post]
func (h *MemoryHandler) AddMemory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req models.AddMemoryRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := session.Add(c.Request.Context(), req.Memory, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetMemory returns one memory
// @Router /memory/sessions/{sid}/memories/{id} [get]
func (h *MemoryHandler) GetMemory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	item, err := session.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateMemory changes a memory's content and merges its metadata
// @Router /memory/sessions/{sid}/memories/{id} [put]
func (h *MemoryHandler) UpdateMemory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req models.UpdateMemoryRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := session.Update(c.Request.Context(), c.Param("id"), req.Memory, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteMemory removes one memory
// @Router /memory/sessions/{sid}/memories/{id} [delete]
func (h *MemoryHandler) DeleteMemory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers returns every namespace, the default one first
// @Router /memory/sessions/{sid}/users [get]
func (h *MemoryHandler) ListUsers(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	users, err := session.GetUsersList(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "currentUser": session.CurrentUser()})
}

// AddUser creates a namespace and makes it the session's current user
// @Router /memory/sessions/{sid}/users [post]
func (h *MemoryHandler) AddUser(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req models.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err)
		return
	}

	// AddUser runs the userid rule itself so the error kind is preserved
	item, err := session.AddUser(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"memory": item, "currentUser": session.CurrentUser()})
}

// DeleteUser removes a namespace
// @Router /memory/sessions/{sid}/users/{uid} [delete]
func (h *MemoryHandler) DeleteUser(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.DeleteUser(c.Request.Context(), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// ResetUser empties a namespace without removing it from the session
// @Router /memory/sessions/{sid}/users/{uid}/memories [delete]
func (h *MemoryHandler) ResetUser(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	removed, err := session.DeleteAllMemoriesForUser(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// UserStats summarizes one namespace
// @Router /memory/users/{uid}/stats [get]
func (h *MemoryHandler) UserStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
