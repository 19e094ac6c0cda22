package handlers

import (
	"errors"
	"net/http"

	"provider-host/internal/memory"
	"provider-host/internal/servers"
	"provider-host/internal/services"
	"provider-host/internal/tools"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// errorStatus maps domain errors to an HTTP status and a stable code
func errorStatus(err error) (int, string) {
	var cfgErr *servers.ConfigError
	switch {
	case errors.Is(err, memory.ErrInvalidInput):
		return http.StatusBadRequest, tools.CodeInvalidInput
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound, tools.CodeNotFound
	case errors.Is(err, memory.ErrProtectedNamespace):
		return http.StatusForbidden, tools.CodeProtectedNamespace
	case errors.Is(err, memory.ErrStorageFailure):
		return http.StatusInternalServerError, tools.CodeStorageFailure
	case errors.Is(err, servers.ErrUnknownProvider):
		return http.StatusNotFound, "UNKNOWN_PROVIDER"
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "PROVIDER_CONFIG_ERROR"
	case errors.Is(err, services.ErrProviderRunning):
		return http.StatusConflict, "PROVIDER_RUNNING"
	case errors.Is(err, services.ErrProviderNotRunning):
		return http.StatusNotFound, "PROVIDER_NOT_RUNNING"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func respondBadRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "details": err.Error(), "code": tools.CodeValidation})
}

// resultStatus maps an operation result code to an HTTP status
func resultStatus(result *tools.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case tools.CodeValidation, tools.CodeInvalidInput:
		return http.StatusBadRequest
	case tools.CodeNotFound, tools.CodeToolNotFound:
		return http.StatusNotFound
	case tools.CodeAccessDenied, tools.CodeProtectedNamespace:
		return http.StatusForbidden
	case tools.CodeToolUnavailable:
		return http.StatusServiceUnavailable
	case tools.CodeTimeout:
		return http.StatusGatewayTimeout
	case tools.CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
