package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"provider-host/internal/api/handlers"
	"provider-host/internal/api/middleware"
	"provider-host/internal/config"
	"provider-host/internal/observability"
	"provider-host/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	providers  *services.ProviderService
	memory     *services.MemoryService
	sessions   *services.SessionStore
	metrics    *observability.Metrics
	logger     *logrus.Entry
	httpServer *http.Server
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg *config.Config, providers *services.ProviderService, memory *services.MemoryService, metrics *observability.Metrics, logger *logrus.Entry) *Server {
	// Set Gin mode based on config
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}

	router := gin.New()
	return &Server{
		router:    router,
		config:    cfg,
		providers: providers,
		memory:    memory,
		sessions:  services.NewSessionStore(memory),
		metrics:   metrics,
		logger:    logger,
		httpServer: &http.Server{
			Addr:              cfg.GetAddress(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// SetupRoutes configures all routes and middleware
func (s *Server) SetupRoutes() {
	// Global middleware
	s.router.Use(middleware.Logger(s.logger, "/health", "/metrics"))
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.CORS())
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"providers":      len(s.providers.List(c.Request.Context())),
			"memory_enabled": s.memory.Enabled(),
		})
	})

	v1 := s.router.Group("/api/v1")
	{
		serversHandler := handlers.NewServersHandler(s.providers)
		srv := v1.Group("/servers")
		{
			srv.GET("/catalog", serversHandler.Catalog)
			srv.GET("/tool-definitions", serversHandler.ToolDefinitions)
			srv.POST("/tool-calls", serversHandler.ExecuteToolCalls)
			srv.GET("", serversHandler.List)
			srv.POST("", serversHandler.Start)
			srv.DELETE("/:name", serversHandler.Stop)
			srv.GET("/:name/tools", serversHandler.Tools)
			srv.POST("/:name/tools/:tool/call", serversHandler.Call)
		}

		memoryHandler := handlers.NewMemoryHandler(s.memory, s.sessions)
		mem := v1.Group("/memory")
		{
			mem.GET("/status", memoryHandler.Status)
			mem.POST("/config/reload", memoryHandler.ReloadConfig)
			mem.GET("/users/:uid/stats", memoryHandler.UserStats)

			mem.POST("/sessions", memoryHandler.CreateSession)
			sessions := mem.Group("/sessions/:sid")
			{
				sessions.GET("", memoryHandler.GetSession)
				sessions.DELETE("", memoryHandler.DeleteSession)
				sessions.PUT("/user", memoryHandler.SetCurrentUser)

				sessions.GET("/memories", memoryHandler.ListMemories)
				sessions.POST("/memories", memoryHandler.AddMemory)
				sessions.GET("/memories/:id", memoryHandler.GetMemory)
				sessions.PUT("/memories/:id", memoryHandler.UpdateMemory)
				sessions.DELETE("/memories/:id", memoryHandler.DeleteMemory)

				sessions.GET("/users", memoryHandler.ListUsers)
				sessions.POST("/users", memoryHandler.AddUser)
				sessions.DELETE("/users/:uid", memoryHandler.DeleteUser)
				sessions.DELETE("/users/:uid/memories", memoryHandler.ResetUser)
			}
		}
	}
}

// GetRouter returns the Gin router
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("address", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
