// Package api exposes the orchestrator over HTTP: task execution as an SSE
// stream, task retrieval, credential management, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/STPDevteam/awesome-server/pkg/auth"
	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/database"
	"github.com/STPDevteam/awesome-server/pkg/engine"
	"github.com/STPDevteam/awesome-server/pkg/models"
	"github.com/STPDevteam/awesome-server/pkg/services"
	"github.com/STPDevteam/awesome-server/pkg/version"
)

// Executor starts workflow runs. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, req engine.Request) *engine.Run
}

// ConnectionManager is the slice of the MCP manager the API consumes for
// credential verification and health reporting.
type ConnectionManager interface {
	Connect(ctx context.Context, cfg config.ServiceConfig, userID string) error
	ListTools(ctx context.Context, serviceName, userID string) ([]models.ToolDescriptor, error)
	Disconnect(serviceName, userID string) error
	ListConnected(userID string) []string
}

// Deps bundles everything the server depends on.
type Deps struct {
	DB       *database.Client
	Tasks    *services.TaskStore
	Creds    *auth.Store
	Injector *auth.Injector
	Registry *config.ServiceRegistry
	Manager  ConnectionManager
	Executor Executor
}

// Server is the HTTP adapter over the engine and stores.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, logger: slog.Default()}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/tasks/execute", s.executeTask)
		api.GET("/tasks", s.listTasks)
		api.GET("/tasks/:id", s.getTask)
		api.GET("/tasks/:id/steps", s.getTaskSteps)
		api.GET("/tasks/:id/result", s.getTaskResult)
		api.GET("/results/search", s.searchResults)

		api.GET("/services", s.listServices)
		api.POST("/auth/:service", s.saveAuth)
		api.POST("/auth/:service/verify", s.verifyAuth)
		api.DELETE("/auth/:service", s.deleteAuth)
	}

	return r
}

// requestLogger logs one line per request via slog.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// health reports database reachability and pool stats. MCP servers and the
// LLM endpoint are deliberately excluded: an unhealthy external dependency
// must not get this process restarted.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.deps.DB.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.GitCommit,
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.GitCommit,
		"database": dbHealth,
	})
}

// userID extracts the caller identity from the X-User-ID header or the
// user_id query parameter.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return c.Query("user_id")
}
