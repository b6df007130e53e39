package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/STPDevteam/awesome-server/pkg/engine"
	"github.com/STPDevteam/awesome-server/pkg/models"
	"github.com/STPDevteam/awesome-server/pkg/services"
)

// ExecuteTaskRequest is the body for POST /api/tasks/execute.
type ExecuteTaskRequest struct {
	Query          string                `json:"query" binding:"required"`
	ConversationID string                `json:"conversation_id,omitempty"`
	MaxIterations  int                   `json:"max_iterations,omitempty"`
	Workflow       []models.WorkflowStep `json:"workflow,omitempty"`
}

// executeTask creates a task, runs it, and streams the run's events to the
// client as SSE frames until the terminal event.
func (s *Server) executeTask(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity (X-User-ID header or user_id query)"})
		return
	}

	var req ExecuteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := uuid.New().String()
	task := &models.Task{
		ID:             taskID,
		UserID:         user,
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Workflow:       req.Workflow,
	}
	if err := s.deps.Tasks.CreateTask(c.Request.Context(), task); err != nil {
		s.logger.Error("Failed to create task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}

	run := s.deps.Executor.Execute(c.Request.Context(), engine.Request{
		TaskID:        taskID,
		UserID:        user,
		Query:         req.Query,
		MaxIterations: req.MaxIterations,
		Workflow:      req.Workflow,
	})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// The channel closes after the terminal event; a dropped client cancels
	// the request context, which the engine observes.
	for ev := range run.Events() {
		c.SSEvent(ev.Name, ev.Data)
		c.Writer.Flush()
	}
}

// getTask handles GET /api/tasks/:id.
func (s *Server) getTask(c *gin.Context) {
	task, err := s.deps.Tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// getTaskSteps handles GET /api/tasks/:id/steps.
func (s *Server) getTaskSteps(c *gin.Context) {
	steps, err := s.deps.Tasks.GetSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// getTaskResult handles GET /api/tasks/:id/result.
func (s *Server) getTaskResult(c *gin.Context) {
	result, err := s.deps.Tasks.GetFinalResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// listTasks handles GET /api/tasks for the calling user.
func (s *Server) listTasks(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	tasks, err := s.deps.Tasks.ListUserTasks(c.Request.Context(), user, limit)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// searchResults handles GET /api/results/search?q=...
func (s *Server) searchResults(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user identity"})
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing search query"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	results, err := s.deps.Tasks.SearchResults(c.Request.Context(), user, query, limit)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("Store operation failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
