// Package models defines the shared data types for tasks, workflows, and
// MCP credentials. Plain structs with JSON tags — no behavior beyond
// enum validation.
package models

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsValid checks if the task status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is the unit of work submitted by a user. Created externally;
// the engine only reads the fields below and writes the terminal status.
type Task struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Query          string         `json:"query"`
	Status         TaskStatus     `json:"status"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Workflow       []WorkflowStep `json:"workflow,omitempty"` // preloaded plan, may be empty
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
