// Package services implements the persistence layer over PostgreSQL:
// task lifecycle, per-step results, and final summaries.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/STPDevteam/awesome-server/pkg/engine"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// TaskStore persists tasks, per-step results, and final summaries.
// All writes are idempotent upserts so the engine can safely repeat them.
type TaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that TaskStore satisfies the engine's persistence port.
var _ engine.Sink = (*TaskStore)(nil)

// NewTaskStore creates a task store over an open database handle.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db, logger: slog.Default()}
}

// CreateTask inserts a new task in status "created" (unless the task
// carries another status already).
func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	status := task.Status
	if status == "" {
		status = models.TaskStatusCreated
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var workflow any
	if len(task.Workflow) > 0 {
		data, err := json.Marshal(task.Workflow)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}
		workflow = data
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, query, status, conversation_id, workflow)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		task.ID, task.UserID, task.Query, status, task.ConversationID, workflow,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask loads a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var (
		task           models.Task
		conversationID sql.NullString
		workflow       []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, query, status, conversation_id, workflow, created_at, updated_at
		FROM tasks WHERE id = $1`,
		taskID,
	).Scan(&task.ID, &task.UserID, &task.Query, &task.Status,
		&conversationID, &workflow, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	task.ConversationID = conversationID.String
	if len(workflow) > 0 {
		if err := json.Unmarshal(workflow, &task.Workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow for task %s: %w", taskID, err)
		}
	}
	return &task, nil
}

// ListUserTasks returns the user's tasks, newest first.
func (s *TaskStore) ListUserTasks(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, query, status, conversation_id, created_at, updated_at
		FROM tasks WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []models.Task
	for rows.Next() {
		var (
			task           models.Task
			conversationID sql.NullString
		)
		if err := rows.Scan(&task.ID, &task.UserID, &task.Query, &task.Status,
			&conversationID, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		task.ConversationID = conversationID.String
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus transitions the task's lifecycle state.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1`,
		taskID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return nil
}

// SaveStepRaw upserts the raw tool output for one step.
func (s *TaskStore) SaveStepRaw(ctx context.Context, taskID string, stepIndex int, meta engine.ToolMetadata, raw string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_steps (task_id, step_index, tool, service, raw_result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id, step_index) DO UPDATE SET
			tool = EXCLUDED.tool,
			service = EXCLUDED.service,
			raw_result = EXCLUDED.raw_result,
			updated_at = NOW()`,
		taskID, stepIndex, meta.Tool, meta.Service, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save raw step result: %w", err)
	}
	return nil
}

// SaveStepFormatted upserts the formatted output for one step. Raw and
// formatted writes may arrive in either order; each preserves the other.
func (s *TaskStore) SaveStepFormatted(ctx context.Context, taskID string, stepIndex int, meta engine.ToolMetadata, formatted string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_steps (task_id, step_index, tool, service, formatted_result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id, step_index) DO UPDATE SET
			tool = EXCLUDED.tool,
			service = EXCLUDED.service,
			formatted_result = EXCLUDED.formatted_result,
			updated_at = NOW()`,
		taskID, stepIndex, meta.Tool, meta.Service, formatted,
	)
	if err != nil {
		return fmt.Errorf("failed to save formatted step result: %w", err)
	}
	return nil
}

// SaveFinalResult upserts the run's final summary.
func (s *TaskStore) SaveFinalResult(ctx context.Context, taskID string, success bool, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_results (task_id, summary, success)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			success = EXCLUDED.success`,
		taskID, summary, success,
	)
	if err != nil {
		return fmt.Errorf("failed to save final result: %w", err)
	}
	return nil
}

// StepRecord is one persisted step row.
type StepRecord struct {
	TaskID          string    `json:"task_id"`
	StepIndex       int       `json:"step_index"`
	Tool            string    `json:"tool"`
	Service         string    `json:"service"`
	RawResult       string    `json:"raw_result,omitempty"`
	FormattedResult string    `json:"formatted_result,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GetSteps returns the persisted step rows for a task, ordered by index.
func (s *TaskStore) GetSteps(ctx context.Context, taskID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, step_index, COALESCE(tool, ''), COALESCE(service, ''),
		       COALESCE(raw_result, ''), COALESCE(formatted_result, ''), updated_at
		FROM task_steps WHERE task_id = $1
		ORDER BY step_index`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.TaskID, &rec.StepIndex, &rec.Tool, &rec.Service,
			&rec.RawResult, &rec.FormattedResult, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// TaskResult is the persisted final summary of a run.
type TaskResult struct {
	TaskID    string    `json:"task_id"`
	Summary   string    `json:"summary"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// GetFinalResult returns the persisted final summary for a task.
func (s *TaskStore) GetFinalResult(ctx context.Context, taskID string) (*TaskResult, error) {
	var result TaskResult
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, summary, success, created_at
		FROM task_results WHERE task_id = $1`,
		taskID,
	).Scan(&result.TaskID, &result.Summary, &result.Success, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: result for task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get final result: %w", err)
	}
	return &result, nil
}

// SearchResults runs a full-text search over final summaries for a user,
// backed by the GIN index on task_results.
func (s *TaskStore) SearchResults(ctx context.Context, userID, query string, limit int) ([]TaskResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.task_id, r.summary, r.success, r.created_at
		FROM task_results r
		JOIN tasks t ON t.id = r.task_id
		WHERE t.user_id = $1
		  AND to_tsvector('english', r.summary) @@ plainto_tsquery('english', $2)
		ORDER BY r.created_at DESC
		LIMIT $3`,
		userID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TaskResult
	for rows.Next() {
		var result TaskResult
		if err := rows.Scan(&result.TaskID, &result.Summary, &result.Success, &result.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
