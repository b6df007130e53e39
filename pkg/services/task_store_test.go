package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/STPDevteam/awesome-server/pkg/engine"
	"github.com/STPDevteam/awesome-server/pkg/models"
	testdb "github.com/STPDevteam/awesome-server/test/database"
)

// TestTaskStoreIntegration exercises the full persistence lifecycle against
// a real PostgreSQL schema.
func TestTaskStoreIntegration(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := NewTaskStore(client.DB())
	ctx := context.Background()

	t.Run("full task lifecycle", func(t *testing.T) {
		task := &models.Task{
			ID:     uuid.New().String(),
			UserID: "alice",
			Query:  "Show me the current Bitcoin price",
			Workflow: []models.WorkflowStep{
				{StepIndex: 1, MCPName: "coingecko", Action: "get_price",
					InputArgs: map[string]any{"token": "bitcoin"},
					Status:    models.StepStatusPending, MaxRetries: 2},
			},
		}
		require.NoError(t, store.CreateTask(ctx, task))

		loaded, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCreated, loaded.Status)
		require.Len(t, loaded.Workflow, 1)
		assert.Equal(t, "get_price", loaded.Workflow[0].Action)

		// created → in_progress → completed
		require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress))
		meta := engine.ToolMetadata{Service: "coingecko", Tool: "get_price"}
		require.NoError(t, store.SaveStepRaw(ctx, task.ID, 1, meta, `{"usd": 65000}`))
		require.NoError(t, store.SaveStepFormatted(ctx, task.ID, 1, meta, "**BTC**: $65,000"))
		require.NoError(t, store.SaveFinalResult(ctx, task.ID, true, "Bitcoin is trading at $65,000."))
		require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted))

		loaded, err = store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, loaded.Status)

		steps, err := store.GetSteps(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, `{"usd": 65000}`, steps[0].RawResult)
		assert.Equal(t, "**BTC**: $65,000", steps[0].FormattedResult)
		assert.Equal(t, "get_price", steps[0].Tool)

		result, err := store.GetFinalResult(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Contains(t, result.Summary, "65,000")
	})

	t.Run("double save yields one row", func(t *testing.T) {
		task := &models.Task{ID: uuid.New().String(), UserID: "alice", Query: "q"}
		require.NoError(t, store.CreateTask(ctx, task))

		meta := engine.ToolMetadata{Service: "coingecko", Tool: "get_price"}
		require.NoError(t, store.SaveStepRaw(ctx, task.ID, 1, meta, "first"))
		require.NoError(t, store.SaveStepRaw(ctx, task.ID, 1, meta, "second"))

		steps, err := store.GetSteps(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "second", steps[0].RawResult)

		require.NoError(t, store.SaveFinalResult(ctx, task.ID, false, "partial"))
		require.NoError(t, store.SaveFinalResult(ctx, task.ID, true, "full"))
		result, err := store.GetFinalResult(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "full", result.Summary)
	})

	t.Run("raw and formatted writes preserve each other", func(t *testing.T) {
		task := &models.Task{ID: uuid.New().String(), UserID: "alice", Query: "q"}
		require.NoError(t, store.CreateTask(ctx, task))

		meta := engine.ToolMetadata{Service: "twitter", Tool: "get_user_tweets"}
		require.NoError(t, store.SaveStepFormatted(ctx, task.ID, 2, meta, "formatted first"))
		require.NoError(t, store.SaveStepRaw(ctx, task.ID, 2, meta, "raw second"))

		steps, err := store.GetSteps(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "raw second", steps[0].RawResult)
		assert.Equal(t, "formatted first", steps[0].FormattedResult)
	})

	t.Run("status update on missing task", func(t *testing.T) {
		err := store.UpdateTaskStatus(ctx, uuid.New().String(), models.TaskStatusCompleted)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := store.UpdateTaskStatus(ctx, uuid.New().String(), models.TaskStatus("exploded"))
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("list user tasks newest first", func(t *testing.T) {
		userID := uuid.New().String()
		first := &models.Task{ID: uuid.New().String(), UserID: userID, Query: "first"}
		second := &models.Task{ID: uuid.New().String(), UserID: userID, Query: "second"}
		require.NoError(t, store.CreateTask(ctx, first))
		require.NoError(t, store.CreateTask(ctx, second))

		tasks, err := store.ListUserTasks(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
	})

	t.Run("full-text search over summaries", func(t *testing.T) {
		userID := uuid.New().String()
		task := &models.Task{ID: uuid.New().String(), UserID: userID, Query: "eth price"}
		require.NoError(t, store.CreateTask(ctx, task))
		require.NoError(t, store.SaveFinalResult(ctx, task.ID, true, "Ethereum is trading sideways this week."))

		hits, err := store.SearchResults(ctx, userID, "ethereum trading", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, task.ID, hits[0].TaskID)

		misses, err := store.SearchResults(ctx, userID, "kubernetes", 10)
		require.NoError(t, err)
		assert.Empty(t, misses)
	})

	t.Run("get missing task", func(t *testing.T) {
		_, err := store.GetTask(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
