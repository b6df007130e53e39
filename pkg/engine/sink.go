package engine

import (
	"context"

	"github.com/STPDevteam/awesome-server/pkg/models"
)

// ToolMetadata identifies the tool behind a persisted step record.
type ToolMetadata struct {
	Service string `json:"service"`
	Tool    string `json:"tool"`
}

// Sink is the narrow persistence surface the engine consumes.
// Implementations must be idempotent on (task, step, content type).
// Sink failures are logged by the engine and never fail a run.
type Sink interface {
	SaveStepRaw(ctx context.Context, taskID string, stepIndex int, meta ToolMetadata, raw string) error
	SaveStepFormatted(ctx context.Context, taskID string, stepIndex int, meta ToolMetadata, formatted string) error
	SaveFinalResult(ctx context.Context, taskID string, success bool, summary string) error
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
}

// NopSink discards everything. Used when a run should not persist.
type NopSink struct{}

func (NopSink) SaveStepRaw(context.Context, string, int, ToolMetadata, string) error {
	return nil
}

func (NopSink) SaveStepFormatted(context.Context, string, int, ToolMetadata, string) error {
	return nil
}

func (NopSink) SaveFinalResult(context.Context, string, bool, string) error {
	return nil
}

func (NopSink) UpdateTaskStatus(context.Context, string, models.TaskStatus) error {
	return nil
}
