package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/STPDevteam/awesome-server/pkg/models"
)

// terminateFlag records why the main loop stopped early.
type terminateFlag int

const (
	terminateNone terminateFlag = iota
	// terminateObserver — the observer judged the task complete.
	terminateObserver
	// terminateStrategy — a skip/manual_intervention strategy fired.
	terminateStrategy
)

// ExecutionState is the per-run mutable state. Owned by exactly one run,
// never shared.
type ExecutionState struct {
	TaskID string
	UserID string
	Query  string

	Workflow  []models.WorkflowStep
	Breakdown []models.TaskComponent
	History   []models.ExecutionRecord

	// Failures accumulates per distinct tool across the whole run.
	Failures map[string]*models.FailureRecord

	// DataStore holds step_<n>_result keys plus last_result.
	DataStore map[string]string

	Completed int
	Failed    int

	terminate terminateFlag
}

func newExecutionState(taskID, userID, query string) *ExecutionState {
	return &ExecutionState{
		TaskID:    taskID,
		UserID:    userID,
		Query:     query,
		Failures:  make(map[string]*models.FailureRecord),
		DataStore: make(map[string]string),
	}
}

// SetStepResult records a step's raw result in the data store.
func (s *ExecutionState) SetStepResult(stepIndex int, raw string) {
	s.DataStore[fmt.Sprintf("step_%d_result", stepIndex)] = raw
	s.DataStore["last_result"] = raw
}

// LastResult returns the raw output of the most recent successful step.
func (s *ExecutionState) LastResult() string {
	return s.DataStore["last_result"]
}

// DataKeys returns the data store keys, sorted for stable prompts.
func (s *ExecutionState) DataKeys() []string {
	keys := make([]string, 0, len(s.DataStore))
	for k := range s.DataStore {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordFailure updates the per-tool failure record and returns it.
// AttemptCount accumulates across retries and across steps hitting the
// same tool, which is what the strategy thresholds key on.
func (s *ExecutionState) RecordFailure(step *models.WorkflowStep, tool, errMsg string, attempts int, now time.Time) *models.FailureRecord {
	rec, exists := s.Failures[tool]
	if !exists {
		rec = &models.FailureRecord{
			Tool:       tool,
			MaxRetries: step.MaxRetries,
		}
		s.Failures[tool] = rec
	}
	rec.StepIndex = step.StepIndex
	rec.Error = errMsg
	rec.AttemptCount += attempts
	rec.LastAttemptAt = now
	return rec
}
