package models

import "time"

// The literal MCP name denoting an LLM-only step (no tool subprocess).
const LLMService = "llm"

// StepStatus represents the execution state of a single workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusExecuting StepStatus = "executing"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// IsValid checks if the step status is a known value.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusExecuting, StepStatusCompleted, StepStatusFailed:
		return true
	default:
		return false
	}
}

// DefaultMaxRetries is the per-step retry budget. Total attempts = retries + 1.
const DefaultMaxRetries = 2

// WorkflowStep is one plan element bound to one tool on one MCP service
// (or the literal "llm"). StepIndex is 1-based and dense within a workflow.
type WorkflowStep struct {
	StepIndex      int            `json:"step"`
	MCPName        string         `json:"mcp"`
	Action         string         `json:"action"`
	InputArgs      map[string]any `json:"input,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Status         StepStatus     `json:"status"`
	Attempts       int            `json:"attempts"`
	MaxRetries     int            `json:"max_retries"`
	Result         string         `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// IsLLM reports whether the step is an LLM-only step.
func (s *WorkflowStep) IsLLM() bool {
	return s.MCPName == LLMService
}

// ComponentType classifies a task breakdown component.
type ComponentType string

const (
	ComponentDataCollection  ComponentType = "data_collection"
	ComponentDataProcessing  ComponentType = "data_processing"
	ComponentActionExecution ComponentType = "action_execution"
	ComponentAnalysis        ComponentType = "analysis"
	ComponentOutput          ComponentType = "output"
)

// IsValid checks if the component type is a known value.
func (t ComponentType) IsValid() bool {
	switch t {
	case ComponentDataCollection, ComponentDataProcessing,
		ComponentActionExecution, ComponentAnalysis, ComponentOutput:
		return true
	default:
		return false
	}
}

// TaskComponent is a typed sub-goal of the original query, derived before
// the execution loop starts. IsCompleted flips monotonically false → true.
type TaskComponent struct {
	ID                   string        `json:"id"`
	Type                 ComponentType `json:"type"`
	Description          string        `json:"description"`
	Target               string        `json:"target,omitempty"` // named target for data_collection fan-out
	IsCompleted          bool          `json:"is_completed"`
	CompletedStepIndices []int         `json:"completed_step_indices,omitempty"`
	Dependencies         []string      `json:"dependencies,omitempty"`
	RequiredData         []string      `json:"required_data,omitempty"`
	ProducedData         []string      `json:"produced_data,omitempty"`
}

// FailureStrategy decides what the engine does after a step exhausts retries.
type FailureStrategy string

const (
	StrategyRetry              FailureStrategy = "retry"
	StrategyAlternative        FailureStrategy = "alternative"
	StrategySkip               FailureStrategy = "skip"
	StrategyManualIntervention FailureStrategy = "manual_intervention"
)

// FailureRecord tracks failures per distinct tool across a run.
// AttemptCount accumulates across retries and across steps hitting the same tool.
type FailureRecord struct {
	StepIndex     int             `json:"step_index"`
	Tool          string          `json:"tool"`
	Error         string          `json:"error"`
	AttemptCount  int             `json:"attempt_count"`
	LastAttemptAt time.Time       `json:"last_attempt_at"`
	Strategy      FailureStrategy `json:"strategy"`
	MaxRetries    int             `json:"max_retries"`
}

// ExecutionRecord is one append-only history entry for an executed step.
type ExecutionRecord struct {
	StepIndex int       `json:"step_index"`
	Tool      string    `json:"tool"`
	Service   string    `json:"service"`
	Success   bool      `json:"success"`
	Summary   string    `json:"summary"` // short snippet of the raw result or error
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
}
