package events

import "github.com/STPDevteam/awesome-server/pkg/models"

// ExecutionStartPayload is the data for execution_start.
// Always the first event of a run.
type ExecutionStartPayload struct {
	TaskID     string `json:"task_id"`
	AgentName  string `json:"agent_name"`
	Complexity string `json:"complexity"`
	StepBudget int    `json:"step_budget"`
	Timestamp  string `json:"timestamp"` // RFC3339Nano
}

// ToolDetails describes the resolved tool for a step_executing event.
type ToolDetails struct {
	Service        string         `json:"service"`
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
}

// StepExecutingPayload is the data for step_executing.
type StepExecutingPayload struct {
	Step        int         `json:"step"`
	AgentName   string      `json:"agent_name"`
	ToolDetails ToolDetails `json:"tool_details"`
	Progress    string      `json:"progress"` // "2/5"
}

// StepRawResultPayload is the data for step_raw_result.
// Result carries the raw tool output before LLM formatting.
type StepRawResultPayload struct {
	Step      int    `json:"step"`
	AgentName string `json:"agent_name"`
	Result    string `json:"result"`
}

// StepFormattedResultPayload is the data for step_formatted_result.
// FormattedResult is the concatenation of the streamed chunks and is the
// authoritative string used for persistence.
type StepFormattedResultPayload struct {
	Step            int    `json:"step"`
	AgentName       string `json:"agent_name"`
	FormattedResult string `json:"formatted_result"`
}

// StepCompletePayload is the data for step_complete.
type StepCompletePayload struct {
	Step      int    `json:"step"`
	AgentName string `json:"agent_name"`
	Tool      string `json:"tool"`
	Progress  string `json:"progress"`
}

// StepErrorPayload is the data for step_error.
type StepErrorPayload struct {
	Step      int    `json:"step"`
	AgentName string `json:"agent_name"`
	Tool      string `json:"tool"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
	Strategy  string `json:"strategy"`
}

// MCPConnectionErrorPayload is the data for mcp_connection_error.
// Type is "missing_auth" for credential failures; Missing lists the
// required credential keys that could not be filled.
type MCPConnectionErrorPayload struct {
	Service string   `json:"service"`
	Type    string   `json:"type"`
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

// WorkflowAdaptedPayload is the data for workflow_adapted.
// NewSteps is the replacement tail, renumbered densely.
type WorkflowAdaptedPayload struct {
	AgentName string                `json:"agent_name"`
	Reason    string                `json:"reason"`
	FromStep  int                   `json:"from_step"`
	NewSteps  []models.WorkflowStep `json:"new_steps"`
}

// TaskObservationPayload is the data for task_observation.
type TaskObservationPayload struct {
	Step               int     `json:"step"`
	AgentName          string  `json:"agent_name"`
	ShouldContinue     bool    `json:"should_continue"`
	ShouldAdapt        bool    `json:"should_adapt_workflow"`
	CompletionAnalysis string  `json:"completion_analysis,omitempty"`
	ConfidenceScore    float64 `json:"confidence_score,omitempty"`
}

// ChunkPayload is the data for summary_chunk and step_result_chunk.
// High-frequency; clients concatenate deltas for a live typing effect.
type ChunkPayload struct {
	Step      int    `json:"step,omitempty"` // 0 for the final summary
	AgentName string `json:"agent_name"`
	Delta     string `json:"delta"`
}

// TaskCompletePayload is the data for task_execution_complete.
// Always the last event of a successful stream.
type TaskCompletePayload struct {
	TaskID         string `json:"task_id"`
	AgentName      string `json:"agent_name"`
	Success        bool   `json:"success"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	Summary        string `json:"summary,omitempty"`
	Timestamp      string `json:"timestamp"` // RFC3339Nano
}

// TaskErrorPayload is the data for task_execution_error.
// Reason is "cancelled" for context cancellation; setup failures carry
// their own reason strings.
type TaskErrorPayload struct {
	TaskID    string `json:"task_id"`
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
}
