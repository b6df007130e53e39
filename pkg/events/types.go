// Package events defines the ordered event stream a workflow run exposes
// to its caller.
//
// ════════════════════════════════════════════════════════════════
// Per-run event ordering
// ════════════════════════════════════════════════════════════════
//
// Events from a single run are totally ordered and single-producer.
// The run-level frame is:
//
//	execution_start
//	  (per-step sequences, workflow_adapted / task_observation between them)
//	(summary_chunk)+                  — final summary streaming
//	task_execution_complete           — OR task_execution_error
//
// The per-step frame on success:
//
//	step_executing
//	(step_result_chunk | summary_chunk)+   — formatting stream; summary_chunk
//	                                         when the step is the last one
//	step_raw_result
//	step_formatted_result
//	step_complete
//
// and on failure:
//
//	(step_executing)?                 — absent when the step fails before
//	                                    execution starts (tool listing or
//	                                    name resolution)
//	(mcp_connection_error)?           — when the error class matches
//	step_error
//
// The stream ends after task_execution_complete or task_execution_error.
// Unknown fields must be ignored by clients.
// ════════════════════════════════════════════════════════════════
package events

// Event names carried in the envelope. Names and required fields are stable.
const (
	EventExecutionStart      = "execution_start"
	EventStepExecuting       = "step_executing"
	EventStepRawResult       = "step_raw_result"
	EventStepFormattedResult = "step_formatted_result"
	EventStepComplete        = "step_complete"
	EventStepError           = "step_error"
	EventMCPConnectionError  = "mcp_connection_error"
	EventWorkflowAdapted     = "workflow_adapted"
	EventTaskObservation     = "task_observation"
	EventSummaryChunk        = "summary_chunk"
	EventStepResultChunk     = "step_result_chunk"
	EventTaskComplete        = "task_execution_complete"
	EventTaskError           = "task_execution_error"
)

// Event is the envelope consumed by callers: {name, data}.
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Name == EventTaskComplete || e.Name == EventTaskError
}
