package engine

import (
	"encoding/json"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/models"
)

// updateBreakdown marks components complete after a successful step.
// A component completes iff the step's tool aligns with the component type,
// the component's named target (if any) is referenced by the step's args or
// reasoning, and the result carries meaningful data.
func updateBreakdown(state *ExecutionState, step *models.WorkflowStep, tool, raw string) {
	if !meaningfulData(raw) {
		return
	}
	for i := range state.Breakdown {
		comp := &state.Breakdown[i]
		if comp.IsCompleted {
			continue
		}
		if !toolAligns(tool, step, comp.Type) {
			continue
		}
		if comp.Type == models.ComponentDataCollection && comp.Target != "" &&
			!referencesTarget(step, comp.Target) {
			continue
		}
		comp.IsCompleted = true
		comp.CompletedStepIndices = append(comp.CompletedStepIndices, step.StepIndex)
	}
}

// toolAligns maps tool-name verbs onto component types. LLM steps align
// with the reasoning-flavored types.
func toolAligns(tool string, step *models.WorkflowStep, kind models.ComponentType) bool {
	name := strings.ToLower(tool)
	if step.IsLLM() {
		switch kind {
		case models.ComponentAnalysis, models.ComponentDataProcessing, models.ComponentOutput:
			return true
		}
		return false
	}

	switch kind {
	case models.ComponentDataCollection:
		return containsAny(name, "get", "fetch", "search", "list", "read", "query", "retrieve")
	case models.ComponentActionExecution:
		return containsAny(name, "post", "send", "publish", "create", "execute", "write", "update", "delete")
	case models.ComponentDataProcessing:
		return containsAny(name, "transform", "process", "convert", "parse", "format")
	case models.ComponentAnalysis:
		return containsAny(name, "analy", "compare", "summar", "evaluate")
	case models.ComponentOutput:
		return containsAny(name, "report", "output", "render", "display")
	}
	return false
}

// referencesTarget checks the step args and reasoning for the component's
// named target (case-insensitive, "@" stripped).
func referencesTarget(step *models.WorkflowStep, target string) bool {
	needle := strings.ToLower(strings.TrimPrefix(target, "@"))
	if needle == "" {
		return false
	}
	if args, err := json.Marshal(step.InputArgs); err == nil &&
		strings.Contains(strings.ToLower(string(args)), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(step.Reasoning), needle) ||
		strings.Contains(strings.ToLower(step.Action), needle)
}

// meaningfulData rejects empty shells and obvious error payloads.
func meaningfulData(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	switch trimmed {
	case "", "{}", "[]", "null", "none":
		return false
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "error") || strings.Contains(lower, `"error":`) {
		return false
	}
	return true
}
