// Package observer evaluates progress after every executed step and decides
// whether the run continues, stops, or replans its remaining workflow.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// Observation is the observer's verdict after one step.
type Observation struct {
	ShouldContinue      bool    `json:"should_continue"`
	ShouldAdaptWorkflow bool    `json:"should_adapt_workflow"`
	AdaptationReason    string  `json:"adaptation_reason,omitempty"`
	NewObjective        string  `json:"new_objective,omitempty"`
	CompletionAnalysis  string  `json:"completion_analysis"`
	ConfidenceScore     float64 `json:"confidence_score"`
}

// ObserveInput carries everything the observer sees about the run so far.
type ObserveInput struct {
	Query      string
	History    []models.ExecutionRecord
	DataKeys   []string
	Breakdown  []models.TaskComponent
	Complexity config.Complexity
	Completed  int
	Failed     int
}

// Observer wraps the observation LLM role.
type Observer struct {
	llm    llm.Client
	logger *slog.Logger
}

// New creates an observer over an LLM client.
func New(client llm.Client) *Observer {
	return &Observer{llm: client, logger: slog.Default()}
}

// Observe asks the LLM whether the run should continue. A failed call or
// unparseable response defaults to continuing without adaptation — the
// iteration budget bounds the damage of a stuck observer.
func (o *Observer) Observe(ctx context.Context, in ObserveInput) (*Observation, error) {
	resp, err := o.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: observeSystemPrompt},
		{Role: llm.RoleUser, Content: buildObservePrompt(in)},
	})
	if err != nil {
		o.logger.Warn("Observation LLM call failed, continuing", "error", err)
		return defaultObservation(), nil
	}

	var obs Observation
	if perr := llm.UnmarshalObject(resp, &obs); perr != nil {
		o.logger.Warn("Observation response unparseable, continuing")
		return defaultObservation(), nil
	}
	return &obs, nil
}

func defaultObservation() *Observation {
	return &Observation{
		ShouldContinue:     true,
		CompletionAnalysis: "observation unavailable, continuing",
	}
}

const observeSystemPrompt = `You observe a step-by-step task execution and decide whether it should continue.
Respond ONLY with a JSON object:
{"should_continue": bool, "should_adapt_workflow": bool, "adaptation_reason": "", "new_objective": "", "completion_analysis": "<what is done, what remains>", "confidence_score": 0.0}

Set should_adapt_workflow=true only when the remaining planned steps can no longer achieve the task (repeated tool failures, wrong direction); give adaptation_reason and new_objective in that case.`

// complexityGuidance conditions the stop criterion on the task's
// complexity class.
func complexityGuidance(c config.Complexity) string {
	switch c {
	case config.ComplexitySimple:
		return "This is a SIMPLE QUERY: if the latest step succeeded with meaningful data answering the question, set should_continue=false immediately. Do not gold-plate."
	case config.ComplexityComplex:
		return "This is a COMPLEX WORKFLOW: set should_continue=false only when EVERY component in the task breakdown is completed."
	default:
		return "This is a MEDIUM task: stop as soon as the principal objective is visible in the results."
	}
}

func buildObservePrompt(in ObserveInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", in.Query)
	fmt.Fprintf(&b, "Complexity: %s\n", in.Complexity)
	fmt.Fprintf(&b, "Steps completed: %d, failed: %d\n", in.Completed, in.Failed)

	if len(in.Breakdown) > 0 {
		b.WriteString("\nTask breakdown:\n")
		for _, c := range in.Breakdown {
			status := "pending"
			if c.IsCompleted {
				status = "completed"
			}
			fmt.Fprintf(&b, "- [%s] %s", status, c.Description)
			if c.Target != "" {
				fmt.Fprintf(&b, " (target: %s)", c.Target)
			}
			b.WriteString("\n")
		}
	}

	if len(in.History) > 0 {
		b.WriteString("\nExecution history:\n")
		for _, rec := range in.History {
			outcome := "ok"
			if !rec.Success {
				outcome = "FAILED: " + rec.Error
			}
			fmt.Fprintf(&b, "- step %d: %s on %s — %s — %s\n",
				rec.StepIndex, rec.Tool, rec.Service, outcome, rec.Summary)
		}
	}

	if len(in.DataKeys) > 0 {
		fmt.Fprintf(&b, "\nCollected data keys: %s\n", strings.Join(in.DataKeys, ", "))
	}

	b.WriteString("\nGuidance: " + complexityGuidance(in.Complexity) + "\n")
	if targets := enumeratedTargets(in.Breakdown); targets > 1 {
		fmt.Fprintf(&b,
			"The task enumerates %d targets: set should_continue=false only if %d distinct successful collections are visible in the history.\n",
			targets, targets)
	}
	return b.String()
}

// enumeratedTargets counts named data-collection targets in the breakdown.
func enumeratedTargets(breakdown []models.TaskComponent) int {
	n := 0
	for _, c := range breakdown {
		if c.Type == models.ComponentDataCollection && c.Target != "" {
			n++
		}
	}
	return n
}
