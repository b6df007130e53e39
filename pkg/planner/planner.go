// Package planner turns a user query into an executable workflow: a typed
// task breakdown first, then a JSON array of steps bound to the available
// MCP services. Replanning after an observer request goes through the same
// machinery with adaptation context added to the prompt.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/mcp"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// ErrNoServices — planning is impossible without at least one service.
var ErrNoServices = errors.New("no services available for planning")

// ServiceInfo describes one connectable service for the planning prompt.
type ServiceInfo struct {
	Name        string
	Description string
	Tools       []string
}

// PlanInput carries everything the planner sees.
type PlanInput struct {
	Query     string
	Breakdown []models.TaskComponent
	Services  []ServiceInfo
	History   []models.ExecutionRecord
	DataKeys  []string

	// StartIndex is the 1-based index the first produced step receives.
	StartIndex int
}

// AdaptInput extends PlanInput with the observer's adaptation context.
type AdaptInput struct {
	PlanInput
	Reason       string
	NewObjective string
}

// Planner produces and adapts workflows via the LLM.
type Planner struct {
	llm    llm.Client
	logger *slog.Logger
}

// New creates a planner over an LLM client.
func New(client llm.Client) *Planner {
	return &Planner{llm: client, logger: slog.Default()}
}

// rawStep is the wire shape the LLM emits. Input tolerates both an object
// and a free-form string.
type rawStep struct {
	Step           int             `json:"step"`
	MCP            string          `json:"mcp"`
	Action         string          `json:"action"`
	Input          json.RawMessage `json:"input"`
	ExpectedOutput string          `json:"expected_output"`
	Reasoning      string          `json:"reasoning"`
}

// Plan produces the initial workflow. On parse failure a single fallback
// step against the first available service carries the original query, so
// a run always has something to execute.
func (p *Planner) Plan(ctx context.Context, in PlanInput) ([]models.WorkflowStep, error) {
	if len(in.Services) == 0 {
		return nil, ErrNoServices
	}

	resp, err := p.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: planSystemPrompt},
		{Role: llm.RoleUser, Content: buildPlanPrompt(in, "", "")},
	})
	if err != nil {
		p.logger.Warn("Planning LLM call failed, using fallback step", "error", err)
		return p.fallbackWorkflow(in), nil
	}

	steps, perr := p.parseSteps(resp, in)
	if perr != nil {
		p.logger.Warn("Planning response unparseable, using fallback step", "error", perr)
		return p.fallbackWorkflow(in), nil
	}
	return steps, nil
}

// Adapt replans the remaining workflow after the observer requested a
// change. The produced steps replace the unexecuted tail; numbering starts
// at in.StartIndex.
func (p *Planner) Adapt(ctx context.Context, in AdaptInput) ([]models.WorkflowStep, error) {
	if len(in.Services) == 0 {
		return nil, ErrNoServices
	}

	resp, err := p.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: planSystemPrompt},
		{Role: llm.RoleUser, Content: buildPlanPrompt(in.PlanInput, in.Reason, in.NewObjective)},
	})
	if err != nil {
		return nil, fmt.Errorf("adaptation planning failed: %w", err)
	}

	steps, perr := p.parseSteps(resp, in.PlanInput)
	if perr != nil {
		return nil, fmt.Errorf("adaptation response unparseable: %w", perr)
	}
	return steps, nil
}

// parseSteps extracts the step array, validates service names against the
// available list, and normalizes: dense 1-based numbering from StartIndex,
// pending status, default retry budget.
func (p *Planner) parseSteps(resp string, in PlanInput) ([]models.WorkflowStep, error) {
	var raw []rawStep
	if err := llm.UnmarshalArray(resp, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("planner produced an empty workflow")
	}

	available := make(map[string]bool, len(in.Services))
	for _, svc := range in.Services {
		available[svc.Name] = true
	}

	start := in.StartIndex
	if start < 1 {
		start = 1
	}

	steps := make([]models.WorkflowStep, 0, len(raw))
	for i, rs := range raw {
		if rs.Action == "" {
			return nil, fmt.Errorf("step %d has no action", i+1)
		}
		if rs.MCP != models.LLMService && !available[rs.MCP] {
			return nil, fmt.Errorf("step %d references unknown service %q", i+1, rs.MCP)
		}
		steps = append(steps, models.WorkflowStep{
			StepIndex:      start + i,
			MCPName:        rs.MCP,
			Action:         rs.Action,
			InputArgs:      decodeStepInput(rs.Input),
			ExpectedOutput: rs.ExpectedOutput,
			Reasoning:      rs.Reasoning,
			Status:         models.StepStatusPending,
			MaxRetries:     models.DefaultMaxRetries,
		})
	}
	return steps, nil
}

// decodeStepInput accepts an object, a JSON string, or nothing. A string
// goes through the same degradation cascade as raw tool input.
func decodeStepInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return mcp.ParseStepInput(s)
	}
	return nil
}

// fallbackWorkflow is the single-step plan used when the LLM response
// cannot be parsed.
func (p *Planner) fallbackWorkflow(in PlanInput) []models.WorkflowStep {
	start := in.StartIndex
	if start < 1 {
		start = 1
	}
	return []models.WorkflowStep{{
		StepIndex:  start,
		MCPName:    in.Services[0].Name,
		Action:     "search",
		InputArgs:  map[string]any{"query": in.Query},
		Reasoning:  "fallback step: planner response could not be parsed",
		Status:     models.StepStatusPending,
		MaxRetries: models.DefaultMaxRetries,
	}}
}

const planSystemPrompt = `You are a workflow planner for tool-using task execution.
Respond ONLY with a JSON array of steps:
[{"step": 1, "mcp": "<service name>", "action": "<tool name>", "input": {...}, "expected_output": "<what the step should produce>", "reasoning": "<why>"}]

Hard rules:
- "mcp" MUST be copied exactly from the available services list, or the literal "llm" for a pure reasoning step.
- "mcp" is the SERVICE name, "action" is the TOOL name. Never put a tool name in "mcp" and never put a service name in "action".
- Do NOT plan steps that re-collect data already present in the data store.
- When the request enumerates multiple targets (users, coins, repositories), emit one data-collection step PER target. Never a single "collect everything" step.
- Keep the plan minimal: only steps that move the task forward.`

func buildPlanPrompt(in PlanInput, adaptReason, newObjective string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", in.Query)

	if adaptReason != "" {
		fmt.Fprintf(&b, "\nThe current plan needs adaptation: %s\n", adaptReason)
		if newObjective != "" {
			fmt.Fprintf(&b, "New objective for the remaining steps: %s\n", newObjective)
		}
		b.WriteString("Plan ONLY the remaining steps; completed steps are listed in the history.\n")
	}

	if len(in.Breakdown) > 0 {
		b.WriteString("\nTask breakdown:\n")
		for _, c := range in.Breakdown {
			status := "pending"
			if c.IsCompleted {
				status = "completed"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s", status, c.Description, c.Type)
			if c.Target != "" {
				fmt.Fprintf(&b, ", target: %s", c.Target)
			}
			b.WriteString(")\n")
		}
	}

	b.WriteString("\nAvailable services:\n")
	for _, svc := range in.Services {
		fmt.Fprintf(&b, "- %s: %s", svc.Name, svc.Description)
		if len(svc.Tools) > 0 {
			fmt.Fprintf(&b, " (tools: %s)", strings.Join(svc.Tools, ", "))
		}
		b.WriteString("\n")
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
		fmt.Fprintf(&b, "\nData already collected (do not re-collect): %s\n",
			strings.Join(in.DataKeys, ", "))
	}

	fmt.Fprintf(&b, "\nNumber steps starting at %d. Respond with the JSON array only.\n",
		max(in.StartIndex, 1))
	return b.String()
}
