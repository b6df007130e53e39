package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// rawComponent is the wire shape of one breakdown component.
type rawComponent struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Target       string   `json:"target,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	RequiredData []string `json:"required_data,omitempty"`
	ProducedData []string `json:"produced_data,omitempty"`
}

// Decompose breaks the query into typed components before planning.
// Enumerated targets become one data_collection component each, which is
// what lets the observer later require N distinct successful collections.
// Parse failure degrades to the minimal single-component breakdown.
func (p *Planner) Decompose(ctx context.Context, query string) ([]models.TaskComponent, error) {
	resp, err := p.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: decomposeSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Task: %s", query)},
	})
	if err != nil {
		p.logger.Warn("Decomposition LLM call failed, using minimal breakdown", "error", err)
		return MinimalBreakdown(query), nil
	}

	var raw []rawComponent
	if perr := llm.UnmarshalArray(resp, &raw); perr != nil || len(raw) == 0 {
		p.logger.Warn("Decomposition response unparseable, using minimal breakdown")
		return MinimalBreakdown(query), nil
	}

	components := make([]models.TaskComponent, 0, len(raw))
	for i, rc := range raw {
		kind := models.ComponentType(strings.TrimSpace(rc.Type))
		if !kind.IsValid() {
			kind = models.ComponentDataCollection
		}
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			id = fmt.Sprintf("component-%d", i+1)
		}
		components = append(components, models.TaskComponent{
			ID:           id,
			Type:         kind,
			Description:  rc.Description,
			Target:       rc.Target,
			Dependencies: rc.Dependencies,
			RequiredData: rc.RequiredData,
			ProducedData: rc.ProducedData,
		})
	}
	return components, nil
}

// MinimalBreakdown is the deterministic single-component breakdown used for
// preloaded workflows and for decomposition failures.
func MinimalBreakdown(query string) []models.TaskComponent {
	return []models.TaskComponent{{
		ID:          "component-1",
		Type:        models.ComponentDataCollection,
		Description: query,
	}}
}

const decomposeSystemPrompt = `You decompose a task into typed components before planning.
Respond ONLY with a JSON array:
[{"id": "component-1", "type": "data_collection", "description": "...", "target": "", "dependencies": [], "required_data": [], "produced_data": []}]

Component types: data_collection, data_processing, action_execution, analysis, output.
Rules:
- When the task enumerates multiple targets (users, coins, repositories), emit one data_collection component PER target with "target" set to that target's name.
- "dependencies" lists component ids that must complete first.
- Keep the breakdown minimal; a trivial lookup is a single data_collection component.`
