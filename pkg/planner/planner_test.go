package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

var testServices = []ServiceInfo{
	{Name: "coingecko", Description: "crypto market data",
		Tools: []string{"get_price", "get_market_chart", "search_coins"}},
	{Name: "twitter", Description: "tweet reading and posting",
		Tools: []string{"get_user_tweets", "search_tweets", "post_tweet"}},
}

func TestPlan_ParsesSteps(t *testing.T) {
	scripted := llm.NewScriptedClient(`Here is the plan:
` + "```json" + `
[
  {"step": 1, "mcp": "coingecko", "action": "get_price", "input": {"ids": "bitcoin", "vs_currency": "usd"}, "expected_output": "current BTC price in USD", "reasoning": "fetch current price"},
  {"step": 2, "mcp": "llm", "action": "summarize", "input": {"focus": "trend"}, "reasoning": "summarise for the user"}
]
` + "```")
	p := New(scripted)

	steps, err := p.Plan(context.Background(), PlanInput{
		Query:    "What is the BTC price?",
		Services: testServices,
	})
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, 1, steps[0].StepIndex)
	assert.Equal(t, "coingecko", steps[0].MCPName)
	assert.Equal(t, "get_price", steps[0].Action)
	assert.Equal(t, map[string]any{"ids": "bitcoin", "vs_currency": "usd"}, steps[0].InputArgs)
	assert.Equal(t, "current BTC price in USD", steps[0].ExpectedOutput)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, models.DefaultMaxRetries, steps[0].MaxRetries)

	assert.True(t, steps[1].IsLLM())
	assert.Equal(t, 2, steps[1].StepIndex)
}

func TestPlan_RenumbersDensely(t *testing.T) {
	// LLM numbering is ignored; produced numbering is dense from StartIndex.
	scripted := llm.NewScriptedClient(
		`[{"step": 7, "mcp": "coingecko", "action": "get_price", "input": {}, "reasoning": "x"},
		  {"step": 9, "mcp": "coingecko", "action": "search_coins", "input": {}, "reasoning": "y"}]`)
	p := New(scripted)

	steps, err := p.Plan(context.Background(), PlanInput{
		Query: "q", Services: testServices, StartIndex: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, steps[0].StepIndex)
	assert.Equal(t, 4, steps[1].StepIndex)
}

func TestPlan_UnknownService_Fallback(t *testing.T) {
	scripted := llm.NewScriptedClient(
		`[{"step": 1, "mcp": "made_up_service", "action": "do_thing", "input": {}, "reasoning": "x"}]`)
	p := New(scripted)

	steps, err := p.Plan(context.Background(), PlanInput{
		Query: "look up bitcoin", Services: testServices,
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "coingecko", steps[0].MCPName)
	assert.Equal(t, map[string]any{"query": "look up bitcoin"}, steps[0].InputArgs)
}

func TestPlan_GarbageResponse_Fallback(t *testing.T) {
	p := New(llm.NewScriptedClient("I don't know how to plan this."))

	steps, err := p.Plan(context.Background(), PlanInput{
		Query: "q", Services: testServices,
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, testServices[0].Name, steps[0].MCPName)
}

func TestPlan_NoServices(t *testing.T) {
	p := New(llm.NewScriptedClient())
	_, err := p.Plan(context.Background(), PlanInput{Query: "q"})
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestPlan_StringInputGoesThroughCascade(t *testing.T) {
	scripted := llm.NewScriptedClient(
		`[{"step": 1, "mcp": "twitter", "action": "search_tweets", "input": "query: bitcoin, count: 5", "reasoning": "x"}]`)
	p := New(scripted)

	steps, err := p.Plan(context.Background(), PlanInput{Query: "q", Services: testServices})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "bitcoin", "count": int64(5)}, steps[0].InputArgs)
}

func TestAdapt_ErrorsInsteadOfFallback(t *testing.T) {
	p := New(llm.NewScriptedClient("no json here"))

	_, err := p.Adapt(context.Background(), AdaptInput{
		PlanInput: PlanInput{Query: "q", Services: testServices, StartIndex: 4},
		Reason:    "tool keeps failing",
	})
	assert.Error(t, err)
}

func TestAdapt_NumbersFromStartIndex(t *testing.T) {
	scripted := llm.NewScriptedClient(
		`[{"step": 1, "mcp": "twitter", "action": "search_tweets", "input": {"query": "btc"}, "reasoning": "alternative source"}]`)
	p := New(scripted)

	steps, err := p.Adapt(context.Background(), AdaptInput{
		PlanInput:    PlanInput{Query: "q", Services: testServices, StartIndex: 4},
		Reason:       "coingecko unavailable",
		NewObjective: "use social data instead",
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 4, steps[0].StepIndex)

	// Adaptation context reaches the prompt.
	prompt := scripted.Calls[0][1].Content
	assert.Contains(t, prompt, "coingecko unavailable")
	assert.Contains(t, prompt, "use social data instead")
}

func TestDecompose_ParsesComponents(t *testing.T) {
	scripted := llm.NewScriptedClient(`[
		{"id": "component-1", "type": "data_collection", "description": "fetch tweets for userA", "target": "userA"},
		{"id": "component-2", "type": "data_collection", "description": "fetch tweets for userB", "target": "userB"},
		{"id": "component-3", "type": "analysis", "description": "compare sentiment", "dependencies": ["component-1", "component-2"]}
	]`)
	p := New(scripted)

	components, err := p.Decompose(context.Background(), "compare tweets of userA and userB")
	require.NoError(t, err)
	require.Len(t, components, 3)
	assert.Equal(t, "userA", components[0].Target)
	assert.Equal(t, models.ComponentAnalysis, components[2].Type)
	assert.Equal(t, []string{"component-1", "component-2"}, components[2].Dependencies)
	assert.False(t, components[0].IsCompleted)
}

func TestDecompose_GarbageResponse_MinimalBreakdown(t *testing.T) {
	p := New(llm.NewScriptedClient("???"))

	components, err := p.Decompose(context.Background(), "show BTC price")
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, models.ComponentDataCollection, components[0].Type)
	assert.Equal(t, "show BTC price", components[0].Description)
}

func TestPlanPrompt_CarriesConstraints(t *testing.T) {
	scripted := llm.NewScriptedClient(
		`[{"step": 1, "mcp": "coingecko", "action": "get_price", "input": {}, "reasoning": "x"}]`)
	p := New(scripted)

	_, err := p.Plan(context.Background(), PlanInput{
		Query:    "q",
		Services: testServices,
		DataKeys: []string{"step_1_result"},
		History: []models.ExecutionRecord{
			{StepIndex: 1, Tool: "get_price", Service: "coingecko", Success: true, Summary: "64k"},
		},
	})
	require.NoError(t, err)

	prompt := scripted.Calls[0][1].Content
	assert.Contains(t, prompt, "step_1_result")
	assert.Contains(t, prompt, "get_price")
}
