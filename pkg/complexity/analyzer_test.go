package complexity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/llm"
)

func TestAnalyze_SimpleQueryPattern(t *testing.T) {
	scripted := llm.NewScriptedClient()
	a := New(scripted)

	got := a.Analyze(context.Background(), "Show me current BTC price", 0)
	assert.Equal(t, config.ComplexitySimple, got.Class)
	assert.Equal(t, SimpleStepBudget, got.RecommendedSteps)
	assert.Equal(t, config.ObservationFast, got.ObservationDepth)
	assert.Zero(t, scripted.CallCount(), "pattern match must not hit the LLM")
}

func TestAnalyze_MediumPattern(t *testing.T) {
	a := New(llm.NewScriptedClient())

	got := a.Analyze(context.Background(), "Compare BTC and ETH trends then summarise", 0)
	assert.Equal(t, config.ComplexityMedium, got.Class)
	assert.Equal(t, MediumStepBudget, got.RecommendedSteps)
	assert.Equal(t, config.ObservationBalanced, got.ObservationDepth)
}

func TestAnalyze_MultiTargetMentionList(t *testing.T) {
	scripted := llm.NewScriptedClient()
	a := New(scripted)

	// Starts with a simple-query verb, but enumerates three targets:
	// the fan-out needs one collection step per target, so the mention
	// list must outrank the simple prefix.
	got := a.Analyze(context.Background(), "Get latest posts from @a, @b, @c", 0)
	assert.Equal(t, config.ComplexityMedium, got.Class)
	assert.GreaterOrEqual(t, got.RecommendedSteps, 3)
	assert.Zero(t, scripted.CallCount(), "pattern match must not hit the LLM")

	got = a.Analyze(context.Background(), "Fetch tweets from @alice and @bob", 0)
	assert.Equal(t, config.ComplexityMedium, got.Class)
}

func TestAnalyze_ComplexVocabulary(t *testing.T) {
	a := New(llm.NewScriptedClient())

	got := a.Analyze(context.Background(),
		"Build a pipeline that monitors mentions and posts a daily digest", 0)
	assert.Equal(t, config.ComplexityComplex, got.Class)
	assert.Equal(t, ComplexStepBudget, got.RecommendedSteps)
	assert.Equal(t, config.ObservationThorough, got.ObservationDepth)
}

func TestAnalyze_WorkflowLengthHints(t *testing.T) {
	a := New(llm.NewScriptedClient())

	assert.Equal(t, config.ComplexitySimple,
		a.Analyze(context.Background(), "anything at all", 2).Class)
	assert.Equal(t, config.ComplexityMedium,
		a.Analyze(context.Background(), "anything at all", 4).Class)
	assert.Equal(t, config.ComplexityComplex,
		a.Analyze(context.Background(), "anything at all", 7).Class)
}

func TestAnalyze_LLMFallback(t *testing.T) {
	scripted := llm.NewScriptedClient(
		`{"complexity": "complex_workflow", "reasoning": "many coordinated actions"}`)
	a := New(scripted)

	got := a.Analyze(context.Background(),
		"investigate why our community engagement dropped last quarter", 0)
	assert.Equal(t, config.ComplexityComplex, got.Class)
	assert.Equal(t, 1, scripted.CallCount())
}

func TestAnalyze_ParseFailure_DefaultsMedium(t *testing.T) {
	a := New(llm.NewScriptedClient("hard to say really"))

	got := a.Analyze(context.Background(),
		"investigate why our community engagement dropped last quarter", 0)
	assert.Equal(t, config.ComplexityMedium, got.Class)
	assert.Equal(t, MediumStepBudget, got.RecommendedSteps)
}

func TestAnalyze_UnknownClass_DefaultsMedium(t *testing.T) {
	a := New(llm.NewScriptedClient(`{"complexity": "mega_hard", "reasoning": "x"}`))

	got := a.Analyze(context.Background(),
		"investigate why our community engagement dropped last quarter", 0)
	assert.Equal(t, config.ComplexityMedium, got.Class)
}
