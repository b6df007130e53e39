// Package complexity classifies a query into one of three complexity
// classes that drive the step budget and the observer's stop criterion.
// Classification is pattern-first; the LLM is consulted only when no
// pattern matches.
package complexity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/llm"
)

// Assessment is the analyzer's verdict for one query.
type Assessment struct {
	Class            config.Complexity       `json:"complexity"`
	RecommendedSteps int                     `json:"recommended_steps"`
	ObservationDepth config.ObservationDepth `json:"observation_depth"`
	Reasoning        string                  `json:"reasoning,omitempty"`
}

// Step budgets per class.
const (
	SimpleStepBudget  = 1
	MediumStepBudget  = 3
	ComplexStepBudget = 6
)

var (
	simplePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(show me|get|fetch|what is|what's|current|latest|how much)\b`),
		regexp.MustCompile(`(?i)^(price|balance|status) of\b`),
	}
	mediumPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|aggregate|combine|summari[sz]e .* and)\b`),
		regexp.MustCompile(`(?i)\b(then|next|after that|followed by)\b`),
		regexp.MustCompile(`(?i)\b\w+(,| and) \w+( and \w+)?('s)? (tweets|prices|trends|repos)\b`),
		// Two or more enumerated @mentions is a fan-out: one collection
		// step per target, so the budget must cover the whole list.
		regexp.MustCompile(`@\w+(\s*(,|\band\b)\s*@\w+)+`),
	}
	complexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(workflow|pipeline|orchestrate|multi-step|end[- ]to[- ]end)\b`),
		regexp.MustCompile(`(?i)\b(monitor .* and (post|alert|notify)|collect .* analy[sz]e .* (report|publish))\b`),
	}
)

// longQueryThreshold marks very long queries as complex regardless of
// vocabulary.
const longQueryThreshold = 400

// Analyzer classifies queries.
type Analyzer struct {
	llm    llm.Client
	logger *slog.Logger
}

// New creates an analyzer over an LLM client.
func New(client llm.Client) *Analyzer {
	return &Analyzer{llm: client, logger: slog.Default()}
}

// Analyze classifies the query. workflowLen is the length of a preloaded
// workflow, or 0 when none exists; length hints outrank word patterns
// because an explicit plan is better evidence than phrasing.
func (a *Analyzer) Analyze(ctx context.Context, query string, workflowLen int) Assessment {
	if class, ok := classifyByPattern(query, workflowLen); ok {
		return assessmentFor(class, "pattern match")
	}

	resp, err := a.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: classifySystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Query: %s", query)},
	})
	if err != nil {
		a.logger.Warn("Complexity LLM call failed, defaulting to medium", "error", err)
		return assessmentFor(config.ComplexityMedium, "default: classification unavailable")
	}

	var verdict struct {
		Complexity string `json:"complexity"`
		Reasoning  string `json:"reasoning"`
	}
	if perr := llm.UnmarshalObject(resp, &verdict); perr != nil {
		a.logger.Warn("Complexity response unparseable, defaulting to medium")
		return assessmentFor(config.ComplexityMedium, "default: unparseable classification")
	}

	class := config.Complexity(strings.TrimSpace(verdict.Complexity))
	if !class.IsValid() {
		return assessmentFor(config.ComplexityMedium, "default: unknown class "+verdict.Complexity)
	}
	return assessmentFor(class, verdict.Reasoning)
}

// classifyByPattern applies the deterministic buckets.
func classifyByPattern(query string, workflowLen int) (config.Complexity, bool) {
	if workflowLen > 5 || len(query) > longQueryThreshold {
		return config.ComplexityComplex, true
	}
	for _, p := range complexPatterns {
		if p.MatchString(query) {
			return config.ComplexityComplex, true
		}
	}

	if workflowLen >= 3 {
		return config.ComplexityMedium, true
	}
	for _, p := range mediumPatterns {
		if p.MatchString(query) {
			return config.ComplexityMedium, true
		}
	}

	if workflowLen > 0 && workflowLen <= 2 {
		return config.ComplexitySimple, true
	}
	for _, p := range simplePatterns {
		if p.MatchString(query) {
			return config.ComplexitySimple, true
		}
	}

	return "", false
}

func assessmentFor(class config.Complexity, reasoning string) Assessment {
	switch class {
	case config.ComplexitySimple:
		return Assessment{
			Class:            class,
			RecommendedSteps: SimpleStepBudget,
			ObservationDepth: config.ObservationFast,
			Reasoning:        reasoning,
		}
	case config.ComplexityComplex:
		return Assessment{
			Class:            class,
			RecommendedSteps: ComplexStepBudget,
			ObservationDepth: config.ObservationThorough,
			Reasoning:        reasoning,
		}
	default:
		return Assessment{
			Class:            config.ComplexityMedium,
			RecommendedSteps: MediumStepBudget,
			ObservationDepth: config.ObservationBalanced,
			Reasoning:        reasoning,
		}
	}
}

const classifySystemPrompt = `You classify a task query into one of three complexity classes.
Respond ONLY with a JSON object: {"complexity": "simple_query" | "medium_task" | "complex_workflow", "reasoning": "<one sentence>"}

- simple_query: one lookup answers it.
- medium_task: a few dependent steps (compare, aggregate, sequence of two or three actions).
- complex_workflow: many coordinated steps, pipelines, monitoring plus action.`
