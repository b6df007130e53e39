package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/STPDevteam/awesome-server/pkg/auth"
	"github.com/STPDevteam/awesome-server/pkg/complexity"
	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/events"
	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/models"
	"github.com/STPDevteam/awesome-server/pkg/observer"
	"github.com/STPDevteam/awesome-server/pkg/planner"
)

// ---- fakes -------------------------------------------------------------

type fakeManager struct {
	mu        sync.Mutex
	tools     map[string][]models.ToolDescriptor
	call      func(service, tool string, args map[string]any) (string, error)
	connected map[string]bool
	calls     []string // "service.tool"
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		tools:     make(map[string][]models.ToolDescriptor),
		connected: make(map[string]bool),
	}
}

func (m *fakeManager) IsConnected(service, user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected[service+"/"+user]
}

func (m *fakeManager) Connect(_ context.Context, cfg config.ServiceConfig, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[cfg.Name+"/"+user] = true
	return nil
}

func (m *fakeManager) ListTools(_ context.Context, service, _ string) ([]models.ToolDescriptor, error) {
	return m.tools[service], nil
}

func (m *fakeManager) CallTool(ctx context.Context, service, _ string, tool string, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, service+"."+tool)
	m.mu.Unlock()
	return m.call(service, tool, args)
}

type fakeInjector struct{ err error }

func (f *fakeInjector) Build(_ context.Context, cfg config.ServiceConfig, _ string) (config.ServiceConfig, error) {
	if f.err != nil {
		return config.ServiceConfig{}, f.err
	}
	return cfg, nil
}

// fakeResolver resolves exact names, falls back to the first tool.
type fakeResolver struct{}

func (fakeResolver) ResolveToolName(_ context.Context, action string, _ map[string]any, tools []models.ToolDescriptor) (string, error) {
	for _, t := range tools {
		if t.Name == action {
			return t.Name, nil
		}
	}
	if len(tools) == 0 {
		return "", errors.New("no tools")
	}
	return tools[0].Name, nil
}

func (fakeResolver) AdaptParameters(_ context.Context, _ string, args map[string]any, _, _ string) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

type fakePlanner struct {
	breakdown []models.TaskComponent
	plan      []models.WorkflowStep
	planErr   error
	adapt     []models.WorkflowStep
	adaptErr  error
}

func (p *fakePlanner) Decompose(_ context.Context, query string) ([]models.TaskComponent, error) {
	if p.breakdown == nil {
		return planner.MinimalBreakdown(query), nil
	}
	return p.breakdown, nil
}

func (p *fakePlanner) Plan(context.Context, planner.PlanInput) ([]models.WorkflowStep, error) {
	return p.plan, p.planErr
}

func (p *fakePlanner) Adapt(context.Context, planner.AdaptInput) ([]models.WorkflowStep, error) {
	return p.adapt, p.adaptErr
}

type fakeObserver struct {
	mu     sync.Mutex
	script []*observer.Observation
	inputs []observer.ObserveInput
}

func (o *fakeObserver) Observe(_ context.Context, in observer.ObserveInput) (*observer.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputs = append(o.inputs, in)
	if len(o.script) == 0 {
		return &observer.Observation{ShouldContinue: true}, nil
	}
	obs := o.script[0]
	o.script = o.script[1:]
	return obs, nil
}

type fakeAnalyzer struct{ out complexity.Assessment }

func (a *fakeAnalyzer) Analyze(context.Context, string, int) complexity.Assessment {
	return a.out
}

type testClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

type recordingSink struct {
	mu        sync.Mutex
	statuses  []models.TaskStatus
	raw       map[int]string
	formatted map[int]string
	summary   string
	success   bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{raw: make(map[int]string), formatted: make(map[int]string)}
}

func (s *recordingSink) SaveStepRaw(_ context.Context, _ string, step int, _ ToolMetadata, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[step] = raw
	return nil
}

func (s *recordingSink) SaveStepFormatted(_ context.Context, _ string, step int, _ ToolMetadata, formatted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formatted[step] = formatted
	return nil
}

func (s *recordingSink) SaveFinalResult(_ context.Context, _ string, success bool, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	s.success = success
	return nil
}

func (s *recordingSink) UpdateTaskStatus(_ context.Context, _ string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

// ---- harness -----------------------------------------------------------

type harness struct {
	engine   *Engine
	manager  *fakeManager
	planner  *fakePlanner
	observer *fakeObserver
	sink     *recordingSink
	clock    *testClock
}

func simpleAssessment() complexity.Assessment {
	return complexity.Assessment{
		Class:            config.ComplexitySimple,
		RecommendedSteps: 1,
		ObservationDepth: config.ObservationFast,
	}
}

func mediumAssessment() complexity.Assessment {
	return complexity.Assessment{
		Class:            config.ComplexityMedium,
		RecommendedSteps: 3,
		ObservationDepth: config.ObservationBalanced,
	}
}

func newHarness(t *testing.T, assessment complexity.Assessment) *harness {
	t.Helper()

	registry := config.NewServiceRegistry(map[string]*config.ServiceConfig{
		"coingecko": {Name: "coingecko", Description: "market data",
			Transport:     config.TransportConfig{Type: config.TransportTypeStdio, Command: "npx"},
			DeclaredTools: []string{"get_price"}},
		"twitter": {Name: "twitter", Description: "tweets",
			Transport:     config.TransportConfig{Type: config.TransportTypeStdio, Command: "npx"},
			DeclaredTools: []string{"get_user_tweets", "post_tweet"}},
	})

	h := &harness{
		manager:  newFakeManager(),
		planner:  &fakePlanner{},
		observer: &fakeObserver{},
		sink:     newRecordingSink(),
		clock:    &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.manager.tools["coingecko"] = []models.ToolDescriptor{
		{Name: "get_price", Description: "price lookup", InputSchema: `{"type":"object"}`},
	}
	h.manager.tools["twitter"] = []models.ToolDescriptor{
		{Name: "get_user_tweets", Description: "tweets of a user", InputSchema: `{"type":"object"}`},
		{Name: "post_tweet", Description: "post", InputSchema: `{"type":"object"}`},
	}

	// Exhausted scripted clients make formatting and llm steps
	// deterministic: raw passthrough and fallback summaries.
	formatterLLM := llm.NewScriptedClient()

	h.engine = New(Services{
		Manager:   h.manager,
		Injector:  &fakeInjector{},
		Registry:  registry,
		Resolver:  fakeResolver{},
		Planner:   h.planner,
		Observer:  h.observer,
		Analyzer:  &fakeAnalyzer{out: assessment},
		Formatter: NewFormatter(formatterLLM),
		LLM:       llm.NewScriptedClient(),
		Sink:      h.sink,
		Clock:     h.clock,
	}, config.Defaults{MaxIterations: 10, MaxRetries: 2})
	return h
}

func collect(run *Run) ([]events.Event, Result) {
	var (
		mu  sync.Mutex
		evs []events.Event
	)
	done := make(chan struct{})
	go func() {
		for ev := range run.Events() {
			mu.Lock()
			evs = append(evs, ev)
			mu.Unlock()
		}
		close(done)
	}()
	result := run.Wait()
	<-done
	return evs, result
}

func eventNames(evs []events.Event) []string {
	names := make([]string, len(evs))
	for i, ev := range evs {
		names[i] = ev.Name
	}
	return names
}

// ---- scenarios ---------------------------------------------------------

func TestExecute_SimpleQuery_EventSequence(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.manager.call = func(_, _ string, _ map[string]any) (string, error) {
		return `{"usd": 65000}`, nil
	}
	h.observer.script = []*observer.Observation{
		{ShouldContinue: false, CompletionAnalysis: "price fetched", ConfidenceScore: 0.95},
	}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-1", UserID: "alice", Query: "Show current Bitcoin price",
		Workflow: []models.WorkflowStep{
			{MCPName: "coingecko", Action: "get_price", InputArgs: map[string]any{"token": "bitcoin"}},
		},
	})
	evs, result := collect(run)

	assert.Equal(t, []string{
		events.EventExecutionStart,
		events.EventStepExecuting,
		events.EventSummaryChunk, // single step is also the last step
		events.EventStepRawResult,
		events.EventStepFormattedResult,
		events.EventStepComplete,
		events.EventSummaryChunk, // final summary
		events.EventTaskComplete,
	}, eventNames(evs))

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Contains(t, result.Summary, "65000")

	raw := evs[3].Data.(events.StepRawResultPayload)
	assert.Equal(t, `{"usd": 65000}`, raw.Result)

	terminal := evs[len(evs)-1].Data.(events.TaskCompletePayload)
	assert.True(t, terminal.Success)
	assert.Equal(t, 1, terminal.CompletedCount)

	// Persistence saw both step records and the terminal status.
	assert.Equal(t, `{"usd": 65000}`, h.sink.raw[1])
	assert.Equal(t, []models.TaskStatus{
		models.TaskStatusInProgress, models.TaskStatusCompleted,
	}, h.sink.statuses)
}

func TestExecute_RetryThenSkip(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.manager.call = func(_, _ string, _ map[string]any) (string, error) {
		return "", errors.New("not connected")
	}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-2", UserID: "alice", Query: "Show current Bitcoin price",
		Workflow: []models.WorkflowStep{{MCPName: "coingecko", Action: "get_price"}},
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.Equal(t, 1, count(names, events.EventStepError))
	assert.Contains(t, names, events.EventMCPConnectionError)

	var stepErr events.StepErrorPayload
	for _, ev := range evs {
		if ev.Name == events.EventStepError {
			stepErr = ev.Data.(events.StepErrorPayload)
		}
	}
	assert.Equal(t, 3, stepErr.Attempts)
	assert.Equal(t, string(models.StrategySkip), stepErr.Strategy)

	assert.False(t, result.Success)
	assert.Zero(t, result.Completed)
	assert.Equal(t, 1, result.Failed)

	// Backoff: 1s after attempt 1, 2s after attempt 2.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.clock.sleeps)
	assert.Equal(t, []models.TaskStatus{
		models.TaskStatusInProgress, models.TaskStatusFailed,
	}, h.sink.statuses)
}

func TestExecute_MissingAuth(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.engine.svc.Injector = &fakeInjector{
		err: &auth.MissingAuthError{Service: "twitter", Missing: []string{"api_key"}},
	}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-3", UserID: "alice", Query: "post something",
		Workflow: []models.WorkflowStep{{MCPName: "twitter", Action: "post_tweet"}},
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.NotContains(t, names, events.EventStepExecuting)
	assert.Equal(t, []string{
		events.EventExecutionStart,
		events.EventMCPConnectionError,
		events.EventTaskError,
	}, names)

	connErr := evs[1].Data.(events.MCPConnectionErrorPayload)
	assert.Equal(t, "missing_auth", connErr.Type)
	assert.Equal(t, []string{"api_key"}, connErr.Missing)

	taskErr := evs[2].Data.(events.TaskErrorPayload)
	assert.Equal(t, "missing_auth", taskErr.Reason)
	assert.False(t, result.Success)
}

func TestExecute_MidRunAdaptation(t *testing.T) {
	h := newHarness(t, mediumAssessment())
	h.manager.call = func(_, tool string, _ map[string]any) (string, error) {
		if tool == "get_user_tweets" {
			return `{"tweets": ["long blob of recent activity"]}`, nil
		}
		return `{"posted": true}`, nil
	}
	h.observer.script = []*observer.Observation{
		{ShouldContinue: true, ShouldAdaptWorkflow: true,
			AdaptationReason: "summarise before posting",
			NewObjective:     "condense the tweets, then post"},
		{ShouldContinue: true},
		{ShouldContinue: false, CompletionAnalysis: "posted"},
	}
	h.planner.adapt = []models.WorkflowStep{
		{StepIndex: 2, MCPName: models.LLMService, Action: "summarise the tweets",
			Status: models.StepStatusPending, MaxRetries: models.DefaultMaxRetries},
		{StepIndex: 3, MCPName: "twitter", Action: "post_tweet",
			Status: models.StepStatusPending, MaxRetries: models.DefaultMaxRetries},
	}
	// LLM step client: one scripted response for the summarise step.
	h.engine.svc.LLM = llm.NewScriptedClient("Recent activity: one long blob.")

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-4", UserID: "alice", Query: "summarise @a's tweets and post it",
		Workflow: []models.WorkflowStep{
			{MCPName: "twitter", Action: "get_user_tweets", InputArgs: map[string]any{"user": "a"}},
			{MCPName: "twitter", Action: "post_tweet"},
		},
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.Contains(t, names, events.EventWorkflowAdapted)
	assert.Equal(t, 3, count(names, events.EventStepComplete))

	var adapted events.WorkflowAdaptedPayload
	for _, ev := range evs {
		if ev.Name == events.EventWorkflowAdapted {
			adapted = ev.Data.(events.WorkflowAdaptedPayload)
		}
	}
	assert.Equal(t, 2, adapted.FromStep)
	require.Len(t, adapted.NewSteps, 2)
	assert.Equal(t, "summarise before posting", adapted.Reason)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Completed)
}

func TestExecute_MultiTargetFanOut(t *testing.T) {
	h := newHarness(t, mediumAssessment())
	h.manager.call = func(_, _ string, args map[string]any) (string, error) {
		return fmt.Sprintf(`{"tweets": ["hello from %v"]}`, args["user"]), nil
	}
	h.planner.breakdown = []models.TaskComponent{
		{ID: "c1", Type: models.ComponentDataCollection, Description: "tweets of alice", Target: "alice"},
		{ID: "c2", Type: models.ComponentDataCollection, Description: "tweets of bob", Target: "bob"},
		{ID: "c3", Type: models.ComponentDataCollection, Description: "tweets of carol", Target: "carol"},
	}
	h.planner.plan = []models.WorkflowStep{
		{StepIndex: 1, MCPName: "twitter", Action: "get_user_tweets",
			InputArgs: map[string]any{"user": "alice"}, Status: models.StepStatusPending, MaxRetries: 2},
		{StepIndex: 2, MCPName: "twitter", Action: "get_user_tweets",
			InputArgs: map[string]any{"user": "bob"}, Status: models.StepStatusPending, MaxRetries: 2},
		{StepIndex: 3, MCPName: "twitter", Action: "get_user_tweets",
			InputArgs: map[string]any{"user": "carol"}, Status: models.StepStatusPending, MaxRetries: 2},
	}
	h.observer.script = []*observer.Observation{
		{ShouldContinue: true},
		{ShouldContinue: true},
		{ShouldContinue: false, CompletionAnalysis: "all three collected"},
	}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-5", UserID: "alice",
		Query: "Get latest posts from @alice, @bob and @carol",
	})
	evs, result := collect(run)

	assert.Equal(t, 3, count(eventNames(evs), events.EventStepComplete))
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Completed)

	// Each breakdown component completed via exactly its own step.
	last := h.observer.inputs[len(h.observer.inputs)-1]
	require.Len(t, last.Breakdown, 3)
	for i, comp := range last.Breakdown {
		assert.True(t, comp.IsCompleted, comp.ID)
		assert.Equal(t, []int{i + 1}, comp.CompletedStepIndices, comp.ID)
	}
}

func TestExecute_ActionResolvedToLiveTool(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.manager.call = func(_, tool string, _ map[string]any) (string, error) {
		return `{"ok": true}`, nil
	}
	h.observer.script = []*observer.Observation{{ShouldContinue: false}}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-6", UserID: "alice", Query: "price please",
		Workflow: []models.WorkflowStep{
			// Declared action doesn't exist on the connection.
			{MCPName: "coingecko", Action: "fetch_the_current_price"},
		},
	})
	_, result := collect(run)

	assert.True(t, result.Success)
	require.Len(t, h.manager.calls, 1)
	assert.Equal(t, "coingecko.get_price", h.manager.calls[0])
}

func TestExecute_StepExecutingCarriesExpectedOutput(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.manager.call = func(_, _ string, _ map[string]any) (string, error) {
		return `{"usd": 65000}`, nil
	}
	h.observer.script = []*observer.Observation{{ShouldContinue: false}}

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-10", UserID: "alice", Query: "price please",
		Workflow: []models.WorkflowStep{
			{MCPName: "coingecko", Action: "get_price",
				ExpectedOutput: "current BTC price in USD"},
		},
	})
	evs, _ := collect(run)

	var executing events.StepExecutingPayload
	for _, ev := range evs {
		if ev.Name == events.EventStepExecuting {
			executing = ev.Data.(events.StepExecutingPayload)
		}
	}
	assert.Equal(t, "current BTC price in USD", executing.ToolDetails.ExpectedOutput)
}

func TestExecute_ResolutionFailureHasNoExecutingFrame(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	// The connection advertises no tools, so resolution fails before the
	// step ever starts executing.
	h.manager.tools["coingecko"] = nil

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-11", UserID: "alice", Query: "price please",
		Workflow: []models.WorkflowStep{{MCPName: "coingecko", Action: "get_price"}},
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.NotContains(t, names, events.EventStepExecuting)
	assert.Equal(t, 1, count(names, events.EventStepError))
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Failed)
}

func TestExecute_Cancellation(t *testing.T) {
	h := newHarness(t, simpleAssessment())
	h.manager.connected["coingecko/alice"] = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := h.engine.Execute(ctx, Request{
		TaskID: "task-7", UserID: "alice", Query: "q",
		Workflow: []models.WorkflowStep{{MCPName: "coingecko", Action: "get_price"}},
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.Equal(t, events.EventTaskError, names[len(names)-1])
	taskErr := evs[len(evs)-1].Data.(events.TaskErrorPayload)
	assert.Equal(t, "cancelled", taskErr.Reason)
	assert.NotContains(t, names, events.EventStepComplete)
	assert.False(t, result.Success)
}

func TestExecute_IterationBudgetStopsRun(t *testing.T) {
	h := newHarness(t, simpleAssessment()) // budget 1
	h.manager.call = func(_, _ string, _ map[string]any) (string, error) {
		return `{"ok": true}`, nil
	}
	// Observer always says continue; the budget must stop the run anyway.

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-8", UserID: "alice", Query: "q",
		Workflow: []models.WorkflowStep{
			{MCPName: "coingecko", Action: "get_price"},
			{MCPName: "coingecko", Action: "get_price"},
		},
	})
	evs, result := collect(run)

	assert.Equal(t, 1, count(eventNames(evs), events.EventStepComplete))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Completed)
}

func TestExecute_PlanningFailure(t *testing.T) {
	h := newHarness(t, mediumAssessment())
	h.planner.planErr = errors.New("no services available for planning")

	run := h.engine.Execute(context.Background(), Request{
		TaskID: "task-9", UserID: "alice", Query: "q",
	})
	evs, result := collect(run)

	names := eventNames(evs)
	assert.Equal(t, events.EventTaskError, names[len(names)-1])
	taskErr := evs[len(evs)-1].Data.(events.TaskErrorPayload)
	assert.Equal(t, "planning_failed", taskErr.Reason)
	assert.False(t, result.Success)
}

func count(names []string, name string) int {
	n := 0
	for _, candidate := range names {
		if candidate == name {
			n++
		}
	}
	return n
}
