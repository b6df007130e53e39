// Package engine runs dynamic workflows: plan, execute tools over MCP,
// observe after every step, adapt or stop, and stream events to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/STPDevteam/awesome-server/pkg/auth"
	"github.com/STPDevteam/awesome-server/pkg/complexity"
	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/events"
	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/mcp"
	"github.com/STPDevteam/awesome-server/pkg/models"
	"github.com/STPDevteam/awesome-server/pkg/observer"
	"github.com/STPDevteam/awesome-server/pkg/planner"
	"github.com/STPDevteam/awesome-server/pkg/resolver"
)

// DefaultAgentName is the engine identity carried in event payloads.
const DefaultAgentName = "orchestrator"

// ConnectionManager is the slice of the MCP manager the engine consumes.
type ConnectionManager interface {
	IsConnected(serviceName, userID string) bool
	Connect(ctx context.Context, cfg config.ServiceConfig, userID string) error
	ListTools(ctx context.Context, serviceName, userID string) ([]models.ToolDescriptor, error)
	CallTool(ctx context.Context, serviceName, userID, toolName string, args map[string]any) (string, error)
}

// CredentialInjector derives per-user service configs with credentials
// filled in.
type CredentialInjector interface {
	Build(ctx context.Context, cfg config.ServiceConfig, userID string) (config.ServiceConfig, error)
}

// ToolResolver maps abstract actions onto live tools and adapts arguments.
type ToolResolver interface {
	ResolveToolName(ctx context.Context, action string, args map[string]any, tools []models.ToolDescriptor) (string, error)
	AdaptParameters(ctx context.Context, toolName string, args map[string]any, schema, prevResult string) map[string]any
}

// WorkflowPlanner produces and adapts workflows.
type WorkflowPlanner interface {
	Decompose(ctx context.Context, query string) ([]models.TaskComponent, error)
	Plan(ctx context.Context, in planner.PlanInput) ([]models.WorkflowStep, error)
	Adapt(ctx context.Context, in planner.AdaptInput) ([]models.WorkflowStep, error)
}

// RunObserver evaluates progress after every step.
type RunObserver interface {
	Observe(ctx context.Context, in observer.ObserveInput) (*observer.Observation, error)
}

// ComplexityAnalyzer classifies queries into complexity classes.
type ComplexityAnalyzer interface {
	Analyze(ctx context.Context, query string, workflowLen int) complexity.Assessment
}

// Services bundles everything the engine depends on. Process-wide state is
// injected here, never imported.
type Services struct {
	Manager   ConnectionManager
	Injector  CredentialInjector
	Registry  *config.ServiceRegistry
	Resolver  ToolResolver
	Planner   WorkflowPlanner
	Observer  RunObserver
	Analyzer  ComplexityAnalyzer
	Formatter *Formatter
	LLM       llm.Client
	Sink      Sink
	Clock     Clock
}

// Request describes one execution.
type Request struct {
	TaskID string
	UserID string
	Query  string

	// MaxIterations caps the step budget; 0 uses the configured default.
	MaxIterations int

	// Workflow is an optional preloaded plan. When empty the planner
	// derives one from the query.
	Workflow []models.WorkflowStep
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAgentName overrides the engine identity in event payloads.
func WithAgentName(name string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.agent = name
		}
	}
}

// Engine executes workflows. Safe for concurrent Execute calls; each run
// owns its own ExecutionState.
type Engine struct {
	svc      Services
	defaults config.Defaults
	agent    string
	logger   *slog.Logger
}

// New creates an engine. Nil Sink and Clock get safe defaults.
func New(svc Services, defaults config.Defaults, opts ...EngineOption) *Engine {
	if svc.Sink == nil {
		svc.Sink = NopSink{}
	}
	if svc.Clock == nil {
		svc.Clock = RealClock()
	}
	e := &Engine{
		svc:      svc,
		defaults: defaults,
		agent:    DefaultAgentName,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts a run and returns immediately. The caller consumes
// run.Events() until close; run.Wait() returns the terminal result.
func (e *Engine) Execute(ctx context.Context, req Request) *Run {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	run := newRun()
	go e.runTask(ctx, req, run)
	return run
}

func (e *Engine) runTask(ctx context.Context, req Request, run *Run) {
	state := newExecutionState(req.TaskID, req.UserID, req.Query)
	logger := e.logger.With("task_id", req.TaskID, "user", req.UserID)

	if err := e.svc.Sink.UpdateTaskStatus(ctx, req.TaskID, models.TaskStatusInProgress); err != nil {
		logger.Warn("Failed to mark task in progress", "error", err)
	}

	assessment := e.svc.Analyzer.Analyze(ctx, req.Query, len(req.Workflow))
	callerCap := req.MaxIterations
	if callerCap <= 0 {
		callerCap = e.defaults.MaxIterations
	}
	maxIterations := min(callerCap, assessment.RecommendedSteps)

	run.stream.Emit(events.EventExecutionStart, events.ExecutionStartPayload{
		TaskID:     req.TaskID,
		AgentName:  e.agent,
		Complexity: string(assessment.Class),
		StepBudget: maxIterations,
		Timestamp:  e.svc.Clock.Now().UTC().Format(time.RFC3339Nano),
	})

	if len(req.Workflow) > 0 {
		state.Workflow = normalizeWorkflow(req.Workflow)
		state.Breakdown = planner.MinimalBreakdown(req.Query)
	} else {
		breakdown, err := e.svc.Planner.Decompose(ctx, req.Query)
		if err != nil || len(breakdown) == 0 {
			breakdown = planner.MinimalBreakdown(req.Query)
		}
		state.Breakdown = breakdown

		steps, err := e.svc.Planner.Plan(ctx, planner.PlanInput{
			Query:      req.Query,
			Breakdown:  breakdown,
			Services:   e.availableServices(),
			StartIndex: 1,
		})
		if err != nil {
			e.finishError(ctx, run, state, "planning_failed", err)
			return
		}
		state.Workflow = steps
	}

	if err := e.ensureConnections(ctx, state, run); err != nil {
		reason := "connection_failed"
		var missingErr *auth.MissingAuthError
		if errors.As(err, &missingErr) {
			reason = "missing_auth"
		} else if errors.Is(err, config.ErrServiceNotFound) {
			reason = "configuration_error"
		}
		e.finishError(ctx, run, state, reason, err)
		return
	}

	idx := 0
	for iteration := 0; idx < len(state.Workflow) && iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			e.finishCancelled(ctx, run, state)
			return
		}

		step := &state.Workflow[idx]
		e.executeStep(ctx, state, run, step, idx)

		if ctx.Err() != nil {
			e.finishCancelled(ctx, run, state)
			return
		}
		if state.terminate == terminateStrategy {
			break
		}

		obs, err := e.svc.Observer.Observe(ctx, observer.ObserveInput{
			Query:      state.Query,
			History:    state.History,
			DataKeys:   state.DataKeys(),
			Breakdown:  state.Breakdown,
			Complexity: assessment.Class,
			Completed:  state.Completed,
			Failed:     state.Failed,
		})
		if err != nil {
			logger.Warn("Observation failed, continuing", "error", err)
			obs = &observer.Observation{ShouldContinue: true}
		}

		if !obs.ShouldContinue {
			state.terminate = terminateObserver
			break
		}

		run.stream.Emit(events.EventTaskObservation, events.TaskObservationPayload{
			Step:               step.StepIndex,
			AgentName:          e.agent,
			ShouldContinue:     obs.ShouldContinue,
			ShouldAdapt:        obs.ShouldAdaptWorkflow,
			CompletionAnalysis: obs.CompletionAnalysis,
			ConfidenceScore:    obs.ConfidenceScore,
		})

		if obs.ShouldAdaptWorkflow {
			e.adaptWorkflow(ctx, state, run, idx, obs)
		}

		idx++
	}

	if ctx.Err() != nil {
		e.finishCancelled(ctx, run, state)
		return
	}
	e.finishComplete(ctx, run, state)
}

// adaptWorkflow replaces the unexecuted tail with a replanned one.
// Adaptation failure is non-fatal: the existing tail keeps executing.
func (e *Engine) adaptWorkflow(ctx context.Context, state *ExecutionState, run *Run, idx int, obs *observer.Observation) {
	fromStep := state.Workflow[idx].StepIndex + 1
	newSteps, err := e.svc.Planner.Adapt(ctx, planner.AdaptInput{
		PlanInput: planner.PlanInput{
			Query:      state.Query,
			Breakdown:  state.Breakdown,
			Services:   e.availableServices(),
			History:    state.History,
			DataKeys:   state.DataKeys(),
			StartIndex: fromStep,
		},
		Reason:       obs.AdaptationReason,
		NewObjective: obs.NewObjective,
	})
	if err != nil || len(newSteps) == 0 {
		e.logger.Warn("Workflow adaptation failed, keeping current plan",
			"task_id", state.TaskID, "error", err)
		return
	}

	state.Workflow = append(state.Workflow[:idx+1], newSteps...)
	run.stream.Emit(events.EventWorkflowAdapted, events.WorkflowAdaptedPayload{
		AgentName: e.agent,
		Reason:    obs.AdaptationReason,
		FromStep:  fromStep,
		NewSteps:  newSteps,
	})
}

// executeStep runs one step end to end: resolve, adapt args, call with
// retry, stream formatting, account the outcome.
func (e *Engine) executeStep(ctx context.Context, state *ExecutionState, run *Run, step *models.WorkflowStep, idx int) {
	emit := run.stream.Emit
	progress := fmt.Sprintf("%d/%d", idx+1, len(state.Workflow))

	// The formatting stream of the last step doubles as the summary stream.
	chunkEvent := events.EventStepResultChunk
	if idx == len(state.Workflow)-1 {
		chunkEvent = events.EventSummaryChunk
	}

	step.Status = models.StepStatusExecuting

	service := step.MCPName
	toolName := step.Action
	args := step.InputArgs
	var schema string

	if !step.IsLLM() {
		tools, err := e.svc.Manager.ListTools(ctx, service, state.UserID)
		if err != nil {
			e.failStep(ctx, state, run, step, toolName, err, 1)
			return
		}
		toolName, err = e.svc.Resolver.ResolveToolName(ctx, step.Action, args, tools)
		if err != nil {
			e.failStep(ctx, state, run, step, step.Action, err, 1)
			return
		}
		for _, t := range tools {
			if t.Name == toolName {
				schema = t.InputSchema
			}
		}

		if len(args) == 0 {
			if seeded := resolver.SeedInput(step.Action, state.LastResult()); seeded != nil {
				args = seeded
			}
		}
		args = e.svc.Resolver.AdaptParameters(ctx, toolName, args, schema, state.LastResult())
		step.InputArgs = args
	}

	emit(events.EventStepExecuting, events.StepExecutingPayload{
		Step:      step.StepIndex,
		AgentName: e.agent,
		ToolDetails: events.ToolDetails{
			Service:        service,
			Tool:           toolName,
			Args:           args,
			ExpectedOutput: step.ExpectedOutput,
			Reasoning:      step.Reasoning,
		},
		Progress: progress,
	})

	onChunk := func(delta string) {
		emit(chunkEvent, events.ChunkPayload{
			Step:      step.StepIndex,
			AgentName: e.agent,
			Delta:     delta,
		})
	}

	var raw string
	var callErr error
	attempts := 0
	for attempt := 1; attempt <= step.MaxRetries+1; attempt++ {
		attempts = attempt
		if step.IsLLM() {
			raw, callErr = e.executeLLMStep(ctx, state, step, onChunk)
		} else {
			raw, callErr = e.svc.Manager.CallTool(ctx, service, state.UserID, toolName, args)
		}
		step.Attempts = attempts
		if callErr == nil || ctx.Err() != nil {
			break
		}
		e.logger.Debug("Step attempt failed",
			"task_id", state.TaskID, "step", step.StepIndex,
			"attempt", attempt, "error", callErr)
		if attempt <= step.MaxRetries {
			e.svc.Clock.Sleep(ctx, time.Duration(attempt)*time.Second)
		}
	}

	if ctx.Err() != nil {
		return // caller emits the cancellation terminal
	}
	if callErr != nil {
		e.failStep(ctx, state, run, step, toolName, callErr, attempts)
		return
	}

	// LLM steps stream their own output; it is already user-facing.
	formatted := raw
	if !step.IsLLM() {
		formatted = e.svc.Formatter.FormatStream(ctx, raw, onChunk)
	}

	emit(events.EventStepRawResult, events.StepRawResultPayload{
		Step: step.StepIndex, AgentName: e.agent, Result: raw,
	})
	emit(events.EventStepFormattedResult, events.StepFormattedResultPayload{
		Step: step.StepIndex, AgentName: e.agent, FormattedResult: formatted,
	})
	emit(events.EventStepComplete, events.StepCompletePayload{
		Step: step.StepIndex, AgentName: e.agent, Tool: toolName, Progress: progress,
	})

	state.SetStepResult(step.StepIndex, raw)
	step.Status = models.StepStatusCompleted
	step.Result = raw
	state.Completed++
	state.History = append(state.History, models.ExecutionRecord{
		StepIndex: step.StepIndex,
		Tool:      toolName,
		Service:   service,
		Success:   true,
		Summary:   summarySnippet(raw),
		Attempts:  attempts,
		At:        e.svc.Clock.Now(),
	})

	meta := ToolMetadata{Service: service, Tool: toolName}
	if err := e.svc.Sink.SaveStepRaw(ctx, state.TaskID, step.StepIndex, meta, raw); err != nil {
		e.logger.Warn("Failed to persist raw step result", "task_id", state.TaskID, "step", step.StepIndex, "error", err)
	}
	if err := e.svc.Sink.SaveStepFormatted(ctx, state.TaskID, step.StepIndex, meta, formatted); err != nil {
		e.logger.Warn("Failed to persist formatted step result", "task_id", state.TaskID, "step", step.StepIndex, "error", err)
	}

	updateBreakdown(state, step, toolName, raw)
}

// executeLLMStep runs an "llm" step: a pure reasoning/summarisation call
// grounded in the data collected so far, streamed as it generates.
func (e *Engine) executeLLMStep(ctx context.Context, state *ExecutionState, step *models.WorkflowStep, onChunk func(string)) (string, error) {
	var prompt string
	if last := state.LastResult(); last != "" {
		prompt = fmt.Sprintf("Task: %s\n\nInstruction: %s\n\nData from previous steps:\n%s",
			state.Query, step.Action, last)
	} else {
		prompt = fmt.Sprintf("Task: %s\n\nInstruction: %s", state.Query, step.Action)
	}
	if len(step.InputArgs) > 0 {
		prompt += fmt.Sprintf("\n\nParameters: %v", step.InputArgs)
	}

	return e.svc.LLM.Stream(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Carry out the instruction using only the provided data. Respond in clean Markdown."},
		{Role: llm.RoleUser, Content: prompt},
	}, onChunk)
}

// failStep accounts a step failure: failure record, strategy, events.
func (e *Engine) failStep(ctx context.Context, state *ExecutionState, run *Run, step *models.WorkflowStep, toolName string, callErr error, attempts int) {
	errMsg := callErr.Error()
	class := mcp.Classify(callErr)

	rec := state.RecordFailure(step, toolName, errMsg, attempts, e.svc.Clock.Now())
	strategy := SelectStrategy(class, errMsg, rec.AttemptCount, step.MaxRetries)
	rec.Strategy = strategy

	step.Status = models.StepStatusFailed
	step.Error = errMsg
	state.Failed++
	state.History = append(state.History, models.ExecutionRecord{
		StepIndex: step.StepIndex,
		Tool:      toolName,
		Service:   step.MCPName,
		Success:   false,
		Summary:   summarySnippet(errMsg),
		Error:     errMsg,
		Attempts:  attempts,
		At:        e.svc.Clock.Now(),
	})

	if class == mcp.ClassConnection {
		run.stream.Emit(events.EventMCPConnectionError, events.MCPConnectionErrorPayload{
			Service: step.MCPName,
			Type:    "connection",
			Error:   errMsg,
		})
	}
	run.stream.Emit(events.EventStepError, events.StepErrorPayload{
		Step:      step.StepIndex,
		AgentName: e.agent,
		Tool:      toolName,
		Error:     errMsg,
		Attempts:  attempts,
		Strategy:  string(strategy),
	})

	e.logger.Warn("Step failed",
		"task_id", state.TaskID, "step", step.StepIndex,
		"tool", toolName, "class", class, "strategy", strategy, "attempts", attempts)

	if terminatesRun(strategy, rec.AttemptCount) {
		state.terminate = terminateStrategy
	}
}

// ensureConnections connects every distinct non-LLM service the workflow
// references, with credentials injected per user.
func (e *Engine) ensureConnections(ctx context.Context, state *ExecutionState, run *Run) error {
	seen := make(map[string]bool)
	for _, step := range state.Workflow {
		name := step.MCPName
		if name == models.LLMService || seen[name] {
			continue
		}
		seen[name] = true

		if e.svc.Manager.IsConnected(name, state.UserID) {
			continue
		}

		cfg, err := e.svc.Registry.Get(name)
		if err != nil {
			run.stream.Emit(events.EventMCPConnectionError, events.MCPConnectionErrorPayload{
				Service: name, Type: "unknown_service", Error: err.Error(),
			})
			return err
		}

		derived, err := e.svc.Injector.Build(ctx, *cfg, state.UserID)
		if err != nil {
			payload := events.MCPConnectionErrorPayload{
				Service: name, Type: "auth_error", Error: err.Error(),
			}
			var missingErr *auth.MissingAuthError
			if errors.As(err, &missingErr) {
				payload.Type = "missing_auth"
				payload.Missing = missingErr.Missing
			}
			run.stream.Emit(events.EventMCPConnectionError, payload)
			return err
		}

		if err := e.svc.Manager.Connect(ctx, derived, state.UserID); err != nil {
			run.stream.Emit(events.EventMCPConnectionError, events.MCPConnectionErrorPayload{
				Service: name, Type: "connection_failed", Error: err.Error(),
			})
			return err
		}
	}
	return nil
}

// finishComplete streams the final summary and emits the terminal event.
func (e *Engine) finishComplete(ctx context.Context, run *Run, state *ExecutionState) {
	success := state.Completed >= 1 &&
		(state.terminate == terminateNone || state.terminate == terminateObserver)

	summary := e.svc.Formatter.SummarizeStream(ctx, state, func(delta string) {
		run.stream.Emit(events.EventSummaryChunk, events.ChunkPayload{
			AgentName: e.agent, Delta: delta,
		})
	})

	persistCtx := context.WithoutCancel(ctx)
	if err := e.svc.Sink.SaveFinalResult(persistCtx, state.TaskID, success, summary); err != nil {
		e.logger.Warn("Failed to persist final result", "task_id", state.TaskID, "error", err)
	}
	status := models.TaskStatusCompleted
	if !success {
		status = models.TaskStatusFailed
	}
	if err := e.svc.Sink.UpdateTaskStatus(persistCtx, state.TaskID, status); err != nil {
		e.logger.Warn("Failed to update task status", "task_id", state.TaskID, "error", err)
	}

	run.stream.Emit(events.EventTaskComplete, events.TaskCompletePayload{
		TaskID:         state.TaskID,
		AgentName:      e.agent,
		Success:        success,
		CompletedCount: state.Completed,
		FailedCount:    state.Failed,
		Summary:        summary,
		Timestamp:      e.svc.Clock.Now().UTC().Format(time.RFC3339Nano),
	})
	run.finish(Result{
		Success:   success,
		Completed: state.Completed,
		Failed:    state.Failed,
		Summary:   summary,
	})
}

// finishCancelled emits the cancellation terminal.
func (e *Engine) finishCancelled(ctx context.Context, run *Run, state *ExecutionState) {
	persistCtx := context.WithoutCancel(ctx)
	if err := e.svc.Sink.UpdateTaskStatus(persistCtx, state.TaskID, models.TaskStatusFailed); err != nil {
		e.logger.Warn("Failed to update task status", "task_id", state.TaskID, "error", err)
	}
	run.stream.Emit(events.EventTaskError, events.TaskErrorPayload{
		TaskID:    state.TaskID,
		AgentName: e.agent,
		Reason:    "cancelled",
	})
	run.finish(Result{Success: false, Completed: state.Completed, Failed: state.Failed})
}

// finishError emits the terminal for a setup failure (planning, config,
// auth, connection).
func (e *Engine) finishError(ctx context.Context, run *Run, state *ExecutionState, reason string, err error) {
	persistCtx := context.WithoutCancel(ctx)
	if serr := e.svc.Sink.UpdateTaskStatus(persistCtx, state.TaskID, models.TaskStatusFailed); serr != nil {
		e.logger.Warn("Failed to update task status", "task_id", state.TaskID, "error", serr)
	}
	run.stream.Emit(events.EventTaskError, events.TaskErrorPayload{
		TaskID:    state.TaskID,
		AgentName: e.agent,
		Reason:    reason,
		Error:     err.Error(),
	})
	run.finish(Result{Success: false, Completed: state.Completed, Failed: state.Failed})
}

// availableServices converts the registry catalog for planning prompts,
// sorted by name for stable output.
func (e *Engine) availableServices() []planner.ServiceInfo {
	all := e.svc.Registry.GetAll()
	infos := make([]planner.ServiceInfo, 0, len(all))
	for _, cfg := range all {
		infos = append(infos, planner.ServiceInfo{
			Name:        cfg.Name,
			Description: cfg.Description,
			Tools:       cfg.DeclaredTools,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// normalizeWorkflow prepares a preloaded workflow: dense 1-based indices,
// pending status, default retry budget.
func normalizeWorkflow(steps []models.WorkflowStep) []models.WorkflowStep {
	out := make([]models.WorkflowStep, len(steps))
	copy(out, steps)
	for i := range out {
		out[i].StepIndex = i + 1
		if out[i].Status == "" {
			out[i].Status = models.StepStatusPending
		}
		if out[i].MaxRetries <= 0 {
			out[i].MaxRetries = models.DefaultMaxRetries
		}
	}
	return out
}
