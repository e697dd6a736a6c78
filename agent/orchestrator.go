package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/newsagent/policy/retry"
)

const (
	DefaultMaxIterations    = 10
	DefaultToolConcurrency  = 4
	DefaultToolFailureLimit = 3
	DefaultModelTimeout     = 60 * time.Second
	DefaultToolTimeout      = 30 * time.Second
)

// Options tunes the orchestrator loop. Zero values select the defaults above.
type Options struct {
	MaxIterations    int
	ModelRetry       retry.Policy
	ModelTimeout     time.Duration
	ToolTimeout      time.Duration
	ToolConcurrency  int
	ToolFailureLimit int
	Events           EventSink
}

func (o Options) normalized() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = DefaultModelTimeout
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = DefaultToolTimeout
	}
	if o.ToolConcurrency <= 0 {
		o.ToolConcurrency = DefaultToolConcurrency
	}
	if o.ToolFailureLimit <= 0 {
		o.ToolFailureLimit = DefaultToolFailureLimit
	}
	if o.ModelRetry.Retryable == nil {
		o.ModelRetry.Retryable = IsRetryableModelError
	}
	o.ModelRetry = o.ModelRetry.Normalized()
	if o.Events == nil {
		o.Events = noopEventSink{}
	}
	return o
}

// IsRetryableModelError classifies gateway errors: everything except an explicit
// rejection or caller cancellation is treated as transient.
func IsRetryableModelError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelRejected) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Orchestrator drives one bounded conversation between a model and a set of tools:
// model -> tool calls -> tool observations -> model -> ... -> final answer.
// One Orchestrator may serve many sequential or concurrent runs; each run owns its
// own RunState.
type Orchestrator struct {
	model Model
	tools ToolExecutor
	opts  Options
}

func NewOrchestrator(model Model, tools ToolExecutor, opts Options) (*Orchestrator, error) {
	if model == nil {
		return nil, fmt.Errorf("new orchestrator: %w", ErrMissingModel)
	}
	if tools == nil {
		return nil, fmt.Errorf("new orchestrator: %w", ErrMissingToolExecutor)
	}
	return &Orchestrator{
		model: model,
		tools: tools,
		opts:  opts.normalized(),
	}, nil
}

// Run executes a fresh run to completion. The returned state always carries the
// conversation, also on failure, so callers can log it. Failures are *RunError.
func (o *Orchestrator) Run(ctx context.Context, input RunInput) (RunState, error) {
	if strings.TrimSpace(string(input.RunID)) == "" {
		return RunState{}, fmt.Errorf("%w: field=run_id reason=empty", ErrRunStateInvalid)
	}
	if strings.TrimSpace(input.UserPrompt) == "" {
		return RunState{}, fmt.Errorf("%w: field=user_prompt reason=empty run_id=%q", ErrRunStateInvalid, input.RunID)
	}

	maxIterations := input.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.opts.MaxIterations
	}

	state := RunState{ID: input.RunID}
	if err := TransitionRunStatus(&state, RunStatusPending); err != nil {
		return state, err
	}
	if input.SystemPrompt != "" {
		state.Messages = append(state.Messages, Message{Role: RoleSystem, Content: input.SystemPrompt})
	}
	state.Messages = append(state.Messages, Message{Role: RoleUser, Content: input.UserPrompt})
	o.publish(ctx, Event{RunID: state.ID, Type: EventTypeRunStarted, Description: fmt.Sprintf("max_iterations=%d tools=%d", maxIterations, len(input.Tools))})

	definitions := indexToolDefinitions(input.Tools)
	seenCallIDs := make(map[string]struct{})
	failures := make(map[string]int)

	if err := TransitionRunStatus(&state, RunStatusAwaitingModel); err != nil {
		return state, err
	}
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.fail(ctx, state, CauseCancelled, ctxErr)
		}
		if state.Step >= maxIterations {
			return o.fail(ctx, state, CauseIterationLimitExceeded, fmt.Errorf("no final answer after %d iterations", state.Step))
		}

		state.Step++
		assistant, err := o.generate(ctx, state, input.Tools)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return o.fail(ctx, state, CauseCancelled, ctx.Err())
			case errors.Is(err, ErrModelRejected):
				return o.fail(ctx, state, CauseModelRejected, err)
			default:
				return o.fail(ctx, state, CauseModelUnavailable, err)
			}
		}
		assistant.Role = RoleAssistant
		assistant.ToolCallID = ""

		if assistant.IsFinalAnswer() {
			state.Messages = append(state.Messages, CloneMessage(assistant))
			o.publish(ctx, Event{RunID: state.ID, Step: state.Step, Type: EventTypeAssistantMessage, Message: &assistant})
			if err := TransitionRunStatus(&state, RunStatusDone); err != nil {
				return state, err
			}
			state.Output = assistant.Content
			o.publish(ctx, Event{
				RunID:       state.ID,
				Step:        state.Step,
				Type:        EventTypeRunCompleted,
				Description: "assistant returned a final answer",
			})
			return state, nil
		}

		assistant.ToolCalls = assignCallIDs(assistant.ToolCalls, state.Step, seenCallIDs)
		state.Messages = append(state.Messages, CloneMessage(assistant))
		o.publish(ctx, Event{RunID: state.ID, Step: state.Step, Type: EventTypeAssistantMessage, Message: &assistant})
		if err := TransitionRunStatus(&state, RunStatusExecutingTool); err != nil {
			return state, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.fail(ctx, state, CauseCancelled, ctxErr)
		}
		results := o.executeBatch(ctx, assistant.ToolCalls, definitions)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.fail(ctx, state, CauseCancelled, ctxErr)
		}

		pending := make(map[string]struct{}, len(assistant.ToolCalls))
		for _, call := range assistant.ToolCalls {
			pending[call.ID] = struct{}{}
		}
		var repeated error
		for _, result := range results {
			if _, ok := pending[result.CallID]; !ok {
				return o.fail(ctx, state, CauseContractViolation, fmt.Errorf("tool result for call %q has no matching pending request", result.CallID))
			}
			delete(pending, result.CallID)

			state.Messages = append(state.Messages, ToolResultMessage(result))
			state.ToolCalls++
			resultCopy := result
			o.publish(ctx, Event{RunID: state.ID, Step: state.Step, Type: EventTypeToolResult, ToolResult: &resultCopy})

			if !result.IsError {
				failures[result.Name] = 0
				continue
			}
			failures[result.Name]++
			if failures[result.Name] > o.opts.ToolFailureLimit && repeated == nil {
				repeated = fmt.Errorf("tool %q failed %d times in a row: %s", result.Name, failures[result.Name], result.Content)
			}
		}
		if len(pending) > 0 {
			return o.fail(ctx, state, CauseContractViolation, fmt.Errorf("%d tool calls left without a result", len(pending)))
		}
		if repeated != nil {
			return o.fail(ctx, state, CauseToolRepeatedlyFailing, repeated)
		}

		if err := TransitionRunStatus(&state, RunStatusAwaitingModel); err != nil {
			return state, err
		}
	}
}

func (o *Orchestrator) generate(ctx context.Context, state RunState, tools []ToolDefinition) (Message, error) {
	var out Message
	err := o.opts.ModelRetry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
		defer cancel()

		message, err := o.model.Generate(callCtx, ModelRequest{
			Messages: CloneMessages(state.Messages),
			Tools:    CloneToolDefinitions(tools),
		})
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: timed out after %s: %w", ErrModelUnavailable, o.opts.ModelTimeout, err)
			}
			return err
		}
		out = message
		return nil
	}, func(attempt retry.Attempt) {
		o.publish(ctx, Event{
			RunID:       state.ID,
			Step:        state.Step,
			Type:        EventTypeModelRetry,
			Attempt:     attempt.Number,
			Description: fmt.Sprintf("retrying in %s: %v", attempt.Wait, attempt.Err),
		})
	})
	return out, err
}

// executeBatch runs every call of one assistant turn concurrently and returns the
// results ordered by call ID, independent of completion order.
func (o *Orchestrator) executeBatch(ctx context.Context, calls []ToolCall, definitions map[string]ToolDefinition) []ToolResult {
	results := make([]ToolResult, len(calls))

	var group errgroup.Group
	group.SetLimit(o.opts.ToolConcurrency)
	for i := range calls {
		call := calls[i]
		group.Go(func() error {
			results[i] = o.executeOne(ctx, call, definitions)
			return nil
		})
	}
	_ = group.Wait()

	slices.SortStableFunc(results, func(a, b ToolResult) int {
		return CompareCallIDs(a.CallID, b.CallID)
	})
	return results
}

func (o *Orchestrator) executeOne(ctx context.Context, call ToolCall, definitions map[string]ToolDefinition) (result ToolResult) {
	if _, defined := definitions[call.Name]; !defined {
		return ToolErrorResult(call, ToolFailureReasonUnknownTool, fmt.Errorf("tool %q is not defined", call.Name))
	}
	if call.ArgumentsError != "" {
		return ToolErrorResult(call, ToolFailureReasonInvalidArguments, errors.New(call.ArgumentsError))
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.ToolTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = ToolErrorResult(call, ToolFailureReasonExecutorError, fmt.Errorf("tool panicked: %v", recovered))
		}
	}()

	executed, err := o.tools.Execute(callCtx, CloneToolCall(call))
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return ToolErrorResult(call, ToolFailureReasonTimeout, fmt.Errorf("no result after %s", o.opts.ToolTimeout))
		}
		return ToolErrorResult(call, ToolFailureReasonExecutorError, err)
	}
	if executed.CallID == "" {
		executed.CallID = call.ID
	}
	if executed.Name == "" {
		executed.Name = call.Name
	}
	return executed
}

func (o *Orchestrator) fail(ctx context.Context, state RunState, cause FailureCause, err error) (RunState, error) {
	runErr := &RunError{RunID: state.ID, Cause: cause, Step: state.Step, Err: err}
	if transitionErr := TransitionRunStatus(&state, RunStatusFailed); transitionErr != nil {
		return state, errors.Join(runErr, transitionErr)
	}
	state.Cause = cause
	state.Error = runErr.Error()
	o.publish(ctx, Event{
		RunID:       state.ID,
		Step:        state.Step,
		Type:        EventTypeRunFailed,
		Cause:       cause,
		Description: runErr.Error(),
	})
	return state, runErr
}

func (o *Orchestrator) publish(ctx context.Context, event Event) {
	// Sinks still see the terminal event of a cancelled run.
	_ = publishEvent(context.WithoutCancel(ctx), o.opts.Events, event)
}
