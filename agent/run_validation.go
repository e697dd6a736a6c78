package agent

import (
	"fmt"
	"strings"
)

// ValidateRunState checks structural run-state invariants before persistence boundaries.
func ValidateRunState(state RunState) error {
	if strings.TrimSpace(string(state.ID)) == "" {
		return fmt.Errorf("%w: field=id reason=empty", ErrRunStateInvalid)
	}
	if state.Step < 0 {
		return fmt.Errorf(
			"%w: field=step reason=negative value=%d run_id=%q",
			ErrRunStateInvalid,
			state.Step,
			state.ID,
		)
	}
	if state.Version < 0 {
		return fmt.Errorf(
			"%w: field=version reason=negative value=%d run_id=%q",
			ErrRunStateInvalid,
			state.Version,
			state.ID,
		)
	}
	if !isKnownRunStatus(state.Status) {
		return fmt.Errorf(
			"%w: field=status reason=unknown value=%q run_id=%q",
			ErrRunStateInvalid,
			state.Status,
			state.ID,
		)
	}
	if state.Status == RunStatusFailed && state.Cause == "" {
		return fmt.Errorf("%w: field=cause reason=empty run_id=%q", ErrRunStateInvalid, state.ID)
	}
	return ValidateConversation(state.Messages)
}

// ValidateConversation checks that every tool message answers exactly one earlier
// tool call of the same conversation.
func ValidateConversation(messages []Message) error {
	requested := make(map[string]struct{})
	answered := make(map[string]struct{})
	for i, message := range messages {
		switch message.Role {
		case RoleAssistant:
			for _, call := range message.ToolCalls {
				if call.ID == "" {
					return fmt.Errorf("%w: message %d has a tool call without id", ErrContractViolation, i)
				}
				if _, dup := requested[call.ID]; dup {
					return fmt.Errorf("%w: message %d repeats tool call id %q", ErrContractViolation, i, call.ID)
				}
				requested[call.ID] = struct{}{}
			}
		case RoleTool:
			if _, ok := requested[message.ToolCallID]; !ok {
				return fmt.Errorf(
					"%w: tool message %d references unknown tool_call_id %q",
					ErrContractViolation,
					i,
					message.ToolCallID,
				)
			}
			if _, dup := answered[message.ToolCallID]; dup {
				return fmt.Errorf(
					"%w: tool message %d answers tool_call_id %q twice",
					ErrContractViolation,
					i,
					message.ToolCallID,
				)
			}
			answered[message.ToolCallID] = struct{}{}
		case RoleSystem, RoleUser:
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", ErrContractViolation, i, message.Role)
		}
	}
	return nil
}

func isKnownRunStatus(status RunStatus) bool {
	switch status {
	case RunStatusPending,
		RunStatusAwaitingModel,
		RunStatusExecutingTool,
		RunStatusDone,
		RunStatusFailed:
		return true
	default:
		return false
	}
}
