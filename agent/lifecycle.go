package agent

import "fmt"

func isTerminalRunStatus(status RunStatus) bool {
	switch status {
	case RunStatusDone, RunStatusFailed:
		return true
	default:
		return false
	}
}

func validateRunStatusTransition(from, to RunStatus) error {
	if from == to {
		return nil
	}

	allowed, ok := allowedRunStatusTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidRunStateTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunStateTransition, from, to)
	}
	return nil
}

// TransitionRunStatus moves state to the requested status when the state machine allows it.
func TransitionRunStatus(state *RunState, to RunStatus) error {
	if err := validateRunStatusTransition(state.Status, to); err != nil {
		return err
	}
	state.Status = to
	return nil
}

var allowedRunStatusTransitions = map[RunStatus]map[RunStatus]struct{}{
	"": {
		RunStatusPending: {},
	},
	RunStatusPending: {
		RunStatusAwaitingModel: {},
		RunStatusFailed:        {},
	},
	RunStatusAwaitingModel: {
		RunStatusExecutingTool: {},
		RunStatusDone:          {},
		RunStatusFailed:        {},
	},
	RunStatusExecutingTool: {
		RunStatusAwaitingModel: {},
		RunStatusFailed:        {},
	},
	RunStatusDone:   {},
	RunStatusFailed: {},
}
