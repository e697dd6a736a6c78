package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable marks transient model failures (timeouts, rate limits, 5xx).
	// Gateways wrap it so the orchestrator can retry.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelRejected marks non-retryable model failures (bad request, auth).
	ErrModelRejected = errors.New("model rejected request")
	// ErrIterationLimitExceeded is returned when the loop reaches its iteration budget.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	// ErrToolRepeatedlyFailing is returned when one tool keeps failing past its limit.
	ErrToolRepeatedlyFailing = errors.New("tool repeatedly failing")
	// ErrCancelled is returned when the caller cancels a run between transitions.
	ErrCancelled = errors.New("run cancelled")
	// ErrContractViolation is returned when the conversation invariants are broken.
	ErrContractViolation = errors.New("conversation contract violation")

	ErrRunNotFound               = errors.New("run not found")
	ErrRunVersionConflict        = errors.New("run version conflict")
	ErrRunStateInvalid           = errors.New("run state invalid")
	ErrInvalidRunStateTransition = errors.New("invalid run state transition")
	ErrEventInvalid              = errors.New("event invalid")
	ErrMissingModel              = errors.New("missing model")
	ErrMissingToolExecutor       = errors.New("missing tool executor")
)

// FailureCause names why a run ended in the failed state.
type FailureCause string

const (
	CauseModelUnavailable       FailureCause = "ModelUnavailable"
	CauseModelRejected          FailureCause = "ModelRejected"
	CauseIterationLimitExceeded FailureCause = "IterationLimitExceeded"
	CauseToolRepeatedlyFailing  FailureCause = "ToolRepeatedlyFailing"
	CauseCancelled              FailureCause = "Cancelled"
	CauseContractViolation      FailureCause = "ContractViolation"
)

var causeSentinels = map[FailureCause]error{
	CauseModelUnavailable:       ErrModelUnavailable,
	CauseModelRejected:          ErrModelRejected,
	CauseIterationLimitExceeded: ErrIterationLimitExceeded,
	CauseToolRepeatedlyFailing:  ErrToolRepeatedlyFailing,
	CauseCancelled:              ErrCancelled,
	CauseContractViolation:      ErrContractViolation,
}

// RunError is the typed failure returned by Orchestrator.Run.
type RunError struct {
	RunID RunID
	Cause FailureCause
	Step  int
	Err   error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("run %s failed at step %d: %s", e.RunID, e.Step, e.Cause)
	}
	return fmt.Sprintf("run %s failed at step %d: %s: %v", e.RunID, e.Step, e.Cause, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel associated with the failure cause, so callers can write
// errors.Is(err, agent.ErrIterationLimitExceeded) without caring about the wrapped detail.
func (e *RunError) Is(target error) bool {
	sentinel, ok := causeSentinels[e.Cause]
	return ok && sentinel == target
}

// CauseOf extracts the failure cause from an error returned by Run.
func CauseOf(err error) (FailureCause, bool) {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Cause, true
	}
	return "", false
}
