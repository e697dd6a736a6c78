package agent

// RunID is the stable identifier for one orchestrator run.
type RunID string

// RunStatus is the orchestrator state machine position.
type RunStatus string

const (
	RunStatusPending       RunStatus = "pending"
	RunStatusAwaitingModel RunStatus = "awaiting_model"
	RunStatusExecutingTool RunStatus = "executing_tool"
	RunStatusDone          RunStatus = "done"
	RunStatusFailed        RunStatus = "failed"
)

// RunInput configures a fresh run.
type RunInput struct {
	RunID         RunID
	SystemPrompt  string
	UserPrompt    string
	MaxIterations int
	Tools         []ToolDefinition
}

// RunState is the conversation plus the bookkeeping needed to explain how a run ended.
type RunState struct {
	ID        RunID        `json:"id"`
	Version   int64        `json:"version"`
	Step      int          `json:"step"`
	Status    RunStatus    `json:"status"`
	Cause     FailureCause `json:"cause,omitempty"`
	Output    string       `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
	Messages  []Message    `json:"messages,omitempty"`
	ToolCalls int          `json:"tool_calls"`
}

// CloneRunState returns a deep copy safe for in-memory stores.
func CloneRunState(in RunState) RunState {
	out := in
	out.Messages = CloneMessages(in.Messages)
	return out
}

// Terminal reports whether the run can make no further progress.
func (s RunState) Terminal() bool {
	return isTerminalRunStatus(s.Status)
}
