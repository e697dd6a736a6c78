package agent

// EventType is emitted by the orchestrator for observability.
type EventType string

const (
	EventTypeRunStarted       EventType = "run_started"
	EventTypeAssistantMessage EventType = "assistant_message"
	EventTypeModelRetry       EventType = "model_retry"
	EventTypeToolResult       EventType = "tool_result"
	EventTypeRunCompleted     EventType = "run_completed"
	EventTypeRunFailed        EventType = "run_failed"
)

// Event is intentionally compact so adapters can map it to logs, metrics, or streams.
type Event struct {
	RunID       RunID        `json:"run_id"`
	Step        int          `json:"step"`
	Type        EventType    `json:"type"`
	Message     *Message     `json:"message,omitempty"`
	ToolResult  *ToolResult  `json:"tool_result,omitempty"`
	Cause       FailureCause `json:"cause,omitempty"`
	Attempt     int          `json:"attempt,omitempty"`
	Description string       `json:"description,omitempty"`
}
