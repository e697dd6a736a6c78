// Package logsink writes orchestrator events to a slog logger.
package logsink

import (
	"context"
	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/Gurpartap/newsagent/agent"
)

// Sink logs lifecycle events at info, failures at warn and conversation detail
// at debug.
type Sink struct {
	logger *slog.Logger
}

var _ agent.EventSink = (*Sink)(nil)

func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

func (s *Sink) Publish(ctx context.Context, event agent.Event) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	attrs := []slog.Attr{
		slog.String("run_id", string(event.RunID)),
		slog.Int("step", event.Step),
		slog.String("event", string(event.Type)),
	}
	level := slog.LevelDebug
	switch event.Type {
	case agent.EventTypeRunStarted, agent.EventTypeRunCompleted:
		level = slog.LevelInfo
		if event.Description != "" {
			attrs = append(attrs, slog.String("detail", event.Description))
		}
	case agent.EventTypeModelRetry:
		level = slog.LevelWarn
		attrs = append(attrs, slog.Int("attempt", event.Attempt), slog.String("detail", event.Description))
	case agent.EventTypeRunFailed:
		level = slog.LevelError
		attrs = append(attrs, slog.String("cause", string(event.Cause)), tint.Err(errorString(event.Description)))
	case agent.EventTypeToolResult:
		if event.ToolResult != nil {
			attrs = append(attrs,
				slog.String("tool", event.ToolResult.Name),
				slog.String("call_id", event.ToolResult.CallID),
				slog.Bool("is_error", event.ToolResult.IsError),
			)
			if event.ToolResult.IsError {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("reason", string(event.ToolResult.FailureReason)))
			}
		}
	case agent.EventTypeAssistantMessage:
		if event.Message != nil {
			attrs = append(attrs, slog.Int("tool_calls", len(event.Message.ToolCalls)))
		}
	}

	s.logger.LogAttrs(ctx, level, "run event", attrs...)
	return nil
}

type errorString string

func (e errorString) Error() string { return string(e) }
