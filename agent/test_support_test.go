package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/agent/internal/testkit"
	"github.com/Gurpartap/newsagent/policy/retry"
)

func fastRetry(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, model agent.Model, tools agent.ToolExecutor, events agent.EventSink, opts agent.Options) *agent.Orchestrator {
	t.Helper()

	if opts.ModelRetry.InitialInterval == 0 {
		opts.ModelRetry = fastRetry(3)
	}
	opts.Events = events
	orchestrator, err := agent.NewOrchestrator(model, tools, opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orchestrator
}

func digestInput(runID agent.RunID, tools ...string) agent.RunInput {
	return agent.RunInput{
		RunID:        runID,
		SystemPrompt: "You assemble news digests.",
		UserPrompt:   "Build today's digest.",
		Tools:        testkit.Definitions(tools...),
	}
}

func toolCallTurn(calls ...agent.ToolCall) testkit.Response {
	return testkit.Response{Message: agent.Message{Role: agent.RoleAssistant, ToolCalls: calls}}
}

func finalTurn(content string) testkit.Response {
	return testkit.Response{Message: agent.Message{Role: agent.RoleAssistant, Content: content}}
}

func okHandler(content string) testkit.Handler {
	return func(context.Context, map[string]any) (string, error) {
		return content, nil
	}
}

func toolMessages(messages []agent.Message) []agent.Message {
	var out []agent.Message
	for _, message := range messages {
		if message.Role == agent.RoleTool {
			out = append(out, message)
		}
	}
	return out
}
