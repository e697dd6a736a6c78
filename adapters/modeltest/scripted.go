// Package modeltest provides a scripted model for tests outside the agent
// package, such as pipeline and CLI tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gurpartap/newsagent/agent"
)

// Response configures one model turn in a scripted sequence.
type Response struct {
	Message agent.Message
	Err     error
}

// Final scripts a final answer.
func Final(content string) Response {
	return Response{Message: agent.Message{Role: agent.RoleAssistant, Content: content}}
}

// Calls scripts one assistant turn requesting the given tool calls.
func Calls(calls ...agent.ToolCall) Response {
	return Response{Message: agent.Message{Role: agent.RoleAssistant, ToolCalls: calls}}
}

// Call builds a tool call.
func Call(id, name string, arguments map[string]any) agent.ToolCall {
	return agent.ToolCall{ID: id, Name: name, Arguments: arguments}
}

// Fail scripts a gateway error.
func Fail(err error) Response {
	return Response{Err: err}
}

// ScriptedModel replays responses in order and records every request.
type ScriptedModel struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []agent.ModelRequest
}

func NewScriptedModel(responses ...Response) *ScriptedModel {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedModel{
		responses: cloned,
	}
}

var _ agent.Model = (*ScriptedModel)(nil)

func (m *ScriptedModel) Generate(_ context.Context, request agent.ModelRequest) (agent.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, agent.ModelRequest{
		Messages: agent.CloneMessages(request.Messages),
		Tools:    agent.CloneToolDefinitions(request.Tools),
	})
	if m.index >= len(m.responses) {
		return agent.Message{}, fmt.Errorf("%w: script exhausted at step %d", agent.ErrModelRejected, m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return agent.Message{}, current.Err
	}
	msg := agent.CloneMessage(current.Message)
	if msg.Role == "" {
		msg.Role = agent.RoleAssistant
	}
	return msg, nil
}

// Requests returns copies of every request received so far.
func (m *ScriptedModel) Requests() []agent.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.ModelRequest, len(m.requests))
	for i, request := range m.requests {
		out[i] = agent.ModelRequest{
			Messages: agent.CloneMessages(request.Messages),
			Tools:    agent.CloneToolDefinitions(request.Tools),
		}
	}
	return out
}
