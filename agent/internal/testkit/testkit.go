package testkit

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/Gurpartap/newsagent/agent"
)

// Response configures one model turn in a scripted sequence. A positive Delay
// holds the turn until it elapses or the call context ends.
type Response struct {
	Message agent.Message
	Err     error
	Delay   time.Duration
}

// ScriptedModel is a deterministic model adapter for orchestrator tests.
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

func (m *ScriptedModel) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	m.mu.Lock()
	m.requests = append(m.requests, agent.ModelRequest{
		Messages: agent.CloneMessages(request.Messages),
		Tools:    agent.CloneToolDefinitions(request.Tools),
	})
	if m.index >= len(m.responses) {
		m.mu.Unlock()
		return agent.Message{}, fmt.Errorf("%w: script exhausted at call %d", agent.ErrModelRejected, m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	m.mu.Unlock()

	if current.Delay > 0 {
		timer := time.NewTimer(current.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return agent.Message{}, ctx.Err()
		case <-timer.C:
		}
	}
	if current.Err != nil {
		return agent.Message{}, current.Err
	}
	msg := agent.CloneMessage(current.Message)
	if msg.Role == "" {
		msg.Role = agent.RoleAssistant
	}
	return msg, nil
}

// Calls returns how many Generate calls the model has served.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of every request the model received.
func (m *ScriptedModel) Requests() []agent.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.ModelRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Handler executes business logic for one tool call.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Registry is a minimal map-backed tool executor without schema validation.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry(initial map[string]Handler) *Registry {
	handlers := make(map[string]Handler, len(initial))
	maps.Copy(handlers, initial)
	return &Registry{handlers: handlers}
}

func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

func (r *Registry) Execute(ctx context.Context, call agent.ToolCall) (agent.ToolResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return agent.ToolResult{}, fmt.Errorf("tool %q is not registered", call.Name)
	}
	content, err := handler(ctx, call.Arguments)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
	}, nil
}

// Definitions builds bare tool definitions for the given names.
func Definitions(names ...string) []agent.ToolDefinition {
	out := make([]agent.ToolDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, agent.ToolDefinition{Name: name, Description: name + " test tool"})
	}
	return out
}

// EventSink stores emitted events for tests and debugging.
type EventSink struct {
	mu     sync.RWMutex
	events []agent.Event
}

func NewEventSink() *EventSink {
	return &EventSink{
		events: make([]agent.Event, 0),
	}
}

func (s *EventSink) Publish(_ context.Context, event agent.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
	return nil
}

func (s *EventSink) Events() []agent.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.Event, len(s.events))
	for i := range s.events {
		out[i] = cloneEvent(s.events[i])
	}
	return out
}

// Count returns how many events of the given type were published.
func (s *EventSink) Count(eventType agent.EventType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, event := range s.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func cloneEvent(in agent.Event) agent.Event {
	out := in
	if in.Message != nil {
		msg := agent.CloneMessage(*in.Message)
		out.Message = &msg
	}
	if in.ToolResult != nil {
		result := *in.ToolResult
		out.ToolResult = &result
	}
	return out
}
