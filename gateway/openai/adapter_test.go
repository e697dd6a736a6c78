package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gurpartap/newsagent/agent"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := New(Config{APIKey: "test-key", Model: "gpt-4.1-mini", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestGenerate_ToolCallsRoundTrip(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_a","type":"function","function":{"name":"search_news","arguments":"{\"query\":\"AI\"}"}},
			{"id":"call_b","type":"function","function":{"name":"filter_articles","arguments":{"topics":["AI"]}}}
		]}}]}`)
	})

	message, err := adapter.Generate(context.Background(), agent.ModelRequest{
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: "you write digests"},
			{Role: agent.RoleUser, Content: "today"},
		},
		Tools: []agent.ToolDefinition{{Name: "search_news", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(message.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(message.ToolCalls))
	}
	if message.ToolCalls[0].Arguments["query"] != "AI" {
		t.Fatalf("unexpected string arguments %v", message.ToolCalls[0].Arguments)
	}
	topics, _ := message.ToolCalls[1].Arguments["topics"].([]any)
	if len(topics) != 1 || topics[0] != "AI" {
		t.Fatalf("unexpected object arguments %v", message.ToolCalls[1].Arguments)
	}

	if captured["model"] != "gpt-4.1-mini" {
		t.Fatalf("unexpected model %v", captured["model"])
	}
	tools, _ := captured["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool in request, got %v", captured["tools"])
	}
}

func TestGenerate_MalformedToolArgumentsKeepTheCall(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","tool_calls":[
			{"id":"call_a","type":"function","function":{"name":"search_news","arguments":"{\"query\": \"AI\""}},
			{"id":"call_b","type":"function","function":{"name":"filter_articles","arguments":"{}"}}
		]}}]}`)
	})

	message, err := adapter.Generate(context.Background(), agent.ModelRequest{Messages: []agent.Message{{Role: agent.RoleUser, Content: "today"}}})
	if err != nil {
		t.Fatalf("malformed arguments must not fail the turn: %v", err)
	}
	if len(message.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(message.ToolCalls))
	}
	broken := message.ToolCalls[0]
	if broken.Name != "search_news" || broken.ArgumentsError == "" || len(broken.Arguments) != 0 {
		t.Fatalf("unexpected broken call %+v", broken)
	}
	if message.ToolCalls[1].ArgumentsError != "" {
		t.Fatalf("valid call flagged: %+v", message.ToolCalls[1])
	}

	replayed, err := toChatMessage(message)
	if err != nil {
		t.Fatalf("replay assistant message: %v", err)
	}
	if replayed.ToolCalls[0].Function.Arguments != "{}" {
		t.Fatalf("unexpected replayed arguments %q", replayed.ToolCalls[0].Function.Arguments)
	}
}

func TestGenerate_FinalAnswer(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Digest ready."}}]}`)
	})
	message, err := adapter.Generate(context.Background(), agent.ModelRequest{Messages: []agent.Message{{Role: agent.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !message.IsFinalAnswer() || message.Content != "Digest ready." {
		t.Fatalf("unexpected message %+v", message)
	}
}

func TestGenerate_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, want: agent.ErrModelUnavailable},
		{name: "request timeout", status: http.StatusRequestTimeout, body: `timeout`, want: agent.ErrModelUnavailable},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, want: agent.ErrModelUnavailable},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, want: agent.ErrModelRejected},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, want: agent.ErrModelRejected},
		{name: "undecodable", status: http.StatusOK, body: `not json`, want: agent.ErrModelRejected},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, want: agent.ErrModelRejected},
		{name: "broken arguments", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"x","function":{"name":"f","arguments":"{"}}]}}]}`, want: agent.ErrModelRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := adapter.Generate(context.Background(), agent.ModelRequest{Messages: []agent.Message{{Role: agent.RoleUser, Content: "hi"}}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerate_TransportErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter, err := New(Config{Model: "llama3", BaseURL: url})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	_, err = adapter.Generate(context.Background(), agent.ModelRequest{Messages: []agent.Message{{Role: agent.RoleUser, Content: "hi"}}})
	if !errors.Is(err, agent.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing model error")
	}
	if _, err := New(Config{Model: "gpt-4.1-mini"}); err == nil {
		t.Fatalf("expected missing api key error for the default endpoint")
	}
	if _, err := New(Config{Model: "llama3", BaseURL: "http://localhost:11434/v1"}); err != nil {
		t.Fatalf("local endpoint without key: %v", err)
	}
}

func TestBuildRequest_RejectsOrphanToolMessage(t *testing.T) {
	t.Parallel()

	_, err := buildRequest("m", nil, agent.ModelRequest{
		Messages: []agent.Message{
			{Role: agent.RoleUser, Content: "hello"},
			{Role: agent.RoleTool, ToolCallID: "call-unknown", Content: "result"},
		},
	})
	if !errors.Is(err, agent.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestBuildRequest_EncodesToolCallArguments(t *testing.T) {
	t.Parallel()

	request, err := buildRequest("m", nil, agent.ModelRequest{
		Messages: []agent.Message{
			{Role: agent.RoleUser, Content: "hello"},
			{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "call_1", Name: "summarize_articles"}}},
			{Role: agent.RoleTool, ToolCallID: "call_1", Name: "summarize_articles", Content: `{"status":"no_relevant_articles"}`},
		},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if got := request.Messages[1].ToolCalls[0].Function.Arguments; got != "{}" {
		t.Fatalf("expected empty object arguments, got %q", got)
	}
	if request.Messages[2].ToolCallID != "call_1" {
		t.Fatalf("tool call id mismatch: %q", request.Messages[2].ToolCallID)
	}
}
