// Package openai adapts any OpenAI-compatible chat-completions endpoint
// (OpenAI, Perplexity, Ollama) to agent.Model.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Gurpartap/newsagent/agent"
)

const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	defaultEndpoint = "/chat/completions"
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 2 << 20
)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
	HTTPClient  *http.Client
}

type Adapter struct {
	apiKey      string
	model       string
	temperature *float64
	endpointURL string
	httpClient  *http.Client
}

var _ agent.Model = (*Adapter)(nil)

// New validates cfg. The API key is only required for the default OpenAI
// endpoint; local servers such as Ollama accept anonymous requests.
func New(cfg Config) (*Adapter, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("new model adapter: model is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && baseURL == DefaultBaseURL {
		return nil, fmt.Errorf("new model adapter: api key is required for %s", DefaultBaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Adapter{
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		endpointURL: strings.TrimRight(baseURL, "/") + defaultEndpoint,
		httpClient:  httpClient,
	}, nil
}

// Generate sends one chat-completions request. Errors wrap agent.ErrModelUnavailable
// when a retry may help and agent.ErrModelRejected when it cannot.
func (a *Adapter) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	payload, err := buildRequest(a.model, a.temperature, request)
	if err != nil {
		return agent.Message{}, fmt.Errorf("%w: provider request: %w", agent.ErrModelRejected, err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return agent.Message{}, fmt.Errorf("%w: provider request encode: %w", agent.ErrModelRejected, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return agent.Message{}, fmt.Errorf("%w: provider request build: %w", agent.ErrModelRejected, err)
	}
	if a.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := a.httpClient.Do(httpRequest)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return agent.Message{}, ctxErr
		}
		return agent.Message{}, fmt.Errorf("%w: provider request execute: %w", agent.ErrModelUnavailable, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return agent.Message{}, fmt.Errorf("%w: provider response read: %w", agent.ErrModelUnavailable, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return agent.Message{}, statusError(response.StatusCode, body)
	}

	message, err := parseResponse(body)
	if err != nil {
		return agent.Message{}, fmt.Errorf("%w: provider response decode: %w", agent.ErrModelRejected, err)
	}
	return message, nil
}

// statusError classifies a non-2xx response. Timeouts, throttling and server
// errors are transient; every other status is a rejection.
func statusError(status int, body []byte) error {
	detail := gjson.GetBytes(body, "error.message").String()
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	sentinel := agent.ErrModelRejected
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		sentinel = agent.ErrModelUnavailable
	}
	return fmt.Errorf("%w: provider response status=%d: %s", sentinel, status, detail)
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func buildRequest(model string, temperature *float64, request agent.ModelRequest) (chatCompletionRequest, error) {
	if err := agent.ValidateConversation(request.Messages); err != nil {
		return chatCompletionRequest{}, err
	}

	messages := make([]chatMessage, len(request.Messages))
	for i := range request.Messages {
		converted, err := toChatMessage(request.Messages[i])
		if err != nil {
			return chatCompletionRequest{}, err
		}
		messages[i] = converted
	}

	tools := make([]chatTool, len(request.Tools))
	for i := range request.Tools {
		tools[i] = chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        request.Tools[i].Name,
				Description: request.Tools[i].Description,
				Parameters:  request.Tools[i].InputSchema,
			},
		}
	}

	return chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Tools:       tools,
		Temperature: temperature,
	}, nil
}

func toChatMessage(message agent.Message) (chatMessage, error) {
	switch message.Role {
	case agent.RoleSystem, agent.RoleUser, agent.RoleAssistant, agent.RoleTool:
	default:
		return chatMessage{}, fmt.Errorf("unsupported message role %q", message.Role)
	}

	var toolCalls []chatToolCall
	for _, call := range message.ToolCalls {
		arguments := "{}"
		if len(call.Arguments) > 0 {
			encoded, err := json.Marshal(call.Arguments)
			if err != nil {
				return chatMessage{}, fmt.Errorf("encode tool call arguments: %w", err)
			}
			arguments = string(encoded)
		}
		toolCalls = append(toolCalls, chatToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: chatToolCallFunction{Name: call.Name, Arguments: arguments},
		})
	}

	return chatMessage{
		Role:       string(message.Role),
		Content:    message.Content,
		Name:       message.Name,
		ToolCallID: message.ToolCallID,
		ToolCalls:  toolCalls,
	}, nil
}

// decodeToolCall keeps calls whose arguments do not decode; ArgumentsError
// carries the problem to the executor.
func decodeToolCall(id, name string, raw gjson.Result) agent.ToolCall {
	call := agent.ToolCall{ID: id, Name: name, Arguments: map[string]any{}}
	var text string
	switch {
	case raw.Type == gjson.String && strings.TrimSpace(raw.String()) != "":
		text = raw.String()
	case raw.IsObject():
		text = raw.Raw
	default:
		return call
	}
	if err := json.Unmarshal([]byte(text), &call.Arguments); err != nil {
		call.Arguments = map[string]any{}
		call.ArgumentsError = fmt.Sprintf("arguments are not a JSON object: %v", err)
	}
	return call
}

// parseResponse reads the first choice. Arguments may arrive as a JSON string
// (OpenAI) or as an object (some Ollama versions).
func parseResponse(body []byte) (agent.Message, error) {
	if !gjson.ValidBytes(body) {
		return agent.Message{}, fmt.Errorf("response is not valid JSON")
	}
	message := gjson.GetBytes(body, "choices.0.message")
	if !message.Exists() {
		return agent.Message{}, fmt.Errorf("no choices")
	}
	if role := message.Get("role").String(); role != "" && role != "assistant" {
		return agent.Message{}, fmt.Errorf("expected assistant message role, got %q", role)
	}

	out := agent.Message{
		Role:    agent.RoleAssistant,
		Content: message.Get("content").String(),
	}
	message.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
		name := call.Get("function.name").String()
		out.ToolCalls = append(out.ToolCalls, decodeToolCall(call.Get("id").String(), name, call.Get("function.arguments")))
		return true
	})
	return out, nil
}
