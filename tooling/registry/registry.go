package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Gurpartap/newsagent/agent"
)

var (
	ErrToolNameEmpty     = errors.New("tool name is empty")
	ErrNilHandler        = errors.New("tool handler is nil")
	ErrToolAlreadyExists = errors.New("tool is already registered")
	ErrSchemaInvalid     = errors.New("tool input schema is invalid")
)

// Handler executes one tool call using schema-valid arguments.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Tool pairs the definition advertised to the model with its handler.
type Tool struct {
	Definition agent.ToolDefinition
	Handler    Handler
}

type entry struct {
	definition agent.ToolDefinition
	schema     *jsonschema.Schema
	handler    Handler
}

// Registry stores tools by name, validates call arguments against each tool's
// JSON schema and executes tool calls. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

func New(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]entry, len(tools))}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles the tool schema and adds the tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Definition.Name)
	if name == "" {
		return ErrToolNameEmpty
	}
	if tool.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, name)
	}
	schema, err := compileSchema(name, tool.Definition.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSchemaInvalid, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrToolAlreadyExists, name)
	}
	definition := agent.CloneToolDefinitions([]agent.ToolDefinition{tool.Definition})[0]
	definition.Name = name
	r.tools[name] = entry{definition: definition, schema: schema, handler: tool.Handler}
	return nil
}

// Definitions returns every registered definition ordered by name.
func (r *Registry) Definitions() []agent.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.definition)
	}
	slices.SortFunc(out, func(a, b agent.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return agent.CloneToolDefinitions(out)
}

// Execute runs one tool call. Unknown tools and schema violations come back as
// error results for the model; handler errors are returned to the caller.
func (r *Registry) Execute(ctx context.Context, call agent.ToolCall) (agent.ToolResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agent.ToolResult{}, ctxErr
	}

	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return agent.ToolErrorResult(call, agent.ToolFailureReasonUnknownTool, fmt.Errorf("tool %q is not registered", call.Name)), nil
	}

	if call.ArgumentsError != "" {
		return agent.ToolErrorResult(call, agent.ToolFailureReasonInvalidArguments, errors.New(call.ArgumentsError)), nil
	}
	arguments, err := normalizeArguments(call.Arguments)
	if err != nil {
		return agent.ToolErrorResult(call, agent.ToolFailureReasonInvalidArguments, err), nil
	}
	if e.schema != nil {
		if err := e.schema.Validate(arguments); err != nil {
			return agent.ToolErrorResult(call, agent.ToolFailureReasonInvalidArguments, flattenValidationError(err)), nil
		}
	}

	content, err := e.handler(ctx, arguments)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
	}, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	url := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// normalizeArguments round-trips arguments through JSON so the validator and the
// handlers see the same shapes a provider would have decoded.
func normalizeArguments(arguments map[string]any) (map[string]any, error) {
	if arguments == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON encodable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func flattenValidationError(err error) error {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}
	leaves := collectLeaves(validationErr)
	if len(leaves) == 0 {
		return errors.New(validationErr.Message)
	}
	return errors.New(strings.Join(leaves, "; "))
}

func collectLeaves(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		return []string{location + ": " + err.Message}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, collectLeaves(cause)...)
	}
	return out
}
