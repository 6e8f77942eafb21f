package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/openintentos/openintent/internal/llm"
)

// Registry holds the adapter set. It is populated at startup and read-only
// afterwards, so lookups take no lock.
type Registry struct {
	adapters []Adapter
	byTool   map[string]Adapter
	schemas  map[string]*jsonschema.Schema
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byTool:  make(map[string]Adapter),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds an adapter and compiles the input schema of every tool it
// advertises. Two adapters exposing the same tool name is a configuration
// error.
func (r *Registry) Register(a Adapter) error {
	for _, def := range a.Tools() {
		if existing, ok := r.byTool[def.Name]; ok {
			return fmt.Errorf("tool %q already registered by adapter %s", def.Name, existing.ID())
		}
		schema, err := compileSchema(def)
		if err != nil {
			return fmt.Errorf("adapter %s tool %s: %w", a.ID(), def.Name, err)
		}
		r.byTool[def.Name] = a
		if schema != nil {
			r.schemas[def.Name] = schema
		}
	}
	r.adapters = append(r.adapters, a)
	r.logger.Debug("adapter registered", "adapter", a.ID(), "type", a.Type(), "tools", len(a.Tools()))
	return nil
}

func compileSchema(def llm.ToolDef) (*jsonschema.Schema, error) {
	if len(def.InputSchema) == 0 {
		return nil, nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(def.InputSchema)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal input schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}

// FindByTool returns the adapter owning a tool name.
func (r *Registry) FindByTool(name string) (Adapter, bool) {
	a, ok := r.byTool[name]
	return a, ok
}

// Adapters returns all registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// AllTools collects the tool definitions of every adapter, in registration
// order. This is the catalog handed to the LLM on each turn.
func (r *Registry) AllTools() []llm.ToolDef {
	var out []llm.ToolDef
	for _, a := range r.adapters {
		out = append(out, a.Tools()...)
	}
	return out
}

// Validate checks args against the tool's compiled input schema. Tools
// without a schema accept anything.
func (r *Registry) Validate(toolName string, args map[string]any) error {
	schema, ok := r.schemas[toolName]
	if !ok {
		return nil
	}
	// Round-trip through JSON so numbers take the shape the validator expects.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return &ExecError{Tool: toolName, Reason: "arguments failed schema validation", Err: err}
	}
	return nil
}

// Execute validates arguments, finds the owning adapter, and runs the tool.
func (r *Registry) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	adapter, ok := r.FindByTool(toolName)
	if !ok {
		return "", fmt.Errorf("no adapter found for tool `%s`", toolName)
	}
	if err := r.Validate(toolName, args); err != nil {
		return "", err
	}
	return adapter.Execute(ctx, toolName, args)
}
