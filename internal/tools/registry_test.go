package tools_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/tools"
)

// fakeAdapter advertises a configurable tool set and records calls.
type fakeAdapter struct {
	id    string
	defs  []llm.ToolDef
	calls []string
}

func (f *fakeAdapter) ID() string                            { return f.id }
func (f *fakeAdapter) Type() string                          { return "fake" }
func (f *fakeAdapter) Connect(ctx context.Context) error     { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error  { return nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeAdapter) RequiredAuth() string                  { return "" }
func (f *fakeAdapter) Tools() []llm.ToolDef                  { return f.defs }

func (f *fakeAdapter) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	f.calls = append(f.calls, toolName)
	return "ok from " + f.id, nil
}

func toolDef(name, schema string) llm.ToolDef {
	def := llm.ToolDef{Name: name}
	if schema != "" {
		def.InputSchema = json.RawMessage(schema)
	}
	return def
}

func TestRegistryRejectsDuplicateToolName(t *testing.T) {
	r := tools.NewRegistry(nil)
	a := &fakeAdapter{id: "a", defs: []llm.ToolDef{toolDef("ping", "")}}
	b := &fakeAdapter{id: "b", defs: []llm.ToolDef{toolDef("ping", "")}}

	if err := r.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	err := r.Register(b)
	if err == nil {
		t.Fatal("duplicate tool accepted")
	}
	if !strings.Contains(err.Error(), `"ping"`) || !strings.Contains(err.Error(), "adapter a") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistryLookupAndCatalog(t *testing.T) {
	r := tools.NewRegistry(nil)
	a := &fakeAdapter{id: "a", defs: []llm.ToolDef{toolDef("first", ""), toolDef("second", "")}}
	b := &fakeAdapter{id: "b", defs: []llm.ToolDef{toolDef("third", "")}}
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := r.FindByTool("third")
	if !ok || got.ID() != "b" {
		t.Fatalf("FindByTool = %v, %v", got, ok)
	}
	if _, ok := r.FindByTool("missing"); ok {
		t.Fatal("missing tool found")
	}

	all := r.AllTools()
	if len(all) != 3 {
		t.Fatalf("catalog = %+v", all)
	}
	for i, want := range []string{"first", "second", "third"} {
		if all[i].Name != want {
			t.Errorf("all[%d] = %q, want %q", i, all[i].Name, want)
		}
	}
}

func TestRegistryValidate(t *testing.T) {
	r := tools.NewRegistry(nil)
	a := &fakeAdapter{id: "a", defs: []llm.ToolDef{
		toolDef("typed", `{
			"type": "object",
			"properties": {"count": {"type": "integer", "minimum": 1}},
			"required": ["count"]
		}`),
		toolDef("untyped", ""),
	}}
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Validate("typed", map[string]any{"count": 3}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if err := r.Validate("typed", map[string]any{}); err == nil {
		t.Fatal("missing required arg accepted")
	}
	if err := r.Validate("typed", map[string]any{"count": "three"}); err == nil {
		t.Fatal("wrong type accepted")
	}
	// tools without a schema accept anything
	if err := r.Validate("untyped", map[string]any{"whatever": true}); err != nil {
		t.Fatalf("schemaless tool rejected args: %v", err)
	}
}

func TestRegistryExecute(t *testing.T) {
	r := tools.NewRegistry(nil)
	a := &fakeAdapter{id: "a", defs: []llm.ToolDef{toolDef("ping", "")}}
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Execute(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "ok from a" || len(a.calls) != 1 {
		t.Fatalf("out = %q calls = %v", out, a.calls)
	}

	_, err = r.Execute(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "no adapter found for tool `nope`") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistryRejectsBadSchema(t *testing.T) {
	r := tools.NewRegistry(nil)
	a := &fakeAdapter{id: "a", defs: []llm.ToolDef{toolDef("broken", `{"type": 42`)}}
	if err := r.Register(a); err == nil {
		t.Fatal("malformed schema accepted")
	}
}

func TestExecErrorFormatting(t *testing.T) {
	bare := &tools.ExecError{Tool: "x", Reason: "bad input"}
	if bare.Error() != "tool x failed: bad input" {
		t.Fatalf("msg = %q", bare.Error())
	}
	wrapped := &tools.ExecError{Tool: "x", Reason: "io", Err: fmt.Errorf("disk full")}
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Fatalf("msg = %q", wrapped.Error())
	}
	if wrapped.Unwrap() == nil {
		t.Fatal("unwrap lost the cause")
	}
}
