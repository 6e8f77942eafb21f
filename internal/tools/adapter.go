// Package tools defines the adapter surface the runtime executes against and
// the registry that routes tool invocations to adapters. Adapters are thin
// wrappers over external services; they all share one capability set and are
// selected by iterating the registry for the adapter advertising a tool name.
package tools

import (
	"context"
	"fmt"

	"github.com/openintentos/openintent/internal/llm"
)

// Adapter is the uniform capability set every service integration implements.
type Adapter interface {
	// ID is the unique adapter instance name.
	ID() string
	// Type names the service category (shell, memory, github, ...).
	Type() string
	// Connect establishes any session state the adapter needs.
	Connect(ctx context.Context) error
	// Disconnect releases session state.
	Disconnect(ctx context.Context) error
	// HealthCheck reports whether the adapter can currently serve calls.
	HealthCheck(ctx context.Context) error
	// Tools lists the tool definitions this adapter executes.
	Tools() []llm.ToolDef
	// Execute runs one tool with already-validated arguments and returns its
	// textual output.
	Execute(ctx context.Context, toolName string, args map[string]any) (string, error)
	// RequiredAuth names the vault provider this adapter needs credentials
	// for, or "" for none.
	RequiredAuth() string
}

// ExecError is an adapter-reported tool failure.
type ExecError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s failed: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Reason)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
