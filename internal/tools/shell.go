package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/openintentos/openintent/internal/llm"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellOutput      = 8 * 1024
)

// ShellAdapter runs commands through `sh -c` in a fixed working directory.
// The dev worker uses the same Run method directly for its git and test-gate
// commands.
type ShellAdapter struct {
	workDir string
}

func NewShellAdapter(workDir string) *ShellAdapter {
	return &ShellAdapter{workDir: workDir}
}

func (s *ShellAdapter) ID() string   { return "shell" }
func (s *ShellAdapter) Type() string { return "shell" }

func (s *ShellAdapter) Connect(ctx context.Context) error    { return nil }
func (s *ShellAdapter) Disconnect(ctx context.Context) error { return nil }

func (s *ShellAdapter) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath("sh"); err != nil {
		return fmt.Errorf("sh not available: %w", err)
	}
	return nil
}

func (s *ShellAdapter) RequiredAuth() string { return "" }

func (s *ShellAdapter) Tools() []llm.ToolDef {
	return []llm.ToolDef{{
		Name:        "shell_exec",
		Description: "Execute a shell command in the project working directory and return its combined output. Output is truncated to 8KB.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The command to run via sh -c"},
				"timeout_sec": {"type": "integer", "description": "Optional timeout in seconds"}
			},
			"required": ["command"]
		}`),
	}}
}

func (s *ShellAdapter) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	if toolName != "shell_exec" {
		return "", &ExecError{Tool: toolName, Reason: "unknown tool"}
	}
	command, _ := args["command"].(string)
	if command == "" {
		return "", &ExecError{Tool: toolName, Reason: "command argument is empty"}
	}
	timeout := defaultShellTimeout
	if sec, ok := args["timeout_sec"].(float64); ok && sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.Run(ctx, command)
	if err != nil {
		return "", &ExecError{Tool: toolName, Reason: "command failed", Err: err}
	}
	return truncateOutput(out), nil
}

// Run executes command via `sh -c` in the adapter's working directory. A
// non-zero exit returns an error carrying the exit code and combined output.
func (s *ShellAdapter) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if s.workDir != "" {
		cmd.Dir = s.workDir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	output := buf.String()
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return output, fmt.Errorf("command `%s` failed (exit %d): %s", command, exitCode, strings.TrimSpace(output))
	}
	return output, nil
}

func truncateOutput(out string) string {
	if len(out) <= maxShellOutput {
		return out
	}
	cut := out[:maxShellOutput]
	// Back up to a rune boundary.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n... (output truncated)"
}
