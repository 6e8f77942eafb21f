// Package plan holds the step model produced by the planner and consumed by
// the executor.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StepStatus is the lifecycle of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one unit of work bound to exactly one tool. Arguments may contain
// placeholder tokens of the form {{step_N.output}} that the executor resolves
// against earlier outputs.
type Step struct {
	Index           int            `json:"index"`
	Description     string         `json:"description"`
	ToolName        string         `json:"tool_name"`
	Arguments       map[string]any `json:"arguments"`
	DependsOn       []int          `json:"depends_on,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome,omitempty"`
	Status          StepStatus     `json:"status,omitempty"`
}

// StepResult is the terminal record of one step's execution.
type StepResult struct {
	StepIndex int
	Status    StepStatus
	Output    string
	Error     string
	Attempts  int
}

// Plan is an ordered step sequence for one intent. It has no identity of its
// own.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Validate checks structural sanity: indices match positions, dependencies
// are in range, and no step depends on itself. Cycles are not detected here;
// the wave scheduler surfaces them as a progress stall.
func (p *Plan) Validate() error {
	for i, step := range p.Steps {
		if step.Index != i {
			return fmt.Errorf("step at position %d has index %d", i, step.Index)
		}
		if step.ToolName == "" {
			return fmt.Errorf("step %d has no tool name", i)
		}
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= len(p.Steps) {
				return fmt.Errorf("step %d depends on out-of-range step %d", i, dep)
			}
			if dep == i {
				return fmt.Errorf("step %d depends on itself", i)
			}
		}
	}
	return nil
}

// Parse extracts a plan from LLM output. The payload may be bare JSON or
// wrapped in a fenced code block; both a {"steps": [...]} object and a bare
// step array are accepted.
func Parse(text string) (*Plan, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON plan found in response")
	}

	var p Plan
	if err := json.Unmarshal([]byte(payload), &p); err != nil || len(p.Steps) == 0 {
		var steps []Step
		if err2 := json.Unmarshal([]byte(payload), &steps); err2 != nil {
			if err == nil {
				err = err2
			}
			return nil, fmt.Errorf("parse plan: %w", err)
		}
		p.Steps = steps
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// extractJSON pulls the first fenced code block, or falls back to the
// outermost braces/brackets.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(text, pair[0])
		end := strings.LastIndexByte(text, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return ""
}
