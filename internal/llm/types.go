// Package llm is a wire-level chat client for two provider families: the
// OpenAI-compatible chat completions API and the Anthropic messages API. One
// Client serves both; the active family, base URL, model, and key can be
// switched at runtime while in-flight requests finish on the configuration
// they started with.
package llm

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Message is one conversation entry. An assistant message may carry tool
// calls; a tool_result message answers exactly one of them via ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDef advertises one callable tool. InputSchema is a JSON-schema object.
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is an LLM-requested invocation. Arguments is the raw JSON text as
// emitted by the model; callers parse it themselves so malformed fragments
// surface at the call site.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request is a provider-independent chat request. An empty Model uses the
// client's configured model.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDef
	Temperature float64
	MaxTokens   int
}

// Response is the provider-independent result of a non-streaming chat call.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// StreamEventKind discriminates stream events.
type StreamEventKind int

const (
	EventTextDelta StreamEventKind = iota
	EventToolCallStart
	EventToolCallArgumentsDelta
	EventToolCallEnd
	EventUsage
	EventDone
	EventError
)

// StreamEvent is one item of a streaming response. ToolCall is populated for
// the tool-call events; on EventToolCallEnd its Arguments field holds the
// fully concatenated JSON. EventUsage carries token counts; EventError ends
// the stream with Err set.
type StreamEvent struct {
	Kind         StreamEventKind
	Text         string
	ToolCall     ToolCall
	InputTokens  int
	OutputTokens int
	FinishReason string
	Err          error
}
