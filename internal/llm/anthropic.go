package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Anthropic messages wire format.

const anthropicVersion = "2023-06-01"

type anBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anMessage struct {
	Role    string    `json:"role"`
	Content []anBlock `json:"content"`
}

type anTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature *float64    `json:"temperature,omitempty"`
	System      string      `json:"system,omitempty"`
	Messages    []anMessage `json:"messages"`
	Tools       []anTool    `json:"tools,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type anUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anResponse struct {
	Content    []anBlock `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      anUsage   `json:"usage"`
}

func buildAnthropicRequest(req Request, stream bool) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := anRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Stream:    stream,
	}
	temp := req.Temperature
	body.Temperature = &temp

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// Anthropic takes the system prompt top-level; fold extras in.
			if body.System == "" {
				body.System = m.Content
			} else {
				body.System += "\n\n" + m.Content
			}
		case RoleToolResult:
			body.Messages = append(body.Messages, anMessage{
				Role: "user",
				Content: []anBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case RoleAssistant:
			var blocks []anBlock
			if m.Content != "" {
				blocks = append(blocks, anBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			body.Messages = append(body.Messages, anMessage{Role: "assistant", Content: blocks})
		default:
			body.Messages = append(body.Messages, anMessage{
				Role:    "user",
				Content: []anBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	for _, t := range req.Tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		body.Tools = append(body.Tools, anTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return json.Marshal(body)
}

func (c *Client) anthropicHTTPRequest(ctx context.Context, cfg Config, payload []byte) (*http.Response, error) {
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &ProviderError{Family: FamilyAnthropic, Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) chatAnthropic(ctx context.Context, cfg Config, req Request) (*Response, error) {
	payload, err := buildAnthropicRequest(req, false)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpResp, err := c.anthropicHTTPRequest(ctx, cfg, payload)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var parsed anResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := &Response{
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		FinishReason: parsed.StopReason,
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}

// Anthropic SSE stream payloads. Each data: line carries a typed event;
// tool-use arguments arrive as input_json_delta fragments per block index.
type anStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *anBlock `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type,omitempty"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Message *struct {
		Usage anUsage `json:"usage"`
	} `json:"message,omitempty"`
	Usage *anUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) streamAnthropic(ctx context.Context, cfg Config, req Request) (<-chan StreamEvent, error) {
	payload, err := buildAnthropicRequest(req, true)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpResp, err := c.anthropicHTTPRequest(ctx, cfg, payload)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer httpResp.Body.Close()

		acc := newToolCallAccumulator()
		var finishReason string
		var inputTokens, outputTokens int
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var ev anStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
				return
			}

			switch ev.Type {
			case "message_start":
				if ev.Message != nil {
					inputTokens = ev.Message.Usage.InputTokens
				}
			case "content_block_start":
				if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
					acc.start(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name)
					events <- StreamEvent{Kind: EventToolCallStart, ToolCall: ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}}
				}
			case "content_block_delta":
				if ev.Delta == nil {
					continue
				}
				switch ev.Delta.Type {
				case "text_delta":
					events <- StreamEvent{Kind: EventTextDelta, Text: ev.Delta.Text}
				case "input_json_delta":
					acc.appendArgs(ev.Index, ev.Delta.PartialJSON)
					events <- StreamEvent{Kind: EventToolCallArgumentsDelta, Text: ev.Delta.PartialJSON}
				}
			case "content_block_stop":
				if tc, ok := acc.stop(ev.Index); ok {
					events <- StreamEvent{Kind: EventToolCallEnd, ToolCall: tc}
				}
			case "message_delta":
				if ev.Delta != nil && ev.Delta.StopReason != "" {
					finishReason = ev.Delta.StopReason
				}
				if ev.Usage != nil {
					outputTokens = ev.Usage.OutputTokens
				}
			case "message_stop":
				events <- StreamEvent{Kind: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
				for _, tc := range acc.finish() {
					events <- StreamEvent{Kind: EventToolCallEnd, ToolCall: tc}
				}
				events <- StreamEvent{Kind: EventDone, FinishReason: finishReason}
				return
			case "error":
				msg := "stream error"
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("anthropic stream: %s", msg)}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("read stream: %w", err)}
			return
		}
		// Stream ended without message_stop.
		events <- StreamEvent{Kind: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
		for _, tc := range acc.finish() {
			events <- StreamEvent{Kind: EventToolCallEnd, ToolCall: tc}
		}
		events <- StreamEvent{Kind: EventDone, FinishReason: finishReason}
	}()
	return events, nil
}
