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

// OpenAI-compatible chat completions wire format. This path also serves
// DeepSeek, Google's OpenAI-compatible endpoint, OpenRouter, and local
// gateways that speak the same dialect.

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	Index    *int       `json:"index,omitempty"`
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type,omitempty"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaTool struct {
	Type     string    `json:"type"`
	Function oaToolDef `json:"function"`
}

type oaToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type oaRequest struct {
	Model         string      `json:"model"`
	Messages      []oaMessage `json:"messages"`
	Tools         []oaTool    `json:"tools,omitempty"`
	Temperature   *float64    `json:"temperature,omitempty"`
	MaxTokens     int         `json:"max_tokens,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type oaChoice struct {
	Message      oaMessage `json:"message"`
	Delta        oaMessage `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type oaResponse struct {
	Choices []oaChoice `json:"choices"`
	Usage   *oaUsage   `json:"usage"`
}

func buildOpenAIRequest(cfg Config, req Request, stream bool) ([]byte, error) {
	body := oaRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	temp := req.Temperature
	body.Temperature = &temp
	if stream {
		body.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}

	if req.System != "" {
		body.Messages = append(body.Messages, oaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		om := oaMessage{Content: m.Content}
		switch m.Role {
		case RoleToolResult:
			om.Role = "tool"
			om.ToolCallID = m.ToolCallID
		case RoleAssistant:
			om.Role = "assistant"
			for _, tc := range m.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, oaToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: oaFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		default:
			om.Role = string(m.Role)
		}
		body.Messages = append(body.Messages, om)
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, oaTool{
			Type: "function",
			Function: oaToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return json.Marshal(body)
}

func (c *Client) openAIHTTPRequest(ctx context.Context, cfg Config, payload []byte) (*http.Response, error) {
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &ProviderError{Family: FamilyOpenAI, Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) chatOpenAI(ctx context.Context, cfg Config, req Request) (*Response, error) {
	payload, err := buildOpenAIRequest(cfg, req, false)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpResp, err := c.openAIHTTPRequest(ctx, cfg, payload)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var parsed oaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	choice := parsed.Choices[0]
	out := &Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if parsed.Usage != nil {
		out.InputTokens = parsed.Usage.PromptTokens
		out.OutputTokens = parsed.Usage.CompletionTokens
	}
	return out, nil
}

func (c *Client) streamOpenAI(ctx context.Context, cfg Config, req Request) (<-chan StreamEvent, error) {
	payload, err := buildOpenAIRequest(cfg, req, true)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpResp, err := c.openAIHTTPRequest(ctx, cfg, payload)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer httpResp.Body.Close()

		acc := newToolCallAccumulator()
		var finishReason string
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var chunk oaResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
				return
			}
			if chunk.Usage != nil {
				events <- StreamEvent{
					Kind:         EventUsage,
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta.Content != "" {
				events <- StreamEvent{Kind: EventTextDelta, Text: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if tc.ID != "" || tc.Function.Name != "" {
					acc.start(idx, tc.ID, tc.Function.Name)
					events <- StreamEvent{Kind: EventToolCallStart, ToolCall: ToolCall{ID: tc.ID, Name: tc.Function.Name}}
				}
				if tc.Function.Arguments != "" {
					acc.appendArgs(idx, tc.Function.Arguments)
					events <- StreamEvent{Kind: EventToolCallArgumentsDelta, Text: tc.Function.Arguments}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("read stream: %w", err)}
			return
		}

		for _, tc := range acc.finish() {
			events <- StreamEvent{Kind: EventToolCallEnd, ToolCall: tc}
		}
		events <- StreamEvent{Kind: EventDone, FinishReason: finishReason}
	}()
	return events, nil
}
