package llm_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openintentos/openintent/internal/llm"
)

func collectEvents(t *testing.T, ch <-chan llm.StreamEvent) []llm.StreamEvent {
	t.Helper()
	var out []llm.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not finish; got %d events", len(out))
		}
	}
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			io.WriteString(w, line+"\n\n")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamOpenAI(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"run_shell"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"comm"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\":\"ls\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":11}}`,
		`data: [DONE]`,
	})

	c, _ := llm.NewClient(llm.Config{BaseURL: srv.URL, Model: "m"}, nil)
	ch, err := c.ChatStream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "go"}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := collectEvents(t, ch)

	var text strings.Builder
	var ended []llm.ToolCall
	var usageIn, usageOut int
	var done bool
	var finish string
	for _, ev := range events {
		switch ev.Kind {
		case llm.EventTextDelta:
			text.WriteString(ev.Text)
		case llm.EventToolCallEnd:
			ended = append(ended, ev.ToolCall)
		case llm.EventUsage:
			usageIn, usageOut = ev.InputTokens, ev.OutputTokens
		case llm.EventDone:
			done = true
			finish = ev.FinishReason
		case llm.EventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if text.String() != "hello" {
		t.Errorf("text = %q", text.String())
	}
	if len(ended) != 1 || ended[0].ID != "call_1" || ended[0].Arguments != `{"command":"ls"}` {
		t.Errorf("tool calls = %+v", ended)
	}
	if usageIn != 5 || usageOut != 11 {
		t.Errorf("usage = %d/%d", usageIn, usageOut)
	}
	if !done || finish != "tool_calls" {
		t.Errorf("done = %v finish = %q", done, finish)
	}
}

func TestStreamAnthropic(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"type":"message_start","message":{"usage":{"input_tokens":20}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"on it"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"memory_save"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"content\":"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"note\"}"}}`,
		`data: {"type":"content_block_stop","index":1}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}`,
		`data: {"type":"message_stop"}`,
	})

	c, _ := llm.NewClient(llm.Config{Family: llm.FamilyAnthropic, BaseURL: srv.URL, Model: "m"}, nil)
	ch, err := c.ChatStream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "go"}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := collectEvents(t, ch)

	var text strings.Builder
	var started, ended []llm.ToolCall
	var usageIn, usageOut int
	var finish string
	for _, ev := range events {
		switch ev.Kind {
		case llm.EventTextDelta:
			text.WriteString(ev.Text)
		case llm.EventToolCallStart:
			started = append(started, ev.ToolCall)
		case llm.EventToolCallEnd:
			ended = append(ended, ev.ToolCall)
		case llm.EventUsage:
			usageIn, usageOut = ev.InputTokens, ev.OutputTokens
		case llm.EventDone:
			finish = ev.FinishReason
		case llm.EventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if text.String() != "on it" {
		t.Errorf("text = %q", text.String())
	}
	if len(started) != 1 || started[0].Name != "memory_save" {
		t.Errorf("started = %+v", started)
	}
	if len(ended) != 1 || ended[0].Arguments != `{"content":"note"}` {
		t.Errorf("ended = %+v", ended)
	}
	if usageIn != 20 || usageOut != 8 {
		t.Errorf("usage = %d/%d", usageIn, usageOut)
	}
	if finish != "tool_use" {
		t.Errorf("finish = %q", finish)
	}
}

func TestStreamAnthropicErrorEvent(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"type":"message_start","message":{"usage":{"input_tokens":1}}}`,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
	})

	c, _ := llm.NewClient(llm.Config{Family: llm.FamilyAnthropic, BaseURL: srv.URL, Model: "m"}, nil)
	ch, err := c.ChatStream(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "go"}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := collectEvents(t, ch)

	last := events[len(events)-1]
	if last.Kind != llm.EventError || last.Err == nil {
		t.Fatalf("last event = %+v", last)
	}
	if !strings.Contains(last.Err.Error(), "overloaded") {
		t.Fatalf("err = %v", last.Err)
	}
	if !llm.IsRateLimit(last.Err) {
		t.Fatal("overloaded not classified as rate limit")
	}
}
