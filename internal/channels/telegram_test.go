package channels

import (
	"strings"
	"testing"

	"github.com/openintentos/openintent/internal/bus"
)

func TestSplitMessageShort(t *testing.T) {
	parts := splitMessage("hello", maxMessageChars)
	if len(parts) != 1 || parts[0] != "hello" {
		t.Fatalf("expected single part, got %v", parts)
	}
}

func TestSplitMessageLong(t *testing.T) {
	text := strings.Repeat("x", maxMessageChars*2+10)
	parts := splitMessage(text, maxMessageChars)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxMessageChars || len(parts[2]) != 10 {
		t.Fatalf("unexpected part sizes: %d, %d, %d", len(parts[0]), len(parts[1]), len(parts[2]))
	}
	if strings.Join(parts, "") != text {
		t.Fatal("parts do not reassemble the original text")
	}
}

func TestSplitMessageMultibyte(t *testing.T) {
	text := strings.Repeat("日", 10)
	parts := splitMessage(text, 4)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	for _, p := range parts {
		if !strings.HasPrefix(p, "日") {
			t.Fatalf("part split mid-rune: %q", p)
		}
	}
	if strings.Join(parts, "") != text {
		t.Fatal("parts do not reassemble the original text")
	}
}

func TestFormatStageUpdate(t *testing.T) {
	got := formatStageUpdate(bus.DevTaskStageEvent{
		TaskID:    "abc123",
		OldStatus: "coding",
		NewStatus: "testing",
	})
	if got != "Dev task abc123: coding -> testing" {
		t.Fatalf("unexpected update: %q", got)
	}

	withDetail := formatStageUpdate(bus.DevTaskStageEvent{
		TaskID:    "abc123",
		OldStatus: "testing",
		NewStatus: "coding",
		Detail:    "gate retry 1",
	})
	if !strings.Contains(withDetail, "gate retry 1") {
		t.Fatalf("detail missing from update: %q", withDetail)
	}
}
