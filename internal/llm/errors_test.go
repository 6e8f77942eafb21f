package llm_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/openintentos/openintent/internal/llm"
)

func TestProviderErrorTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 1000)
	err := &llm.ProviderError{Family: llm.FamilyOpenAI, Status: 500, Body: long}

	msg := err.Error()
	if !strings.Contains(msg, "status 500") {
		t.Fatalf("msg = %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Fatalf("msg not truncated: %d chars", len(msg))
	}
	if len(msg) > 400 {
		t.Fatalf("msg too long: %d chars", len(msg))
	}
}

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&llm.ProviderError{Status: 429, Body: "slow down"}, true},
		{&llm.ProviderError{Status: 500, Body: "internal"}, false},
		{&llm.ProviderError{Status: 400, Body: "Rate limit reached for requests"}, true},
		{&llm.ProviderError{Status: 503, Body: "model overloaded"}, true},
		{&llm.ProviderError{Status: 403, Body: "RESOURCE_EXHAUSTED: quota exceeded"}, true},
		{errors.New("too many requests, retry later"), true},
		{errors.New("connection refused"), false},
		{fmt.Errorf("wrapped: %w", &llm.ProviderError{Status: 429}), true},
	}
	for _, tc := range cases {
		if got := llm.IsRateLimit(tc.err); got != tc.want {
			t.Errorf("IsRateLimit(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
