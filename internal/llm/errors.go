package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse marks a payload the client could not parse.
var ErrInvalidResponse = errors.New("invalid provider response")

// ProviderError is a non-success answer from the provider API.
type ProviderError struct {
	Family Family
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s provider error (status %d): %s", e.Family, e.Status, body)
}

// rateLimitSignatures are matched case-insensitively against provider error
// text when the status alone is inconclusive.
var rateLimitSignatures = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota exceeded",
	"resource_exhausted",
	"overloaded",
}

// IsRateLimit reports whether err describes provider throttling, which the
// router treats as eligible for a tier-up retry.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Status == 429 {
			return true
		}
		body := strings.ToLower(pe.Body)
		for _, sig := range rateLimitSignatures {
			if strings.Contains(body, sig) {
				return true
			}
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
