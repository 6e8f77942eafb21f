package router

import "github.com/openintentos/openintent/internal/llm"

// Endpoints for the cheap-tier fallback providers.
const (
	googleOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	deepseekBaseURL     = "https://api.deepseek.com/v1"
)

// ModelChoice binds a tier to a concrete provider configuration and turn
// budget. An empty APIKey means "keep the client's current key"; an empty
// BaseURL means "stay on the primary binding".
type ModelChoice struct {
	Family   llm.Family
	BaseURL  string
	Model    string
	APIKey   string
	MaxTurns int
	Primary  bool
}

// Keys holds the optional cheap-tier API keys. Missing keys disable their
// providers and bump the tier toward the primary model.
type Keys struct {
	Gemini   string
	DeepSeek string
}

// ModelForTier picks the provider binding for a tier.
//
// Light prefers the free fast Gemini model via Google's OpenAI-compatible
// endpoint, then DeepSeek; Medium prefers DeepSeek; Heavy always runs on the
// primary model. Whenever the preferred keys are absent the task falls back
// to the primary binding with the tier's turn budget.
func ModelForTier(tier Tier, keys Keys) ModelChoice {
	switch tier {
	case TierLight:
		if keys.Gemini != "" {
			return ModelChoice{
				Family:   llm.FamilyOpenAI,
				BaseURL:  googleOpenAIBaseURL,
				Model:    "gemini-2.5-flash",
				APIKey:   keys.Gemini,
				MaxTurns: 5,
			}
		}
		if keys.DeepSeek != "" {
			return ModelChoice{
				Family:   llm.FamilyOpenAI,
				BaseURL:  deepseekBaseURL,
				Model:    "deepseek-chat",
				APIKey:   keys.DeepSeek,
				MaxTurns: 5,
			}
		}
		return ModelChoice{Primary: true, MaxTurns: 5}
	case TierMedium:
		if keys.DeepSeek != "" {
			return ModelChoice{
				Family:   llm.FamilyOpenAI,
				BaseURL:  deepseekBaseURL,
				Model:    "deepseek-chat",
				APIKey:   keys.DeepSeek,
				MaxTurns: 15,
			}
		}
		return ModelChoice{Primary: true, MaxTurns: 10}
	default:
		return ModelChoice{Primary: true, MaxTurns: 25}
	}
}
