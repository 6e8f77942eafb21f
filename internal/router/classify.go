package router

import "strings"

// Tier is the complexity class the model choice keys on.
type Tier string

const (
	TierLight  Tier = "light"
	TierMedium Tier = "medium"
	TierHeavy  Tier = "heavy"
)

// heavyKeywords push a task to the primary model with a large turn budget.
var heavyKeywords = []string{
	"code", "implement", "build", "debug", "refactor", "deploy",
	"fix bug", "fix the bug", "write a script", "write code",
	"写代码", "实现", "开发", "调试", "重构", "修复",
}

// lightKeywords identify greetings and short questions that a free fast
// model can answer.
var lightKeywords = []string{
	"hello", "hi ", "hey", "what is", "who is", "what's", "thanks", "thank you",
	"你好", "您好", "谢谢", "是什么", "什么是",
}

// ClassifyComplexity buckets a task by keyword. Coding and engineering verbs
// are heavy, greetings and lookups light, everything else medium.
func ClassifyComplexity(text string) Tier {
	lower := strings.ToLower(text)
	for _, kw := range heavyKeywords {
		if strings.Contains(lower, kw) {
			return TierHeavy
		}
	}
	for _, kw := range lightKeywords {
		if strings.Contains(lower, kw) {
			return TierLight
		}
	}
	return TierMedium
}
