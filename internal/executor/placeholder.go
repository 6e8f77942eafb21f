package executor

import (
	"regexp"
	"strconv"
)

// placeholderRe matches {{step_N.output}} tokens inside string values.
var placeholderRe = regexp.MustCompile(`\{\{step_(\d+)\.output\}\}`)

// resolvePlaceholders walks a step's arguments and substitutes recorded step
// outputs into string leaves. Non-string scalars pass through untouched, and
// a placeholder referring to a step with no recorded output stays literal.
func resolvePlaceholders(value any, outputs map[int]string) any {
	switch v := value.(type) {
	case string:
		return placeholderRe.ReplaceAllStringFunc(v, func(match string) string {
			sub := placeholderRe.FindStringSubmatch(match)
			idx, err := strconv.Atoi(sub[1])
			if err != nil {
				return match
			}
			out, ok := outputs[idx]
			if !ok {
				return match
			}
			return out
		})
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for k, elem := range v {
			resolved[k] = resolvePlaceholders(elem, outputs)
		}
		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, elem := range v {
			resolved[i] = resolvePlaceholders(elem, outputs)
		}
		return resolved
	default:
		return value
	}
}

// resolveArguments applies resolvePlaceholders to a whole argument map.
func resolveArguments(args map[string]any, outputs map[int]string) map[string]any {
	if args == nil {
		return nil
	}
	resolved := resolvePlaceholders(map[string]any(args), outputs)
	return resolved.(map[string]any)
}

// referencedSteps returns the step indices a value's placeholders mention.
func referencedSteps(value any) []int {
	var out []int
	walkStrings(value, func(s string) {
		for _, match := range placeholderRe.FindAllStringSubmatch(s, -1) {
			if idx, err := strconv.Atoi(match[1]); err == nil {
				out = append(out, idx)
			}
		}
	})
	return out
}

func walkStrings(value any, fn func(string)) {
	switch v := value.(type) {
	case string:
		fn(v)
	case map[string]any:
		for _, elem := range v {
			walkStrings(elem, fn)
		}
	case []any:
		for _, elem := range v {
			walkStrings(elem, fn)
		}
	}
}
