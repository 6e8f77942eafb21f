// Package router turns one user message into routed work: it splits the
// message into independent sub-tasks, classifies each into a complexity tier,
// binds a model and turn budget per tier, and runs the tasks sequentially
// with continuation and failover handling.
package router

import (
	"strings"
	"unicode"
)

// SubTask is one independent request extracted from a user message.
type SubTask struct {
	Index int
	Text  string
	Tier  Tier
}

// taskLabels mark an emoji-prefixed line as a task header rather than
// decoration.
var taskLabels = []string{"需求", "task", "requirement", "req "}

// circledDigits are the enumeration marks ①..⑩.
const circledDigits = "①②③④⑤⑥⑦⑧⑨⑩"

// SplitTasks breaks a message into sub-tasks. Emoji-labeled headers take
// priority: when any line is an emoji task header, only those lines start new
// tasks and numbered lines stay inside the current task as sub-items.
// Otherwise numbered markers (1. / 1) / 1、 / circled digits) and bullet
// lines each start a task. Text before the first header is kept as a
// preamble on the first task. A message with no markers is a single task.
func SplitTasks(message string) []SubTask {
	lines := strings.Split(message, "\n")

	emojiMode := false
	for _, line := range lines {
		if isEmojiTaskLine(line) {
			emojiMode = true
			break
		}
	}

	var (
		tasks    []string
		preamble []string
		current  []string
		started  bool
	)
	flush := func() {
		if started {
			tasks = append(tasks, strings.TrimSpace(strings.Join(current, "\n")))
			current = current[:0]
		}
	}

	for _, line := range lines {
		starts := false
		if emojiMode {
			starts = isEmojiTaskLine(line)
		} else {
			starts = isNumberedLine(line) || isBulletLine(line)
		}
		if starts {
			flush()
			started = true
			current = append(current, strings.TrimSpace(line))
			continue
		}
		if started {
			current = append(current, line)
		} else {
			preamble = append(preamble, line)
		}
	}
	flush()

	if len(tasks) == 0 {
		text := strings.TrimSpace(message)
		if text == "" {
			return nil
		}
		return []SubTask{{Index: 0, Text: text, Tier: ClassifyComplexity(text)}}
	}

	if pre := strings.TrimSpace(strings.Join(preamble, "\n")); pre != "" {
		tasks[0] = pre + "\n" + tasks[0]
	}

	out := make([]SubTask, 0, len(tasks))
	for i, text := range tasks {
		if text == "" {
			continue
		}
		out = append(out, SubTask{Index: i, Text: text, Tier: ClassifyComplexity(text)})
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

// isEmojiTaskLine reports whether a line opens with an emoji and carries a
// task label.
func isEmojiTaskLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	if !isEmoji(runes[0]) {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, label := range taskLabels {
		if strings.Contains(lower, label) {
			return true
		}
	}
	return false
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F000 && r <= 0x1F2FF: // mahjong, enclosed ideographs
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}

// isNumberedLine matches "1." / "1)" / "1、" prefixes and circled digits.
func isNumberedLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	if strings.ContainsRune(circledDigits, runes[0]) {
		return true
	}
	i := 0
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if i == 0 || i >= len(runes) {
		return false
	}
	switch runes[i] {
	case '.', ')', '、':
		return true
	}
	return false
}

func isBulletLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")
}
