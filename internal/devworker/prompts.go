package devworker

import (
	"fmt"
	"strings"

	"github.com/openintentos/openintent/internal/store"
	"github.com/openintentos/openintent/internal/tools"
)

const classifyPrompt = `Classify the user's request into exactly one of two categories and reply with only that single word:

- simple: a question, lookup, or small change that needs no branch or pull request
- development: a code change that should go through branch, tests, and pull request

Request:
%s`

const simpleSystemPrompt = `You are a software assistant answering a one-off request about this repository.
Do NOT create branches, commits, or pull requests. Answer directly; use the
available tools only to read or inspect.`

const codingSystemPromptHeader = `You are a careful software engineer working inside this repository.

Repository rules:
- Keep changes minimal and focused on the stated intent.
- Follow the existing code style, naming, and package layout.
- Never touch unrelated files, CI configuration, or dependency manifests
  unless the intent requires it.
- All code must compile and all existing tests must keep passing.

You are already on the correct feature branch. Make the changes with the
available tools, then stop; committing, testing, and the pull request are
handled for you.`

// codingPrompt assembles the system prompt for a coding round: the standing
// rules, the enumerated tool list, the previous gate failure verbatim when
// this is a retry, and any user messages that arrived mid-task.
func codingPrompt(registry *tools.Registry, failureText string, userMessages []store.DevTaskMessage) string {
	var b strings.Builder
	b.WriteString(codingSystemPromptHeader)

	b.WriteString("\n\nAvailable tools:\n")
	for _, def := range registry.AllTools() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}

	if failureText != "" {
		b.WriteString("\nThe previous attempt failed its quality gates. Fix the following before anything else:\n\n")
		b.WriteString(failureText)
		b.WriteString("\n")
	}

	if len(userMessages) > 0 {
		b.WriteString("\nAdditional instructions from the user since work started:\n")
		for _, m := range userMessages {
			b.WriteString("- " + m.Content + "\n")
		}
	}
	return b.String()
}
