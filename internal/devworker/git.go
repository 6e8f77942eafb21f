package devworker

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"
)

// ShortHash returns the first 8 hex characters of a 64-bit FNV-1a hash of
// text. Deterministic across runs, so one intent always maps to one branch.
func ShortHash(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%016x", h.Sum64())[:8]
}

// BranchName derives the feature branch for an intent.
func BranchName(intent string) string {
	return "feat/dev-" + ShortHash(intent)
}

// CommitMessage derives the commit subject: "feat: " plus the first 60
// characters of the intent.
func CommitMessage(intent string) string {
	return "feat: " + truncateRunes(intent, 60)
}

// PullRequestBody renders the PR body with the agent's summary (bounded to
// 1000 bytes on a UTF-8 boundary), the original intent, and the task id.
func PullRequestBody(summary, intent, taskID string) string {
	return fmt.Sprintf("## Summary\n\n%s\n\n## Intent\n\n%s\n\n## Task ID\n\n`%s`",
		TruncateUTF8(summary, 1000), intent, taskID)
}

// RepoRef is the owner/name pair parsed from an origin URL.
type RepoRef struct {
	Owner string
	Name  string
}

// ParseOriginURL extracts owner and repository from a git origin URL in
// either SSH (git@host:owner/repo.git) or HTTPS (https://host/owner/repo)
// form.
func ParseOriginURL(origin string) (RepoRef, error) {
	origin = strings.TrimSpace(origin)

	var path string
	switch {
	case strings.HasPrefix(origin, "git@"):
		_, rest, ok := strings.Cut(origin, ":")
		if !ok {
			return RepoRef{}, fmt.Errorf("cannot parse origin URL %q", origin)
		}
		path = rest
	case strings.HasPrefix(origin, "https://"):
		rest := strings.TrimPrefix(origin, "https://")
		_, after, ok := strings.Cut(rest, "/")
		if !ok {
			return RepoRef{}, fmt.Errorf("cannot parse origin URL %q", origin)
		}
		path = after
	default:
		return RepoRef{}, fmt.Errorf("cannot parse origin URL %q", origin)
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	owner, name, ok := strings.Cut(path, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("cannot parse origin URL %q", origin)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// TruncateUTF8 bounds s to max bytes, backing up to a rune boundary, and
// appends an ellipsis marker when anything was cut.
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
