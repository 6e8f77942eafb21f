package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openintentos/openintent/internal/llm"
)

// GitHubAdapter is a thin wrapper over the GitHub REST API covering the two
// operations the dev worker needs: opening and merging pull requests.
type GitHubAdapter struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewGitHubAdapter builds the adapter. baseURL defaults to the public API.
func NewGitHubAdapter(token, baseURL string) *GitHubAdapter {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubAdapter{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GitHubAdapter) ID() string   { return "github" }
func (g *GitHubAdapter) Type() string { return "source_control" }

func (g *GitHubAdapter) Connect(ctx context.Context) error    { return nil }
func (g *GitHubAdapter) Disconnect(ctx context.Context) error { return nil }

func (g *GitHubAdapter) HealthCheck(ctx context.Context) error {
	if g.token == "" {
		return fmt.Errorf("github token not configured")
	}
	return nil
}

func (g *GitHubAdapter) RequiredAuth() string { return "github" }

func (g *GitHubAdapter) Tools() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        "create_pull_request",
			Description: "Open a pull request and return its URL.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"owner": {"type": "string"},
					"repo": {"type": "string"},
					"title": {"type": "string"},
					"body": {"type": "string"},
					"head": {"type": "string", "description": "Source branch"},
					"base": {"type": "string", "description": "Target branch"}
				},
				"required": ["owner", "repo", "title", "head", "base"]
			}`),
		},
		{
			Name:        "merge_pull_request",
			Description: "Merge an open pull request by number.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"owner": {"type": "string"},
					"repo": {"type": "string"},
					"number": {"type": "integer"}
				},
				"required": ["owner", "repo", "number"]
			}`),
		},
	}
}

func (g *GitHubAdapter) Execute(ctx context.Context, toolName string, args map[string]any) (string, error) {
	switch toolName {
	case "create_pull_request":
		return g.createPullRequest(ctx, args)
	case "merge_pull_request":
		return g.mergePullRequest(ctx, args)
	default:
		return "", &ExecError{Tool: toolName, Reason: "unknown tool"}
	}
}

func (g *GitHubAdapter) createPullRequest(ctx context.Context, args map[string]any) (string, error) {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	payload := map[string]any{
		"title": args["title"],
		"body":  args["body"],
		"head":  args["head"],
		"base":  args["base"],
	}
	var result struct {
		HTMLURL string `json:"html_url"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := g.call(ctx, http.MethodPost, path, payload, &result); err != nil {
		return "", &ExecError{Tool: "create_pull_request", Reason: "github api call failed", Err: err}
	}
	return result.HTMLURL, nil
}

func (g *GitHubAdapter) mergePullRequest(ctx context.Context, args map[string]any) (string, error) {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	number, _ := args["number"].(float64)
	var result struct {
		Merged  bool   `json:"merged"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, int(number))
	if err := g.call(ctx, http.MethodPut, path, map[string]any{}, &result); err != nil {
		return "", &ExecError{Tool: "merge_pull_request", Reason: "github api call failed", Err: err}
	}
	if !result.Merged {
		return "", &ExecError{Tool: "merge_pull_request", Reason: result.Message}
	}
	return "merged", nil
}

func (g *GitHubAdapter) call(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("github api status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
