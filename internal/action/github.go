package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/video-refinery/internal/types"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

const maxIssueTitle = 200

// GitHubIssues opens issues through the GitHub REST API.
type GitHubIssues struct {
	baseURL string
	repo    string
	token   string
	client  *http.Client
}

// NewGitHubIssues creates an issue creator for repo ("owner/name").
func NewGitHubIssues(token, repo string, client *http.Client) *GitHubIssues {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubIssues{baseURL: DefaultGitHubAPI, repo: repo, token: token, client: client}
}

// WithBaseURL points the client at another API host.
func (g *GitHubIssues) WithBaseURL(baseURL string) *GitHubIssues {
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type issueResponse struct {
	HTMLURL string `json:"html_url"`
	Number  int    `json:"number"`
}

// CreateIssue opens an issue summarizing the analysis and returns its URL.
func (g *GitHubIssues) CreateIssue(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(issueRequest{
		Title:  issueTitle(req.Result),
		Body:   IssueBody(req),
		Labels: []string{"video-refinery", string(req.TaskType)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal issue: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/issues", g.baseURL, g.repo)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create issue request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to create issue: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var created issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode issue response: %w", err)
	}
	return created.HTMLURL, nil
}

func issueTitle(result *types.AnalysisResult) string {
	title := "Video analysis: " + result.Summary.Title
	if r := []rune(title); len(r) > maxIssueTitle {
		title = string(r[:maxIssueTitle-3]) + "..."
	}
	return title
}

// IssueBody renders the analysis as GitHub-flavored markdown.
func IssueBody(req Request) string {
	r := req.Result
	var sb strings.Builder

	fmt.Fprintf(&sb, "**Source:** %s\n**Job:** `%s`\n\n", req.SourceURL, req.JobID)
	if r.Summary.Description != "" {
		fmt.Fprintf(&sb, "## Summary\n\n%s\n\n", r.Summary.Description)
	}

	if len(r.GeneratedWorkflow.Prerequisites) > 0 {
		sb.WriteString("## Prerequisites\n\n")
		for _, p := range r.GeneratedWorkflow.Prerequisites {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Workflow\n\n")
	for _, step := range r.GeneratedWorkflow.Steps {
		fmt.Fprintf(&sb, "- [ ] %d. %s\n", step.StepNumber, step.Action)
		if step.Command != "" {
			fmt.Fprintf(&sb, "  ```\n  %s\n  ```\n", step.Command)
		}
	}

	if len(r.CodeArtifacts) > 0 {
		sb.WriteString("\n## Code\n")
		for _, a := range r.CodeArtifacts {
			fmt.Fprintf(&sb, "\n### %s\n\n%s\n\n```%s\n%s\n```\n", a.Filename, a.Purpose, a.Language, a.Code)
		}
	}
	return sb.String()
}
