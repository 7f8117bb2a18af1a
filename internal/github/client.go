// Package github is a minimal GitHub REST client covering the operations
// Sidekick needs: comments, reactions, pull requests, org membership, and
// repository metadata.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const githubAPIURL = "https://api.github.com"

// Client is a GitHub API client.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string // for testing - defaults to githubAPIURL
}

// NewClient creates a new GitHub client authenticated with the given token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: githubAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a new GitHub client with a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// doRequest performs an HTTP request against the GitHub API.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// GetRepository fetches repository metadata, including the default branch.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	var repository Repository
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &repository); err != nil {
		return nil, err
	}
	return &repository, nil
}

// GetIssue fetches an issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	var issue Issue
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// AddComment adds a comment to an issue or pull request.
func (c *Client) AddComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	return WithRetry(ctx, func() (*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
		reqBody := map[string]string{"body": body}
		var comment Comment
		if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &comment); err != nil {
			return nil, err
		}
		return &comment, nil
	}, DefaultRetryOptions())
}

// UpdateComment replaces the body of an existing issue comment.
func (c *Client) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) (*Comment, error) {
	return WithRetry(ctx, func() (*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID)
		reqBody := map[string]string{"body": body}
		var comment Comment
		if err := c.doRequest(ctx, http.MethodPatch, path, reqBody, &comment); err != nil {
			return nil, err
		}
		return &comment, nil
	}, DefaultRetryOptions())
}

// CreateCommentReaction adds a reaction to an issue comment.
func (c *Client) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (*Reaction, error) {
	return WithRetry(ctx, func() (*Reaction, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d/reactions", owner, repo, commentID)
		reqBody := map[string]string{"content": content}
		var reaction Reaction
		if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &reaction); err != nil {
			return nil, err
		}
		return &reaction, nil
	}, DefaultRetryOptions())
}

// CreateIssueReaction adds a reaction to an issue body.
func (c *Client) CreateIssueReaction(ctx context.Context, owner, repo string, number int, content string) (*Reaction, error) {
	return WithRetry(ctx, func() (*Reaction, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/reactions", owner, repo, number)
		reqBody := map[string]string{"content": content}
		var reaction Reaction
		if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &reaction); err != nil {
			return nil, err
		}
		return &reaction, nil
	}, DefaultRetryOptions())
}

// CreatePullRequest creates a new pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, input *PullRequestInput) (*PullRequest, error) {
	return WithRetry(ctx, func() (*PullRequest, error) {
		path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
		var result PullRequest
		if err := c.doRequest(ctx, http.MethodPost, path, input, &result); err != nil {
			return nil, err
		}
		return &result, nil
	}, DefaultRetryOptions())
}

// IsOrgMember checks whether a user is a member of an organization.
// GitHub returns 204 for members and 404 for non-members; any other failure
// is reported as an error so callers can decide the policy.
func (c *Client) IsOrgMember(ctx context.Context, org, user string) (bool, error) {
	path := fmt.Sprintf("/orgs/%s/members/%s", url.PathEscape(org), url.PathEscape(user))
	err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err == nil {
		return true, nil
	}
	if isNotFoundError(err) {
		return false, nil
	}
	return false, err
}

// ListLanguages returns the languages detected in a repository, keyed by
// language name with byte counts as values.
func (c *Client) ListLanguages(ctx context.Context, owner, repo string) (map[string]int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/languages", owner, repo)
	var languages map[string]int64
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

// PathExists reports whether a file or directory exists in the repository at
// the given path on the default branch.
func (c *Client) PathExists(ctx context.Context, owner, repo, path string) (bool, error) {
	// Escape each segment separately so slashes in paths like
	// .github/workflows survive as path separators.
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, strings.Join(segments, "/"))
	err := c.doRequest(ctx, http.MethodGet, apiPath, nil, nil)
	if err == nil {
		return true, nil
	}
	if isNotFoundError(err) {
		return false, nil
	}
	return false, err
}

// isNotFoundError checks if an error is a 404 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) >= 21 && errStr[:21] == "API error (status 404"
}
