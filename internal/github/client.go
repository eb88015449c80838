package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// NewClient creates a new GitHub client for a repository.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:      token,
		Owner:      owner,
		Repo:       repo,
		BaseURL:    DefaultAPIEndpoint,
		GraphQLURL: DefaultGraphQLEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	out := *c
	out.HTTPClient = httpClient
	return &out
}

// WithBaseURL returns a new client with custom REST and GraphQL endpoints.
// The GraphQL URL is derived as baseURL+"/graphql", which matches both test
// servers and GitHub Enterprise layouts.
func (c *Client) WithBaseURL(baseURL string) *Client {
	out := *c
	out.BaseURL = baseURL
	out.GraphQLURL = baseURL + "/graphql"
	return &out
}

// ForRepo returns a new client bound to a different repository.
// The webhook server uses this to target whichever repository an event
// was delivered for.
func (c *Client) ForRepo(owner, repo string) *Client {
	out := *c
	out.Owner = owner
	out.Repo = repo
	return &out
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

// apiError is returned for non-2xx REST responses so callers can
// distinguish "not found" from transport failures.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Body, e.StatusCode)
}

// IsNotFound reports whether err is a GitHub 404 response.
func IsNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// doRequest performs an HTTP request with authentication and retry logic.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		jsonBody = b
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		const maxResponseSize = 50 * 1024 * 1024
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response (attempt %d/%d): %w", attempt+1, MaxRetries+1, err)
			continue
		}

		// Handle rate limiting (GitHub uses 403 with X-RateLimit-Remaining: 0, or 429)
		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
			delay := RetryDelay * time.Duration(1<<attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = fmt.Errorf("rate limited (attempt %d/%d)", attempt+1, MaxRetries+1)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		return respBody, resp.Header, nil
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}

// FetchIssue retrieves a single issue by its number.
func (c *Client) FetchIssue(ctx context.Context, number int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}

	return &issue, nil
}

// AddAssignees assigns the given logins to an issue.
func (c *Client) AddAssignees(ctx context.Context, number int, logins []string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/assignees", nil)
	reqBody := map[string]interface{}{"assignees": logins}
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody); err != nil {
		return fmt.Errorf("failed to assign %v to issue #%d: %w", logins, number, err)
	}
	return nil
}

// RemoveAssignees unassigns the given logins from an issue.
func (c *Client) RemoveAssignees(ctx context.Context, number int, logins []string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/assignees", nil)
	reqBody := map[string]interface{}{"assignees": logins}
	if _, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, reqBody); err != nil {
		return fmt.Errorf("failed to unassign %v from issue #%d: %w", logins, number, err)
	}
	return nil
}

// CreateComment posts a comment on an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	reqBody := map[string]interface{}{"body": body}
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, reqBody); err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", number, err)
	}
	return nil
}

// membershipResponse is the org membership endpoint response.
type membershipResponse struct {
	State string `json:"state"` // "active" or "pending"
	Role  string `json:"role"`  // "admin" or "member"
}

// permissionResponse is the collaborator permission endpoint response.
type permissionResponse struct {
	Permission string `json:"permission"` // "admin", "write", "read", "none"
}

// UserRole resolves a user's role for eligibility checks. Org membership is
// consulted first; a user who is not an org member falls back to their
// repository collaborator permission. Users with only read access (or none)
// are contributors.
func (c *Client) UserRole(ctx context.Context, login string) (string, error) {
	urlStr := c.buildURL("/orgs/"+c.Owner+"/memberships/"+login, nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err == nil {
		var m membershipResponse
		if err := json.Unmarshal(respBody, &m); err != nil {
			return "", fmt.Errorf("failed to parse membership response: %w", err)
		}
		if m.State == "active" {
			switch m.Role {
			case "admin":
				return RoleAdmin, nil
			case "member":
				return RoleMember, nil
			}
		}
	} else if !IsNotFound(err) {
		return "", fmt.Errorf("failed to fetch membership for %s: %w", login, err)
	}

	urlStr = c.buildURL("/repos/"+c.repoPath()+"/collaborators/"+login+"/permission", nil)
	respBody, _, err = c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		if IsNotFound(err) {
			return RoleContributor, nil
		}
		return "", fmt.Errorf("failed to fetch permission for %s: %w", login, err)
	}

	var p permissionResponse
	if err := json.Unmarshal(respBody, &p); err != nil {
		return "", fmt.Errorf("failed to parse permission response: %w", err)
	}
	switch p.Permission {
	case "admin":
		return RoleAdmin, nil
	case "write":
		return RoleCollaborator, nil
	default:
		return RoleContributor, nil
	}
}

// searchResponse is the issue search endpoint response; only the total
// matters for concurrency counting.
type searchResponse struct {
	TotalCount int `json:"total_count"`
}

// CountAssignedIssues returns how many open issues are currently assigned to
// login within the given scope. scope is "repo", "org", or "network"; for
// network scope, orgs lists every organization in the deployment's network
// (falling back to the client's owner when empty).
func (c *Client) CountAssignedIssues(ctx context.Context, login, scope string, orgs []string) (int, error) {
	terms := []string{"assignee:" + login, "is:issue", "is:open"}
	switch scope {
	case "repo":
		terms = append(terms, "repo:"+c.repoPath())
	case "network":
		if len(orgs) == 0 {
			orgs = []string{c.Owner}
		}
		for _, org := range orgs {
			terms = append(terms, "org:"+org)
		}
	default: // org
		terms = append(terms, "org:"+c.Owner)
	}

	params := map[string]string{
		"q":        strings.Join(terms, " "),
		"per_page": "1",
	}
	urlStr := c.buildURL("/search/issues", params)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned issues for %s: %w", login, err)
	}

	var sr searchResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return 0, fmt.Errorf("failed to parse search response: %w", err)
	}

	return sr.TotalCount, nil
}
