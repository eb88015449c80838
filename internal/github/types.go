// Package github provides clients and data types for the GitHub REST and
// GraphQL APIs.
//
// This package handles all interactions with the issue tracker: fetching
// issue and pull-request metadata, resolving a user's role, counting a
// user's open assigned issues, walking a pull request's closing-issue
// references, and issuing the write operations (assign, unassign, comment,
// draft conversion) that the command dispatcher needs.
package github

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultGraphQLEndpoint is the GitHub GraphQL API URL.
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// ClosingReferencesPageSize is the number of closing-issue references
	// requested per GraphQL page.
	ClosingReferencesPageSize = 10

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from a misbehaving pagination cursor.
	MaxPages = 1000
)

// Client provides methods to interact with the GitHub REST and GraphQL APIs
// for a single repository.
type Client struct {
	Token      string       // GitHub token
	Owner      string       // Repository owner (user or org)
	Repo       string       // Repository name
	BaseURL    string       // REST API base URL (default: https://api.github.com)
	GraphQLURL string       // GraphQL API URL (default: https://api.github.com/graphql)
	HTTPClient *http.Client // Optional custom HTTP client
}

// Issue represents an issue from the GitHub API.
type Issue struct {
	ID        int        `json:"id"`     // Global unique ID
	Number    int        `json:"number"` // Repository-scoped issue number
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"` // "open" or "closed"
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []Label    `json:"labels"`
	Assignee  *User      `json:"assignee,omitempty"`
	Assignees []User     `json:"assignees,omitempty"`
	User      *User      `json:"user,omitempty"` // Author
	HTMLURL   string     `json:"html_url"`
	PullRef   *PullRef   `json:"pull_request,omitempty"` // Non-nil if this is a PR
}

// PullRef indicates an issue is actually a pull request.
// The GitHub Issues API returns PRs alongside issues; this field
// distinguishes them.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// User represents a GitHub user.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type,omitempty"` // "User", "Organization", "Bot"
}

// Label represents a GitHub label.
type Label struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// PullRequest represents a pull request from the GitHub API.
type PullRequest struct {
	ID       int64      `json:"id"`
	NodeID   string     `json:"node_id"` // GraphQL node ID, used for draft conversion
	Number   int        `json:"number"`
	State    string     `json:"state"` // "open" or "closed"
	Title    string     `json:"title"`
	Draft    bool       `json:"draft"`
	Merged   bool       `json:"merged"`
	User     *User      `json:"user,omitempty"` // Author
	HTMLURL  string     `json:"html_url"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Repository represents a GitHub repository as delivered in event payloads.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
	Owner    *User  `json:"owner,omitempty"`
}

// ClosingReference is one issue that a pull request would close on merge,
// together with its current assignees.
type ClosingReference struct {
	ID        string // GraphQL node ID
	Number    int
	URL       string
	Assignees []User
}

// Role values resolved for a user, ordered from most to least privileged.
// Membership roles come from the org membership endpoint; collaborator and
// contributor come from the repository permission endpoint.
const (
	RoleAdmin        = "admin"
	RoleMember       = "member"
	RoleCollaborator = "collaborator"
	RoleContributor  = "contributor"
)

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}

// HasAssignee reports whether login is among the given assignees.
func HasAssignee(assignees []User, login string) bool {
	for _, a := range assignees {
		if a.Login == login {
			return true
		}
	}
	return false
}
