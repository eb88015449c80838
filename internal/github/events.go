package github

import (
	"encoding/json"
	"fmt"
)

// Webhook event names this service consumes.
const (
	EventIssueComment = "issue_comment"
	EventPullRequest  = "pull_request"
)

// IssueComment is a comment as delivered in an issue_comment event.
type IssueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User *User  `json:"user,omitempty"`
}

// IssueCommentEvent is the payload of an issue_comment webhook event.
type IssueCommentEvent struct {
	Action     string        `json:"action"` // "created", "edited", "deleted"
	Issue      *Issue        `json:"issue"`
	Comment    *IssueComment `json:"comment"`
	Repository *Repository   `json:"repository"`
	Sender     *User         `json:"sender"`
}

// PullRequestEvent is the payload of a pull_request webhook event.
type PullRequestEvent struct {
	Action      string       `json:"action"` // "opened", "edited", "closed", ...
	Number      int          `json:"number"`
	PullRequest *PullRequest `json:"pull_request"`
	Repository  *Repository  `json:"repository"`
	Sender      *User        `json:"sender"`
}

// ParseIssueCommentEvent decodes and validates an issue_comment payload.
func ParseIssueCommentEvent(payload []byte) (*IssueCommentEvent, error) {
	var ev IssueCommentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse issue_comment payload: %w", err)
	}
	if ev.Issue == nil || ev.Comment == nil || ev.Repository == nil || ev.Repository.Owner == nil || ev.Sender == nil {
		return nil, fmt.Errorf("malformed issue_comment payload: missing issue, comment, repository, or sender")
	}
	return &ev, nil
}

// ParsePullRequestEvent decodes and validates a pull_request payload.
func ParsePullRequestEvent(payload []byte) (*PullRequestEvent, error) {
	var ev PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse pull_request payload: %w", err)
	}
	if ev.PullRequest == nil || ev.Repository == nil || ev.Repository.Owner == nil {
		return nil, fmt.Errorf("malformed pull_request payload: missing pull_request or repository")
	}
	return &ev, nil
}
