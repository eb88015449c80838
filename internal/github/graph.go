package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// queryClosingIssueReferences walks the closingIssuesReferences connection
// of a pull request, one cursor page at a time.
const queryClosingIssueReferences = `
query closingIssueReferences($owner: String!, $repo: String!, $prNumber: Int!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $prNumber) {
      id
      closingIssuesReferences(first: 10, after: $cursor) {
        nodes {
          id
          number
          url
          assignees(first: 100) {
            nodes {
              databaseId
              login
            }
          }
        }
        pageInfo {
          hasNextPage
          endCursor
        }
      }
    }
  }
}`

// mutationConvertToDraft flips a pull request back to draft. Draft state is
// not writable through the REST pulls endpoint, so this is the one write
// that goes through GraphQL.
const mutationConvertToDraft = `
mutation convertToDraft($id: ID!) {
  convertPullRequestToDraft(input: {pullRequestId: $id}) {
    pullRequest {
      id
      isDraft
    }
  }
}`

// graphQLRequest is the request body for a GraphQL call.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLResponse is a generic GraphQL response envelope.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// graphQLError is a single error from a GraphQL response.
type graphQLError struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// closingReferencesData mirrors the closingIssueReferences query response.
type closingReferencesData struct {
	Repository struct {
		PullRequest struct {
			ID                      string `json:"id"`
			ClosingIssuesReferences struct {
				Nodes []struct {
					ID        string `json:"id"`
					Number    int    `json:"number"`
					URL       string `json:"url"`
					Assignees struct {
						Nodes []struct {
							DatabaseID int64  `json:"databaseId"`
							Login      string `json:"login"`
						} `json:"nodes"`
					} `json:"assignees"`
				} `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"closingIssuesReferences"`
		} `json:"pullRequest"`
	} `json:"repository"`
}

// graphQL sends a GraphQL request and returns the raw data payload.
// GraphQL-level errors are surfaced as a single wrapped error.
func (c *Client) graphQL(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GraphQL API error: status %d", resp.StatusCode)
	}

	var gr graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", gr.Errors[0].Message)
	}

	return gr.Data, nil
}

// ClosingReferencesPager pages through the issues a pull request would close.
// Each Next call fetches one page; Done reports whether the upstream
// connection is exhausted. A pager is single-use; create a new one to
// restart the walk.
type ClosingReferencesPager struct {
	client   *Client
	prNumber int
	cursor   string
	started  bool
	done     bool
	pages    int
}

// ClosingReferences returns a pager over the issues that pull request
// prNumber would close on merge.
func (c *Client) ClosingReferences(prNumber int) *ClosingReferencesPager {
	return &ClosingReferencesPager{client: c, prNumber: prNumber}
}

// Done reports whether all pages have been consumed.
func (p *ClosingReferencesPager) Done() bool {
	return p.done
}

// Next fetches the next page of closing references. It returns an empty
// slice once the connection is exhausted. Any page failure aborts the whole
// resolution; callers must not treat pages fetched so far as a result.
func (p *ClosingReferencesPager) Next(ctx context.Context) ([]ClosingReference, error) {
	if p.done {
		return nil, nil
	}
	if p.pages >= MaxPages {
		return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
	}

	variables := map[string]interface{}{
		"owner":    p.client.Owner,
		"repo":     p.client.Repo,
		"prNumber": p.prNumber,
	}
	if p.started && p.cursor != "" {
		variables["cursor"] = p.cursor
	}

	data, err := p.client.graphQL(ctx, queryClosingIssueReferences, variables)
	if err != nil {
		p.done = true
		return nil, fmt.Errorf("failed to fetch closing references for PR #%d: %w", p.prNumber, err)
	}

	var parsed closingReferencesData
	if err := json.Unmarshal(data, &parsed); err != nil {
		p.done = true
		return nil, fmt.Errorf("failed to parse closing references response: %w", err)
	}

	conn := parsed.Repository.PullRequest.ClosingIssuesReferences
	refs := make([]ClosingReference, 0, len(conn.Nodes))
	for _, node := range conn.Nodes {
		ref := ClosingReference{
			ID:     node.ID,
			Number: node.Number,
			URL:    node.URL,
		}
		for _, a := range node.Assignees.Nodes {
			ref.Assignees = append(ref.Assignees, User{ID: a.DatabaseID, Login: a.Login})
		}
		refs = append(refs, ref)
	}

	p.started = true
	p.pages++
	if conn.PageInfo.HasNextPage {
		p.cursor = conn.PageInfo.EndCursor
	} else {
		p.done = true
	}

	return refs, nil
}

// ClosingIssueReferences collects every closing reference of a pull request
// across all pages.
func (c *Client) ClosingIssueReferences(ctx context.Context, prNumber int) ([]ClosingReference, error) {
	pager := c.ClosingReferences(prNumber)
	var all []ClosingReference
	for !pager.Done() {
		refs, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, refs...)
	}
	return all, nil
}

// ConvertPullRequestToDraft converts the pull request with the given GraphQL
// node ID back to a draft.
func (c *Client) ConvertPullRequestToDraft(ctx context.Context, nodeID string) error {
	_, err := c.graphQL(ctx, mutationConvertToDraft, map[string]interface{}{"id": nodeID})
	if err != nil {
		return fmt.Errorf("failed to convert pull request to draft: %w", err)
	}
	return nil
}
