package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/github"
)

var testSecret = []byte("hook-secret")

type stubWallet struct{ address string }

func (s stubWallet) GetWalletAddress(ctx context.Context, userID int64) (string, error) {
	return s.address, nil
}

// fakeAPI is a minimal GitHub REST stand-in covering the endpoints a
// /start flow touches. It records write calls for assertions.
type fakeAPI struct {
	assigneePosts []string // request paths
	commentBodies []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/acme/memberships/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"active","role":"member"}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":0}`)
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/{number}/assignees", func(w http.ResponseWriter, r *http.Request) {
		f.assigneePosts = append(f.assigneePosts, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/{number}/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.commentBodies = append(f.commentBodies, body.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	return mux
}

// newTestServer wires a webhook server against a fake GitHub API.
func newTestServer(t *testing.T, mutate func(*config.Settings)) (*Server, *fakeAPI) {
	t.Helper()

	api := &fakeAPI{}
	upstream := httptest.NewServer(api.handler())
	t.Cleanup(upstream.Close)

	settings := config.DefaultSettings()
	if mutate != nil {
		mutate(settings)
	}

	s := NewServer(ServerConfig{
		Client:   github.NewClient("test-token", "", "").WithBaseURL(upstream.URL),
		Wallet:   stubWallet{address: "0xabc"},
		Settings: settings,
		Secret:   testSecret,
		Logger:   slog.New(slog.DiscardHandler),
	})
	return s, api
}

// deliver posts a signed webhook delivery and returns the response.
func deliver(t *testing.T, s *Server, event string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "d-1")
	req.Header.Set("X-Hub-Signature-256", SignPayload(payload, testSecret))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func issueCommentPayload(t *testing.T, body string) []byte {
	t.Helper()
	created := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{
		"action": "created",
		"issue": {
			"number": 42,
			"state": "open",
			"created_at": %q,
			"labels": [{"name": "Time: <1 Hour"}]
		},
		"comment": {"id": 1, "body": %q},
		"repository": {"name": "widgets", "owner": {"login": "acme"}},
		"sender": {"id": 7, "login": "alice"}
	}`, created, body)
	return []byte(payload)
}

func TestDeliveryRejectsBadSignature(t *testing.T) {
	s, _ := newTestServer(t, nil)
	payload := issueCommentPayload(t, "/start")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", github.EventIssueComment)
	req.Header.Set("X-Hub-Signature-256", SignPayload(payload, []byte("wrong-secret")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDeliveryUnknownEventAcknowledged(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := deliver(t, s, "push", []byte(`{}`))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestDeliveryMalformedPayload(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := deliver(t, s, github.EventIssueComment, []byte(`{"action":"created"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveryStartCommand(t *testing.T) {
	s, api := newTestServer(t, nil)

	rec := deliver(t, s, github.EventIssueComment, issueCommentPayload(t, "/start"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Output != "Task assigned successfully" {
		t.Errorf("output = %q, want assignment confirmation", resp.Output)
	}
	if len(api.assigneePosts) != 1 || !strings.Contains(api.assigneePosts[0], "/issues/42/assignees") {
		t.Errorf("assignee posts = %v, want one for issue 42", api.assigneePosts)
	}
	if len(api.commentBodies) != 1 || !strings.Contains(api.commentBodies[0], "+ Task assigned") {
		t.Errorf("comments = %v, want one confirmation", api.commentBodies)
	}
}

func TestDeliveryRejectionIsAcknowledged(t *testing.T) {
	// Empty wallet with the default wallet requirement: the delivery is
	// answered 200 so the hub does not redeliver, with the rejection in
	// the body and a comment posted upstream.
	s, api := newTestServer(t, nil)
	s.wallet = stubWallet{address: ""}

	rec := deliver(t, s, github.EventIssueComment, issueCommentPayload(t, "/start"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !strings.Contains(resp.Error, "wallet") {
		t.Errorf("error = %q, want the wallet message", resp.Error)
	}
	if len(api.assigneePosts) != 0 {
		t.Error("rejected start must not assign")
	}
	if len(api.commentBodies) != 1 {
		t.Errorf("comments = %v, want exactly one rejection", api.commentBodies)
	}
}

func TestDeliveryDisabledCommand(t *testing.T) {
	s, api := newTestServer(t, func(c *config.Settings) { c.Enabled = false })

	rec := deliver(t, s, github.EventIssueComment, issueCommentPayload(t, "/stop"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	want := "The '/stop' command is disabled for this repository."
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body = %s, want it to carry %q", rec.Body, want)
	}
	if len(api.commentBodies) != 1 || !strings.Contains(api.commentBodies[0], want) {
		t.Errorf("comments = %v, want the disabled notice", api.commentBodies)
	}
}

func TestDeliveryNonCommandComment(t *testing.T) {
	s, api := newTestServer(t, nil)

	rec := deliver(t, s, github.EventIssueComment, issueCommentPayload(t, "thanks, looks good"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(api.assigneePosts) != 0 || len(api.commentBodies) != 0 {
		t.Error("non-command comment must not call upstream")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body)
	}
}
