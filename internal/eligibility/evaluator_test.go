package eligibility

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/github"
)

type fakeWallet struct {
	address string
	err     error
	calls   int
}

func (f *fakeWallet) GetWalletAddress(ctx context.Context, userID int64) (string, error) {
	f.calls++
	return f.address, f.err
}

type fakeTracker struct {
	role       string
	roleErr    error
	count      int
	countErr   error
	countCalls int
}

func (f *fakeTracker) UserRole(ctx context.Context, login string) (string, error) {
	return f.role, f.roleErr
}

func (f *fakeTracker) CountAssignedIssues(ctx context.Context, login, scope string, orgs []string) (int, error) {
	f.countCalls++
	return f.count, f.countErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openIssue(labels ...string) *github.Issue {
	created := time.Now().Add(-time.Hour)
	issue := &github.Issue{Number: 1, State: "open", CreatedAt: &created}
	for _, name := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: name})
	}
	return issue
}

func TestCanStartRejectsEmptyWalletWhenRequired(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = true
	tracker := &fakeTracker{role: github.RoleContributor}
	eval := New(tracker, &fakeWallet{address: ""}, settings, discardLogger())

	_, err := eval.CanStart(context.Background(), github.User{ID: 1, Login: "alice"}, openIssue("Time: <1 Hour"))

	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("CanStart() error = %v, want Rejection", err)
	}
	if rej.Kind != KindWalletMissing {
		t.Errorf("Kind = %q, want %q", rej.Kind, KindWalletMissing)
	}
	if rej.Message != settings.EmptyWalletText {
		t.Errorf("Message = %q, want configured empty wallet text", rej.Message)
	}
	// The wallet rule short-circuits before any tracker call.
	if tracker.countCalls != 0 {
		t.Errorf("CountAssignedIssues called %d times, want 0", tracker.countCalls)
	}
}

func TestCanStartAllowsEmptyWalletWhenNotRequired(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	eval := New(&fakeTracker{role: github.RoleContributor}, &fakeWallet{address: ""}, settings, discardLogger())

	res, err := eval.CanStart(context.Background(), github.User{ID: 1, Login: "alice"}, openIssue("Time: <1 Hour"))
	if err != nil {
		t.Fatalf("CanStart() error = %v", err)
	}
	if res.Wallet != "" {
		t.Errorf("Wallet = %q, want empty", res.Wallet)
	}
}

func TestCanStartRequiredLabels(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	settings.RequiredLabelsToStart = []config.RequiredLabel{
		{Name: "Priority: 1 (Normal)", Roles: []string{"collaborator"}},
		{Name: "Priority: 2 (Medium)", Roles: []string{"collaborator", "member"}},
	}
	if err := settings.Normalize(); err != nil {
		t.Fatal(err)
	}

	wantList := "`Priority: 1 (Normal)`, `Priority: 2 (Medium)`"

	t.Run("issue without any required label", func(t *testing.T) {
		eval := New(&fakeTracker{role: github.RoleCollaborator}, &fakeWallet{}, settings, discardLogger())
		_, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, openIssue("Time: <1 Hour"))

		rej, ok := AsRejection(err)
		if !ok || rej.Kind != KindLabelRoleMismatch {
			t.Fatalf("error = %v, want label/role rejection", err)
		}
		if !strings.Contains(rej.Message, wantList) {
			t.Errorf("Message = %q, want it to enumerate %s", rej.Message, wantList)
		}
	})

	t.Run("role not allowed for the carried label", func(t *testing.T) {
		eval := New(&fakeTracker{role: github.RoleContributor}, &fakeWallet{}, settings, discardLogger())
		_, err := eval.CanStart(context.Background(), github.User{Login: "alice"},
			openIssue("Priority: 1 (Normal)", "Time: <1 Hour"))

		rej, ok := AsRejection(err)
		if !ok || rej.Kind != KindLabelRoleMismatch {
			t.Fatalf("error = %v, want label/role rejection", err)
		}
		if !strings.Contains(rej.Message, wantList) {
			t.Errorf("Message = %q, want it to enumerate %s", rej.Message, wantList)
		}
	})

	t.Run("allowed role passes", func(t *testing.T) {
		eval := New(&fakeTracker{role: github.RoleCollaborator}, &fakeWallet{}, settings, discardLogger())
		_, err := eval.CanStart(context.Background(), github.User{Login: "alice"},
			openIssue("Priority: 1 (Normal)", "Time: <1 Hour"))
		if err != nil {
			t.Fatalf("CanStart() error = %v, want nil", err)
		}
	})
}

func TestCanStartConcurrencyBoundary(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	// contributor limit is 2 by default

	tests := []struct {
		name       string
		count      int
		wantReject bool
	}{
		{name: "one below the limit succeeds", count: 1, wantReject: false},
		{name: "at the limit rejects", count: 2, wantReject: true},
		{name: "over the limit rejects", count: 3, wantReject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{role: github.RoleContributor, count: tt.count}
			eval := New(tracker, &fakeWallet{}, settings, discardLogger())

			_, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, openIssue("Time: <1 Hour"))

			if tt.wantReject {
				rej, ok := AsRejection(err)
				if !ok || rej.Kind != KindConcurrencyLimit {
					t.Fatalf("error = %v, want concurrency rejection", err)
				}
			} else if err != nil {
				t.Fatalf("CanStart() error = %v, want nil", err)
			}
		})
	}
}

func TestCanStartUnlimitedRoleSkipsCounting(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	tracker := &fakeTracker{role: github.RoleAdmin, count: 1000}
	eval := New(tracker, &fakeWallet{}, settings, discardLogger())

	if _, err := eval.CanStart(context.Background(), github.User{Login: "root"}, openIssue("Time: <1 Hour")); err != nil {
		t.Fatalf("CanStart() error = %v, want nil for unlimited admin", err)
	}
	if tracker.countCalls != 0 {
		t.Errorf("CountAssignedIssues called %d times, want 0 for unlimited role", tracker.countCalls)
	}
}

func TestCanStartRejectsWithoutPriceLabel(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	eval := New(&fakeTracker{role: github.RoleContributor}, &fakeWallet{}, settings, discardLogger())

	_, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, openIssue("bug"))

	rej, ok := AsRejection(err)
	if !ok || rej.Kind != KindPriceLabelMissing {
		t.Fatalf("error = %v, want price-label rejection", err)
	}
	if !strings.Contains(rej.Message, "No price label is set to calculate the duration") {
		t.Errorf("Message = %q, want duration text", rej.Message)
	}
}

func TestCanStartComputesDeadline(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	eval := New(&fakeTracker{role: github.RoleContributor}, &fakeWallet{address: "0xabc"}, settings, discardLogger())
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	eval.now = func() time.Time { return now }

	res, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, openIssue("Time: <1 Day"))
	if err != nil {
		t.Fatalf("CanStart() error = %v", err)
	}
	if res.Deadline != now.Add(24*time.Hour) {
		t.Errorf("Deadline = %v, want %v", res.Deadline, now.Add(24*time.Hour))
	}
	if res.Wallet != "0xabc" {
		t.Errorf("Wallet = %q, want 0xabc", res.Wallet)
	}
}

func TestCanStartStaleTaskWarning(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartRequiresWallet = false
	eval := New(&fakeTracker{role: github.RoleContributor}, &fakeWallet{}, settings, discardLogger())

	created := time.Now().Add(-40 * 24 * time.Hour) // past the 30 day default
	issue := openIssue("Time: <1 Hour")
	issue.CreatedAt = &created

	res, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, issue)
	if err != nil {
		t.Fatalf("CanStart() error = %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "30 Days") {
		t.Errorf("Warnings = %v, want a stale-task warning naming 30 Days", res.Warnings)
	}
}

func TestCanStartPropagatesUpstreamFailures(t *testing.T) {
	settings := config.DefaultSettings()
	upstream := errors.New("connection refused")
	eval := New(&fakeTracker{}, &fakeWallet{err: upstream}, settings, discardLogger())

	_, err := eval.CanStart(context.Background(), github.User{Login: "alice"}, openIssue("Time: <1 Hour"))
	if !errors.Is(err, upstream) {
		t.Fatalf("error = %v, want wrapped upstream failure", err)
	}
	if _, ok := AsRejection(err); ok {
		t.Error("upstream failure must not look like a policy rejection")
	}
}
