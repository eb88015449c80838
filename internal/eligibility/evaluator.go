// Package eligibility decides whether a user may start work on an issue.
//
// The rules run in a fixed order and short-circuit on the first violation:
// wallet presence, required labels vs role, concurrent-task limit, price
// label. Command enablement is checked by the dispatcher before any of
// this runs.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/github"
)

// WalletSource reads a user's registered wallet address. "" means none.
type WalletSource interface {
	GetWalletAddress(ctx context.Context, userID int64) (string, error)
}

// TrackerSource is the slice of the issue tracker the evaluator reads.
type TrackerSource interface {
	UserRole(ctx context.Context, login string) (string, error)
	CountAssignedIssues(ctx context.Context, login, scope string, orgs []string) (int, error)
}

// Evaluator runs the start-eligibility rules.
type Evaluator struct {
	tracker  TrackerSource
	wallet   WalletSource
	settings *config.Settings
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Evaluator.
func New(tracker TrackerSource, wallet WalletSource, settings *config.Settings, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		tracker:  tracker,
		wallet:   wallet,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Result carries what the dispatcher needs to build the success comment
// after an eligible start.
type Result struct {
	Role     string
	Wallet   string        // "" when none registered and none required
	Duration time.Duration // estimate from the price label
	Deadline time.Time
	Warnings []string // display-only notes (stale task etc.)
}

// CanStart evaluates whether user may start work on issue. A rule
// violation returns a *Rejection carrying the user-facing message; any
// other error is an upstream fetch failure.
func (e *Evaluator) CanStart(ctx context.Context, user github.User, issue *github.Issue) (*Result, error) {
	res := &Result{}

	address, err := e.wallet.GetWalletAddress(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("wallet lookup for %s: %w", user.Login, err)
	}
	if address == "" && e.settings.StartRequiresWallet {
		return nil, &Rejection{Kind: KindWalletMissing, Message: e.settings.EmptyWalletText}
	}
	res.Wallet = address

	role, err := e.tracker.UserRole(ctx, user.Login)
	if err != nil {
		return nil, fmt.Errorf("role lookup for %s: %w", user.Login, err)
	}
	res.Role = role

	if err := e.checkRequiredLabels(issue, role); err != nil {
		return nil, err
	}

	if err := e.checkConcurrency(ctx, user.Login, role); err != nil {
		return nil, err
	}

	duration, ok := taskDuration(issue.Labels)
	if !ok {
		return nil, &Rejection{
			Kind:    KindPriceLabelMissing,
			Message: "No price label is set to calculate the duration",
		}
	}
	res.Duration = duration
	res.Deadline = e.now().Add(duration)

	if issue.CreatedAt != nil && e.now().Sub(*issue.CreatedAt) > e.settings.StaleTimeout() {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("This task was created over %s ago. Please verify it is still current before starting work.",
				e.settings.TaskStaleTimeoutDuration))
	}

	e.logger.Info("start eligibility granted",
		"user", user.Login, "role", role, "issue", issue.Number, "deadline", res.Deadline)

	return res, nil
}

// checkRequiredLabels enforces the required-label/role policy. The
// rejection message enumerates the configured label names backtick-quoted,
// in configuration order.
func (e *Evaluator) checkRequiredLabels(issue *github.Issue, role string) error {
	required := e.settings.RequiredLabelsToStart
	if len(required) == 0 {
		return nil
	}

	issueLabels := make(map[string]bool, len(issue.Labels))
	for _, l := range issue.Labels {
		issueLabels[l.Name] = true
	}

	matched := false
	roleAllowed := false
	for _, rl := range required {
		if !issueLabels[rl.Name] {
			continue
		}
		matched = true
		for _, r := range rl.Roles {
			if r == strings.ToLower(role) {
				roleAllowed = true
				break
			}
		}
	}

	names := e.settings.RequiredLabelNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	list := strings.Join(quoted, ", ")

	if !matched {
		return &Rejection{
			Kind:    KindLabelRoleMismatch,
			Message: fmt.Sprintf("This issue does not have one of the labels required to start it: %s", list),
		}
	}
	if !roleAllowed {
		return &Rejection{
			Kind:    KindLabelRoleMismatch,
			Message: fmt.Sprintf("Your role does not qualify to start this issue. Only issues with the following labels are available to you: %s", list),
		}
	}
	return nil
}

// checkConcurrency enforces the per-role open-task limit at the moment of
// assignment. Roles with no configured limit are unlimited.
func (e *Evaluator) checkConcurrency(ctx context.Context, login, role string) error {
	limit, unlimited := e.settings.MaxTasksFor(role)
	if unlimited {
		return nil
	}

	count, err := e.tracker.CountAssignedIssues(ctx, login, string(e.settings.AssignedIssueScope), e.settings.NetworkOrgs)
	if err != nil {
		return fmt.Errorf("assigned-issue count for %s: %w", login, err)
	}
	if count >= limit {
		return &Rejection{
			Kind: KindConcurrencyLimit,
			Message: fmt.Sprintf("You have reached your max task limit of %d. Please complete your assigned tasks before starting a new one.",
				limit),
		}
	}
	return nil
}
