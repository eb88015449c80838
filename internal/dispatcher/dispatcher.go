// Package dispatcher routes inbound tracker events: slash commands on
// issue comments, and pull-request lifecycle events that require
// reconciling the assignment state of closing-referenced issues.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskops/assignbot/internal/config"
	"github.com/taskops/assignbot/internal/eligibility"
	"github.com/taskops/assignbot/internal/github"
)

// Tracker is the slice of the issue tracker's API the dispatcher uses.
// *github.Client satisfies it.
type Tracker interface {
	FetchIssue(ctx context.Context, number int) (*github.Issue, error)
	AddAssignees(ctx context.Context, number int, logins []string) error
	RemoveAssignees(ctx context.Context, number int, logins []string) error
	CreateComment(ctx context.Context, number int, body string) error
	ClosingIssueReferences(ctx context.Context, prNumber int) ([]github.ClosingReference, error)
	ConvertPullRequestToDraft(ctx context.Context, nodeID string) error
}

// Dispatcher handles one repository's events. The webhook server builds
// one per delivery, bound to the repository the event came from.
type Dispatcher struct {
	tracker  Tracker
	eval     *eligibility.Evaluator
	settings *config.Settings
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(tracker Tracker, eval *eligibility.Evaluator, settings *config.Settings, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{tracker: tracker, eval: eval, settings: settings, logger: logger}
}

// Result is the structured outcome of a handled command.
type Result struct {
	Output string `json:"output"`
}

// DisabledError is returned when a slash command arrives while the
// command surface is disabled for the repository.
type DisabledError struct {
	Command string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("The '/%s' command is disabled for this repository.", e.Command)
}

// CommandError is a command rejection that was already answered with an
// explanatory comment on the originating issue.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

// HandleComment routes an issue_comment event. The leading token of the
// comment body is parsed as a slash command; anything that is not /start
// or /stop is a no-op with a nil result.
func (d *Dispatcher) HandleComment(ctx context.Context, ev *github.IssueCommentEvent) (*Result, error) {
	if ev.Action != "created" {
		return nil, nil
	}

	fields := strings.Fields(ev.Comment.Body)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if command == "" {
		return nil, nil
	}

	if !d.settings.Enabled {
		derr := &DisabledError{Command: command}
		if err := d.tracker.CreateComment(ctx, ev.Issue.Number, diffComment("!", derr.Error())); err != nil {
			return nil, fmt.Errorf("failed to post disabled notice: %w", err)
		}
		return nil, derr
	}

	switch command {
	case "start":
		return d.start(ctx, ev.Issue, *ev.Sender)
	case "stop":
		return d.stop(ctx, ev.Issue, *ev.Sender)
	default:
		return nil, nil
	}
}

// start runs the eligibility rules and assigns the sender on success.
// Every rejection posts exactly one explanatory comment before the error
// propagates.
func (d *Dispatcher) start(ctx context.Context, issue *github.Issue, sender github.User) (*Result, error) {
	if issue.State == "closed" {
		return nil, d.rejectWithComment(ctx, issue.Number, "This issue is closed and cannot be started.")
	}
	if len(issue.Assignees) > 0 {
		if github.HasAssignee(issue.Assignees, sender.Login) {
			return nil, d.rejectWithComment(ctx, issue.Number, "You are already assigned to this issue.")
		}
		return nil, d.rejectWithComment(ctx, issue.Number, "This issue is already assigned. Please choose another unassigned issue.")
	}

	res, err := d.eval.CanStart(ctx, sender, issue)
	if err != nil {
		if rej, ok := eligibility.AsRejection(err); ok {
			if cerr := d.tracker.CreateComment(ctx, issue.Number, rejectionComment(rej)); cerr != nil {
				return nil, fmt.Errorf("failed to post rejection comment: %w", cerr)
			}
		}
		return nil, err
	}

	if err := d.tracker.AddAssignees(ctx, issue.Number, []string{sender.Login}); err != nil {
		return nil, err
	}
	if err := d.tracker.CreateComment(ctx, issue.Number, startSuccessComment(res)); err != nil {
		return nil, fmt.Errorf("failed to post assignment comment: %w", err)
	}

	d.logger.Info("task started", "issue", issue.Number, "user", sender.Login, "deadline", res.Deadline)
	return &Result{Output: "Task assigned successfully"}, nil
}

// stop unassigns the sender from the issue, provided they are actually
// its assignee.
func (d *Dispatcher) stop(ctx context.Context, issue *github.Issue, sender github.User) (*Result, error) {
	if len(issue.Assignees) == 0 {
		return nil, d.rejectWithComment(ctx, issue.Number, "This issue is not assigned to anyone, so there is nothing to stop.")
	}
	if !github.HasAssignee(issue.Assignees, sender.Login) {
		return nil, d.rejectWithComment(ctx, issue.Number, "You cannot stop a task you are not assigned to.")
	}

	if err := d.tracker.RemoveAssignees(ctx, issue.Number, []string{sender.Login}); err != nil {
		return nil, err
	}
	if err := d.tracker.CreateComment(ctx, issue.Number, stopSuccessComment()); err != nil {
		return nil, fmt.Errorf("failed to post unassignment comment: %w", err)
	}

	d.logger.Info("task stopped", "issue", issue.Number, "user", sender.Login)
	return &Result{Output: "Task unassigned successfully"}, nil
}

// rejectWithComment posts a single explanatory comment and returns the
// same message as the terminating error.
func (d *Dispatcher) rejectWithComment(ctx context.Context, issueNumber int, message string) error {
	if err := d.tracker.CreateComment(ctx, issueNumber, diffComment("!", message)); err != nil {
		return fmt.Errorf("failed to post rejection comment: %w", err)
	}
	return &CommandError{Message: message}
}

// HandlePullRequest reconciles the assignment state of the issues a pull
// request would close.
//
//   - merged: the referenced issues are done, so their assignees are
//     cleared; references with no assignees are left alone.
//   - opened/edited: an unassigned referenced issue is started on the PR
//     author's behalf (running the same eligibility rules as /start); a
//     referenced issue assigned to someone other than the author converts
//     the PR back to draft.
func (d *Dispatcher) HandlePullRequest(ctx context.Context, ev *github.PullRequestEvent) error {
	pr := ev.PullRequest

	merged := false
	switch ev.Action {
	case "opened", "edited":
	case "closed":
		if !pr.Merged {
			return nil
		}
		merged = true
	default:
		return nil
	}

	refs, err := d.tracker.ClosingIssueReferences(ctx, pr.Number)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if merged {
			if err := d.clearAssignees(ctx, ref); err != nil {
				return err
			}
			continue
		}
		if err := d.reconcileOpenPR(ctx, pr, ref); err != nil {
			return err
		}
	}

	return nil
}

// clearAssignees removes every assignee from a closing-referenced issue
// after the pull request merged. An empty assignee list is a no-op.
func (d *Dispatcher) clearAssignees(ctx context.Context, ref github.ClosingReference) error {
	if len(ref.Assignees) == 0 {
		return nil
	}
	logins := make([]string, len(ref.Assignees))
	for i, a := range ref.Assignees {
		logins[i] = a.Login
	}
	if err := d.tracker.RemoveAssignees(ctx, ref.Number, logins); err != nil {
		return err
	}
	d.logger.Info("cleared assignees after merge", "issue", ref.Number, "assignees", logins)
	return nil
}

// reconcileOpenPR handles one closing reference of an open pull request.
func (d *Dispatcher) reconcileOpenPR(ctx context.Context, pr *github.PullRequest, ref github.ClosingReference) error {
	author := pr.User
	if author == nil {
		return fmt.Errorf("pull request #%d has no author", pr.Number)
	}

	if len(ref.Assignees) == 0 {
		return d.startForAuthor(ctx, pr, ref, *author)
	}

	if github.HasAssignee(ref.Assignees, author.Login) {
		return nil
	}

	if err := d.tracker.ConvertPullRequestToDraft(ctx, pr.NodeID); err != nil {
		return err
	}
	if err := d.tracker.CreateComment(ctx, pr.Number, draftNoticeComment(ref.URL)); err != nil {
		return fmt.Errorf("failed to post draft notice: %w", err)
	}
	d.logger.Info("converted pull request to draft", "pr", pr.Number, "issue", ref.Number)
	return nil
}

// startForAuthor claims an unassigned closing-referenced issue for the PR
// author, subject to the usual eligibility rules. Rejections are posted on
// the pull request since that is the originating event.
func (d *Dispatcher) startForAuthor(ctx context.Context, pr *github.PullRequest, ref github.ClosingReference, author github.User) error {
	issue, err := d.tracker.FetchIssue(ctx, ref.Number)
	if err != nil {
		return err
	}

	res, err := d.eval.CanStart(ctx, author, issue)
	if err != nil {
		if rej, ok := eligibility.AsRejection(err); ok {
			if cerr := d.tracker.CreateComment(ctx, pr.Number, rejectionComment(rej)); cerr != nil {
				return fmt.Errorf("failed to post rejection comment: %w", cerr)
			}
		}
		return err
	}

	if err := d.tracker.AddAssignees(ctx, ref.Number, []string{author.Login}); err != nil {
		return err
	}
	if err := d.tracker.CreateComment(ctx, ref.Number, startSuccessComment(res)); err != nil {
		return fmt.Errorf("failed to post assignment comment: %w", err)
	}

	d.logger.Info("assigned PR author to referenced issue", "pr", pr.Number, "issue", ref.Number, "user", author.Login)
	return nil
}
