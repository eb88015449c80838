package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskops/assignbot/internal/eligibility"
)

// diffComment renders a message as a diff-fenced block. "!" lines render
// orange in GitHub's diff highlighting, "+" lines green.
func diffComment(marker, message string) string {
	return fmt.Sprintf("```diff\n%s %s\n```", marker, message)
}

// rejectionComment renders an eligibility rejection for posting.
func rejectionComment(r *eligibility.Rejection) string {
	return diffComment("!", r.Message)
}

// startSuccessComment builds the assignment confirmation, with the
// computed deadline and the registered wallet, followed by any
// display-only warnings.
func startSuccessComment(res *eligibility.Result) string {
	var b strings.Builder
	b.WriteString("```diff\n+ Task assigned\n```\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Deadline | %s |\n", res.Deadline.UTC().Format(time.RFC1123))
	wallet := res.Wallet
	if wallet == "" {
		wallet = "Not set"
	}
	fmt.Fprintf(&b, "| Registered Wallet | %s |\n", wallet)

	for _, w := range res.Warnings {
		b.WriteString("\n> [!WARNING]\n> ")
		b.WriteString(w)
		b.WriteString("\n")
	}
	return b.String()
}

// stopSuccessComment confirms an unassignment.
func stopSuccessComment() string {
	return diffComment("+", "You have been unassigned from this task.")
}

// draftNoticeComment explains why a pull request was converted to draft.
func draftNoticeComment(issueURL string) string {
	return fmt.Sprintf("This pull request has been converted to draft: the issue it closes (%s) is assigned to someone else.", issueURL)
}
