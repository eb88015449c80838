package eligibility

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskops/assignbot/internal/github"
)

// timeLabelRe matches the price labels that encode a duration estimate,
// e.g. "Time: <1 Hour", "Time: <2 Days", "Price: 1 Week".
var timeLabelRe = regexp.MustCompile(`^(?:time|price):\s*<?\s*(\d+)\s*(minute|hour|day|week|month)s?\s*$`)

// parseTimeLabel extracts the duration estimate from a single label name.
func parseTimeLabel(name string) (time.Duration, bool) {
	matches := timeLabelRe.FindStringSubmatch(strings.ToLower(name))
	if matches == nil {
		return 0, false
	}
	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}

	var unit time.Duration
	switch matches[2] {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	case "month":
		unit = 30 * 24 * time.Hour
	}
	return time.Duration(amount) * unit, true
}

// taskDuration returns the duration estimate for an issue. When several
// price labels are present the shortest estimate wins.
func taskDuration(labels []github.Label) (time.Duration, bool) {
	var shortest time.Duration
	found := false
	for _, l := range labels {
		d, ok := parseTimeLabel(l.Name)
		if !ok {
			continue
		}
		if !found || d < shortest {
			shortest = d
		}
		found = true
	}
	return shortest, found
}
