package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// policyDurationRe matches policy duration strings like "1 Day", "5 Days",
// "2 Hours", "30 Days". Unit matching is case-insensitive and a trailing
// "s" is optional.
var policyDurationRe = regexp.MustCompile(`^\s*(\d+)\s*(minute|hour|day|week|month)s?\s*$`)

// ParsePolicyDuration parses a human-form duration string from the
// settings surface ("1 Day", "30 Days") into a time.Duration.
//
// Units:
//   - minute
//   - hour
//   - day   (24 hours)
//   - week  (7 days)
//   - month (30 days)
func ParsePolicyDuration(s string) (time.Duration, error) {
	matches := policyDurationRe.FindStringSubmatch(strings.ToLower(s))
	if matches == nil {
		return 0, fmt.Errorf("not a policy duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration amount: %q", matches[1])
	}

	return time.Duration(amount) * unitDuration(matches[2]), nil
}

// unitDuration returns the base duration for a recognized unit.
func unitDuration(unit string) time.Duration {
	switch unit {
	case "minute":
		return time.Minute
	case "hour":
		return time.Hour
	case "day":
		return 24 * time.Hour
	case "week":
		return 7 * 24 * time.Hour
	case "month":
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}
