package eligibility

import (
	"testing"
	"time"

	"github.com/taskops/assignbot/internal/github"
)

func TestParseTimeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  time.Duration
		ok    bool
	}{
		{"Time: <1 Hour", time.Hour, true},
		{"Time: <2 Days", 48 * time.Hour, true},
		{"Price: 1 Week", 7 * 24 * time.Hour, true},
		{"time: 30 minutes", 30 * time.Minute, true},
		{"TIME: <1 MONTH", 30 * 24 * time.Hour, true},
		{"Priority: 1 (Normal)", 0, false},
		{"bug", 0, false},
		{"Time: soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := parseTimeLabel(tt.label)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseTimeLabel(%q) = %v, %v; want %v, %v", tt.label, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestTaskDurationShortestWins(t *testing.T) {
	labels := []github.Label{
		{Name: "Time: <1 Week"},
		{Name: "bug"},
		{Name: "Time: <2 Hours"},
		{Name: "Time: <3 Days"},
	}
	got, ok := taskDuration(labels)
	if !ok || got != 2*time.Hour {
		t.Errorf("taskDuration() = %v, %v; want 2h, true", got, ok)
	}
}

func TestTaskDurationNoPriceLabel(t *testing.T) {
	if _, ok := taskDuration([]github.Label{{Name: "bug"}}); ok {
		t.Error("taskDuration() ok = true, want false without a price label")
	}
}
