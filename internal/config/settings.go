package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AssignedIssueScope is the breadth over which a user's open assigned
// issues are counted for concurrency-limit enforcement.
type AssignedIssueScope string

const (
	ScopeOrg     AssignedIssueScope = "org"
	ScopeRepo    AssignedIssueScope = "repo"
	ScopeNetwork AssignedIssueScope = "network"
)

// RequiredLabel restricts who may start an issue carrying the label.
type RequiredLabel struct {
	Name  string   `mapstructure:"name"`
	Roles []string `mapstructure:"roles"`
}

// Settings is the per-deployment policy configuration.
//
// MaxConcurrentTasks maps a lowercased role name to the maximum number of
// open issues a user with that role may have assigned at once. A role
// absent from the map is unlimited; in particular an unspecified "admin"
// role is always unlimited.
type Settings struct {
	Enabled                  bool               `mapstructure:"enabled"`
	ReviewDelayTolerance     string             `mapstructure:"review_delay_tolerance"`
	TaskStaleTimeoutDuration string             `mapstructure:"task_stale_timeout_duration"`
	StartRequiresWallet      bool               `mapstructure:"start_requires_wallet"`
	MaxConcurrentTasks       map[string]int     `mapstructure:"max_concurrent_tasks"`
	AssignedIssueScope       AssignedIssueScope `mapstructure:"assigned_issue_scope"`
	EmptyWalletText          string             `mapstructure:"empty_wallet_text"`
	RolesWithReviewAuthority []string           `mapstructure:"roles_with_review_authority"`
	RequiredLabelsToStart    []RequiredLabel    `mapstructure:"required_labels_to_start"`
	NetworkOrgs              []string           `mapstructure:"network_orgs"`

	reviewDelay  time.Duration
	staleTimeout time.Duration
}

// Default policy values, matching the deployed plugin's schema defaults.
const (
	DefaultReviewDelayTolerance     = "1 Day"
	DefaultTaskStaleTimeoutDuration = "30 Days"
	DefaultEmptyWalletText          = "Please set your wallet address with the /wallet command first and try again."
)

// DefaultSettings returns a Settings populated with every default applied
// and normalized.
func DefaultSettings() *Settings {
	s := &Settings{
		Enabled:                  true,
		ReviewDelayTolerance:     DefaultReviewDelayTolerance,
		TaskStaleTimeoutDuration: DefaultTaskStaleTimeoutDuration,
		StartRequiresWallet:      true,
		MaxConcurrentTasks:       map[string]int{"member": 10, "contributor": 2},
		AssignedIssueScope:       ScopeOrg,
		EmptyWalletText:          DefaultEmptyWalletText,
		RolesWithReviewAuthority: []string{"OWNER", "ADMIN", "MEMBER", "COLLABORATOR"},
	}
	if err := s.Normalize(); err != nil {
		// Defaults are statically valid.
		panic(err)
	}
	return s
}

// LoadSettings reads policy settings from a YAML file. A missing file
// yields the defaults; a present file is merged over them.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("enabled", true)
	v.SetDefault("review_delay_tolerance", DefaultReviewDelayTolerance)
	v.SetDefault("task_stale_timeout_duration", DefaultTaskStaleTimeoutDuration)
	v.SetDefault("start_requires_wallet", true)
	v.SetDefault("max_concurrent_tasks", map[string]int{"member": 10, "contributor": 2})
	v.SetDefault("assigned_issue_scope", string(ScopeOrg))
	v.SetDefault("empty_wallet_text", DefaultEmptyWalletText)
	v.SetDefault("roles_with_review_authority", []string{"OWNER", "ADMIN", "MEMBER", "COLLABORATOR"})

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.Normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Normalize validates the settings and applies the explicit defaulting
// rules: role keys are lowercased, review-authority roles are uppercased,
// and the policy duration strings are parsed once up front.
func (s *Settings) Normalize() error {
	switch s.AssignedIssueScope {
	case ScopeOrg, ScopeRepo, ScopeNetwork:
	case "":
		s.AssignedIssueScope = ScopeOrg
	default:
		return fmt.Errorf("invalid assigned_issue_scope %q: must be org, repo, or network", s.AssignedIssueScope)
	}

	normalized := make(map[string]int, len(s.MaxConcurrentTasks))
	for role, max := range s.MaxConcurrentTasks {
		if max < 0 {
			return fmt.Errorf("invalid max_concurrent_tasks for role %q: %d", role, max)
		}
		normalized[strings.ToLower(role)] = max
	}
	s.MaxConcurrentTasks = normalized

	for i, role := range s.RolesWithReviewAuthority {
		s.RolesWithReviewAuthority[i] = strings.ToUpper(role)
	}

	for i := range s.RequiredLabelsToStart {
		if s.RequiredLabelsToStart[i].Name == "" {
			return fmt.Errorf("required_labels_to_start[%d]: missing name", i)
		}
		for j, role := range s.RequiredLabelsToStart[i].Roles {
			s.RequiredLabelsToStart[i].Roles[j] = strings.ToLower(role)
		}
	}

	var err error
	if s.reviewDelay, err = ParsePolicyDuration(s.ReviewDelayTolerance); err != nil {
		return fmt.Errorf("invalid review_delay_tolerance: %w", err)
	}
	if s.staleTimeout, err = ParsePolicyDuration(s.TaskStaleTimeoutDuration); err != nil {
		return fmt.Errorf("invalid task_stale_timeout_duration: %w", err)
	}

	return nil
}

// MaxTasksFor returns the concurrency limit for a role. The role key is
// matched case-insensitively. A role with no configured limit is
// unlimited; "admin" in particular defaults to unlimited when unset.
func (s *Settings) MaxTasksFor(role string) (limit int, unlimited bool) {
	limit, ok := s.MaxConcurrentTasks[strings.ToLower(role)]
	if !ok {
		return 0, true
	}
	return limit, false
}

// ReviewDelay is the parsed review_delay_tolerance.
func (s *Settings) ReviewDelay() time.Duration { return s.reviewDelay }

// StaleTimeout is the parsed task_stale_timeout_duration.
func (s *Settings) StaleTimeout() time.Duration { return s.staleTimeout }

// RequiredLabelNames lists the configured required label names in
// configuration order.
func (s *Settings) RequiredLabelNames() []string {
	names := make([]string, len(s.RequiredLabelsToStart))
	for i, l := range s.RequiredLabelsToStart {
		names[i] = l.Name
	}
	return names
}
