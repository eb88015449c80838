// Package config holds the two configuration layers of the service:
// process environment (credentials, endpoints, listen address) and
// per-deployment policy settings loaded from YAML.
package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

const namespace = "ASSIGNBOT"

// Env is the process environment. Every value that is a credential or an
// endpoint lives here rather than in the settings file.
type Env struct {
	GitHubToken   string `envconfig:"GITHUB_TOKEN" required:"true"`
	GitHubAPIURL  string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	DatabaseDSN   string `envconfig:"DATABASE_DSN" required:"true"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" required:"true"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	SettingsPath  string `envconfig:"SETTINGS_PATH" default:"settings.yaml"`
}

// LoadEnv reads the ASSIGNBOT_* environment into Env.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info on bad input.
func (e *Env) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
