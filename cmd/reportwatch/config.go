package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/insalol/reportwatch/action"
	"github.com/insalol/reportwatch/watchdog"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

// Missing or invalid startup configuration. Fatal: the process exits before
// the watchdog loop starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Everything the daemon needs, resolved once at startup.
type Config struct {
	MastodonHost      string
	MastodonToken     string
	ReportLimit       int
	DiscordWebhookURL string
	SlackWebhookURL   string
	RequireNotifier   bool
	ServiceName       string
	StopCommand       []string
	FollowAccounts    []string
	FollowCommand     []string
	FollowSchedule    string
	PollInterval      time.Duration
	RetryBackoff      time.Duration
	RetryThreshold    int
	AgeThreshold      time.Duration
	OldestFirst       bool
	Escalation        action.EscalationMode
	DryRun            bool
	Bind              string
}

func configFromCLI(cctx *cli.Context) (*Config, error) {
	stopCmd, err := action.ParseCommand(stringOrDefault(cctx, "stop-command", defaultStopCommand))
	if err != nil {
		return nil, &ConfigurationError{Field: "stop-command", Reason: err.Error()}
	}
	followCmd, err := action.ParseCommand(stringOrDefault(cctx, "follow-command", defaultFollowCommand))
	if err != nil {
		return nil, &ConfigurationError{Field: "follow-command", Reason: err.Error()}
	}
	escalation, err := action.ParseEscalationMode(cctx.String("escalation"))
	if err != nil {
		return nil, &ConfigurationError{Field: "escalation", Reason: err.Error()}
	}

	config := &Config{
		MastodonHost:      stringOrDefault(cctx, "mastodon-host", defaultMastodonHost),
		MastodonToken:     cctx.String("mastodon-token"),
		ReportLimit:       cctx.Int("report-limit"),
		DiscordWebhookURL: cctx.String("discord-webhook-url"),
		SlackWebhookURL:   cctx.String("slack-webhook-url"),
		RequireNotifier:   cctx.Bool("require-notifier"),
		ServiceName:       stringOrDefault(cctx, "service-name", defaultServiceName),
		StopCommand:       stopCmd,
		FollowAccounts:    action.ParseAccounts(cctx.StringSlice("follow-accounts")),
		FollowCommand:     followCmd,
		FollowSchedule:    stringOrDefault(cctx, "follow-schedule", defaultFollowSchedule),
		PollInterval:      cctx.Duration("poll-interval"),
		RetryBackoff:      cctx.Duration("retry-backoff"),
		RetryThreshold:    cctx.Int("retry-threshold"),
		AgeThreshold:      cctx.Duration("report-age-threshold"),
		OldestFirst:       cctx.Bool("oldest-first"),
		Escalation:        escalation,
		DryRun:            cctx.Bool("dry-run"),
		Bind:              cctx.String("bind"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// cli counts an env var that is set but empty (common in .env files) as a
// supplied value, which would replace the flag default with "".
func stringOrDefault(cctx *cli.Context, name, def string) string {
	if v := strings.TrimSpace(cctx.String(name)); v != "" {
		return v
	}
	return def
}

func (c *Config) Validate() error {
	if c.MastodonToken == "" {
		return &ConfigurationError{Field: "mastodon-token", Reason: "required (set MASTODON_TOKEN)"}
	}
	if c.MastodonHost == "" {
		return &ConfigurationError{Field: "mastodon-host", Reason: "required"}
	}
	if c.RequireNotifier && c.DiscordWebhookURL == "" && c.SlackWebhookURL == "" {
		return &ConfigurationError{Field: "discord-webhook-url", Reason: "a notification webhook is required (set DISCORD_WEBHOOK_URL)"}
	}
	if c.ServiceName == "" {
		return &ConfigurationError{Field: "service-name", Reason: "must not be empty"}
	}
	if len(c.StopCommand) == 0 {
		return &ConfigurationError{Field: "stop-command", Reason: "must not be empty"}
	}
	if c.PollInterval <= 0 {
		return &ConfigurationError{Field: "poll-interval", Reason: "must be positive"}
	}
	if c.RetryBackoff <= 0 {
		return &ConfigurationError{Field: "retry-backoff", Reason: "must be positive"}
	}
	if c.RetryThreshold <= 0 {
		return &ConfigurationError{Field: "retry-threshold", Reason: "must be positive"}
	}
	if c.AgeThreshold <= 0 {
		return &ConfigurationError{Field: "report-age-threshold", Reason: "must be positive"}
	}
	if c.ReportLimit < 0 {
		return &ConfigurationError{Field: "report-limit", Reason: "must not be negative"}
	}
	if len(c.FollowAccounts) > 0 {
		if len(c.FollowCommand) == 0 {
			return &ConfigurationError{Field: "follow-command", Reason: "must not be empty"}
		}
		if _, err := cron.ParseStandard(c.FollowSchedule); err != nil {
			return &ConfigurationError{Field: "follow-schedule", Reason: err.Error()}
		}
	}
	return nil
}

func (c *Config) evaluateOptions() watchdog.EvaluateOptions {
	return watchdog.EvaluateOptions{
		Threshold:   c.AgeThreshold,
		OldestFirst: c.OldestFirst,
	}
}
