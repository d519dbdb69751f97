// reportwatch: watches the moderation report queue of a Mastodon instance and
// stops the instance when a report goes unhandled past the legal deadline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/insalol/reportwatch/action"
	"github.com/insalol/reportwatch/mastodon"
	"github.com/insalol/reportwatch/notify"
	"github.com/insalol/reportwatch/util"
	"github.com/insalol/reportwatch/util/svcutil"
	"github.com/insalol/reportwatch/watchdog"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"
)

const (
	defaultMastodonHost   = "https://mastodon.insa.lol"
	defaultServiceName    = "mastodon-web"
	defaultStopCommand    = "systemctl stop"
	defaultFollowCommand  = "tootctl accounts follow"
	defaultFollowSchedule = "@every 6h"
	defaultLogLevel       = "info"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {

	app := &cli.App{
		Name:    "reportwatch",
		Usage:   "emergency shutdown watchdog for unhandled moderation reports",
		Version: versioninfo.Short(),
		Action:  runWatchdog,
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "mastodon-host",
			Usage:   "base URL of the Mastodon instance",
			Value:   defaultMastodonHost,
			EnvVars: []string{"MASTODON_HOST"},
		},
		&cli.StringFlag{
			Name:    "mastodon-token",
			Usage:   "API access token with admin:read:reports scope",
			EnvVars: []string{"MASTODON_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "report-limit",
			Usage:   "max reports to request per poll (0 uses the server default)",
			EnvVars: []string{"REPORT_LIMIT"},
		},
		&cli.StringFlag{
			Name: "discord-webhook-url",
			// eg: https://discord.com/api/webhooks/1234/abcd
			Usage:   "full URL of discord webhook",
			EnvVars: []string{"DISCORD_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name: "slack-webhook-url",
			// eg: https://hooks.slack.com/services/X1234
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.BoolFlag{
			Name:    "require-notifier",
			Usage:   "refuse to start without a notification webhook",
			EnvVars: []string{"REQUIRE_NOTIFIER"},
		},
		&cli.StringFlag{
			Name:    "service-name",
			Usage:   "service to stop on emergency shutdown",
			Value:   defaultServiceName,
			EnvVars: []string{"SERVICE_NAME"},
		},
		&cli.StringFlag{
			Name:    "stop-command",
			Usage:   "command used to stop the service; the service name is appended",
			Value:   defaultStopCommand,
			EnvVars: []string{"STOP_COMMAND"},
		},
		&cli.StringSliceFlag{
			Name:    "follow-accounts",
			Usage:   "accounts the instance should periodically follow (comma-separated)",
			EnvVars: []string{"FOLLOW_ACCOUNTS"},
		},
		&cli.StringFlag{
			Name:    "follow-command",
			Usage:   "command used to follow an account; the account is appended",
			Value:   defaultFollowCommand,
			EnvVars: []string{"FOLLOW_COMMAND"},
		},
		&cli.StringFlag{
			Name:    "follow-schedule",
			Usage:   "cron schedule for the follow job",
			Value:   defaultFollowSchedule,
			EnvVars: []string{"FOLLOW_SCHEDULE"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "wait between report checks",
			Value:   watchdog.DefaultInterval,
			EnvVars: []string{"POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "retry-backoff",
			Usage:   "wait between attempts after a failed report fetch",
			Value:   watchdog.DefaultRetryBackoff,
			EnvVars: []string{"RETRY_BACKOFF"},
		},
		&cli.IntFlag{
			Name:    "retry-threshold",
			Usage:   "consecutive fetch failures tolerated before escalating",
			Value:   watchdog.DefaultRetryThreshold,
			EnvVars: []string{"RETRY_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "report-age-threshold",
			Usage:   "unhandled reports older than this trigger a shutdown",
			Value:   watchdog.DefaultThreshold,
			EnvVars: []string{"REPORT_AGE_THRESHOLD"},
		},
		&cli.BoolFlag{
			Name:    "oldest-first",
			Usage:   "pick the oldest overdue report as the trigger, instead of the first in API order",
			EnvVars: []string{"OLDEST_FIRST"},
		},
		&cli.StringFlag{
			Name:    "escalation",
			Usage:   "response to sustained fetch failure: log, notify or shutdown",
			Value:   string(action.EscalateNotify),
			EnvVars: []string{"ESCALATION_MODE"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "never run the stop command, only log and notify",
			EnvVars: []string{"DRY_RUN"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for health and metrics (empty disables)",
			Value:   ":3990",
			EnvVars: []string{"REPORTWATCH_BIND"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   defaultLogLevel,
			EnvVars: []string{"REPORTWATCH_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	return app
}

func runWatchdog(cctx *cli.Context) error {
	logger := svcutil.ConfigLogger(cctx, os.Stdout)

	config, err := configFromCLI(cctx)
	if err != nil {
		return err
	}

	shutdownOTEL := configOTEL("reportwatch")
	defer shutdownOTEL()

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := mastodon.NewReportClient(config.MastodonHost, config.MastodonToken)
	client.HTTPClient = util.SingleShotHTTPClient(30 * time.Second)
	client.HTTPClient.Transport = otelhttp.NewTransport(client.HTTPClient.Transport)
	client.Query.Limit = config.ReportLimit

	dispatcher, err := action.NewDispatcher(action.DispatcherConfig{
		Notifier:    buildNotifier(config),
		Runner:      &action.ExecRunner{Logger: logger.With("component", "exec")},
		StopCommand: config.StopCommand,
		Service:     config.ServiceName,
		DryRun:      config.DryRun,
		Escalation:  config.Escalation,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	wd, err := watchdog.New(watchdog.Config{
		Fetcher:    client,
		Dispatcher: dispatcher,
		Logger:     logger,
		Interval:   config.PollInterval,
		Retry:      watchdog.NewRetryPolicy(config.RetryThreshold, config.RetryBackoff),
		Evaluate:   config.evaluateOptions(),
	})
	if err != nil {
		return err
	}

	if config.Bind != "" {
		srv := NewServer(wd, logger, config.Bind)
		go func() {
			if err := srv.Run(); err != nil {
				slog.Error("admin HTTP server failed", "err", err)
			}
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				slog.Error("admin HTTP server shutdown error", "err", err)
			}
		}()
	}

	if len(config.FollowAccounts) > 0 {
		follower := &action.Follower{
			Runner:   &action.ExecRunner{Logger: logger.With("component", "exec")},
			Command:  config.FollowCommand,
			Accounts: config.FollowAccounts,
			Limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
			Logger:   logger.With("component", "follower"),
		}
		c := action.NewCron(logger)
		if _, err := follower.Schedule(ctx, c, config.FollowSchedule, 10*time.Minute); err != nil {
			return &ConfigurationError{Field: "follow-schedule", Reason: err.Error()}
		}
		c.Start()
		defer c.Stop()
		logger.Info("follow job scheduled", "schedule", config.FollowSchedule, "accounts", len(config.FollowAccounts))
	}

	msg := fmt.Sprintf("reportwatch %s started, monitoring `%s` (deadline %s, stopping `%s`)",
		versioninfo.Short(), config.MastodonHost, config.AgeThreshold, config.ServiceName)
	if err := dispatcher.Announce(ctx, msg); err != nil {
		logger.Warn("failed to send startup notification", "err", err)
	}

	if err := wd.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildNotifier(config *Config) notify.Notifier {
	var multi notify.Multi
	if config.DiscordWebhookURL != "" {
		multi = append(multi, notify.NewDiscordNotifier(config.DiscordWebhookURL))
	}
	if config.SlackWebhookURL != "" {
		multi = append(multi, notify.NewSlackNotifier(config.SlackWebhookURL))
	}
	if len(multi) == 0 {
		return nil
	}
	return multi
}
