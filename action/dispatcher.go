package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/insalol/reportwatch/notify"
	"github.com/insalol/reportwatch/watchdog"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type EscalationMode string

const (
	// Only log sustained fetch failure.
	EscalateLog EscalationMode = "log"
	// Send a notification.
	EscalateNotify EscalationMode = "notify"
	// Notify and stop the service, treating unobservable report state like an overdue report.
	EscalateShutdown EscalationMode = "shutdown"
)

func ParseEscalationMode(s string) (EscalationMode, error) {
	switch m := EscalationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case EscalateLog, EscalateNotify, EscalateShutdown:
		return m, nil
	case "":
		return EscalateNotify, nil
	}
	return "", fmt.Errorf("unknown escalation mode %q (expected log, notify or shutdown)", s)
}

// Re-notifying about the same report is suppressed for this long.
const notifyDedupeTTL = 24 * time.Hour

type DispatcherConfig struct {
	// Optional; nothing is sent when nil.
	Notifier notify.Notifier
	Runner   CommandRunner
	// Command prefix to stop a service, eg ["systemctl", "stop"]. The service name is appended.
	StopCommand []string
	Service     string
	// Log instead of running the stop command.
	DryRun     bool
	Escalation EscalationMode
	Logger     *slog.Logger
}

// Turns watchdog decisions into side effects: stopping the monitored service
// and notifying moderators.
type Dispatcher struct {
	notifier    notify.Notifier
	runner      CommandRunner
	stopCommand []string
	service     string
	dryRun      bool
	escalation  EscalationMode
	logger      *slog.Logger
	notified    *expirable.LRU[string, struct{}]
}

func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Service == "" {
		return nil, errors.New("dispatcher: service name is required")
	}
	if len(config.StopCommand) == 0 {
		return nil, errors.New("dispatcher: stop command is required")
	}
	runner := config.Runner
	if runner == nil {
		runner = &ExecRunner{Logger: config.Logger}
	}
	escalation := config.Escalation
	if escalation == "" {
		escalation = EscalateNotify
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier:    config.Notifier,
		runner:      runner,
		stopCommand: config.StopCommand,
		service:     config.Service,
		dryRun:      config.DryRun,
		escalation:  escalation,
		logger:      logger.With("component", "dispatcher"),
		notified:    expirable.NewLRU[string, struct{}](1024, nil, notifyDedupeTTL),
	}, nil
}

// Stops the service, then notifies about the triggering report. Each report
// is announced at most once per notifyDedupeTTL; the stop command runs every
// time and must be idempotent.
func (d *Dispatcher) Shutdown(ctx context.Context, v watchdog.Verdict) error {
	if !v.ShutdownRequired || v.Report == nil {
		return nil
	}

	stopErr := d.stopService(ctx)

	key := v.Report.ID
	if key == "" {
		key = v.Report.CreatedAt.String()
	}
	if _, ok := d.notified.Get(key); ok {
		d.logger.Debug("report already announced", "report", key)
		return stopErr
	}

	at := v.At
	if at.IsZero() {
		at = time.Now()
	}
	msg := fmt.Sprintf("🚨 Report `%s` has gone unhandled for %s. Emergency shutdown of `%s`.",
		v.Report.ID, v.Report.Age(at).Truncate(time.Minute), d.service)
	if stopErr != nil {
		msg += fmt.Sprintf("\nStopping the service FAILED: %s", stopErr)
	} else if d.dryRun {
		msg += "\n(dry run: service left running)"
	}
	notifyErr := d.sendReport(ctx, msg, v)
	if notifyErr == nil {
		d.notified.Add(key, struct{}{})
	}
	return errors.Join(stopErr, notifyErr)
}

// Reacts to sustained inability to fetch reports, according to the configured mode.
func (d *Dispatcher) Escalate(ctx context.Context, cause error, failures int) error {
	d.logger.Warn("escalating fetch failures", "mode", d.escalation, "failures", failures, "err", cause)

	switch d.escalation {
	case EscalateLog:
		return nil
	case EscalateNotify:
		msg := fmt.Sprintf("⚠️ Unable to read moderation reports after %d consecutive attempts: %s", failures, cause)
		return d.sendText(ctx, "escalation", msg)
	case EscalateShutdown:
		stopErr := d.stopService(ctx)
		msg := fmt.Sprintf("🚨 Unable to read moderation reports after %d consecutive attempts: %s\nEmergency shutdown of `%s`.", failures, cause, d.service)
		if stopErr != nil {
			msg += fmt.Sprintf("\nStopping the service FAILED: %s", stopErr)
		}
		return errors.Join(stopErr, d.sendText(ctx, "escalation", msg))
	}
	return fmt.Errorf("unknown escalation mode %q", d.escalation)
}

// Announces that monitoring started; errors are only returned, never fatal.
func (d *Dispatcher) Announce(ctx context.Context, msg string) error {
	return d.sendText(ctx, "announce", msg)
}

func (d *Dispatcher) stopService(ctx context.Context) error {
	if d.dryRun {
		d.logger.Warn("dry run: not stopping service", "service", d.service)
		serviceStopCount.WithLabelValues("dry_run").Inc()
		return nil
	}
	args := append(append([]string{}, d.stopCommand[1:]...), d.service)
	if err := d.runner.Run(ctx, d.stopCommand[0], args...); err != nil {
		serviceStopCount.WithLabelValues("error").Inc()
		d.logger.Error("failed to stop service", "service", d.service, "err", err)
		return fmt.Errorf("stopping %s: %w", d.service, err)
	}
	serviceStopCount.WithLabelValues("ok").Inc()
	d.logger.Warn("service stopped", "service", d.service)
	return nil
}

func (d *Dispatcher) sendReport(ctx context.Context, msg string, v watchdog.Verdict) error {
	if d.notifier == nil {
		return nil
	}
	if err := d.notifier.SendReport(ctx, msg, v.Report); err != nil {
		notificationCount.WithLabelValues("report", "error").Inc()
		return fmt.Errorf("notifying report %s: %w", v.Report.ID, err)
	}
	notificationCount.WithLabelValues("report", "ok").Inc()
	return nil
}

func (d *Dispatcher) sendText(ctx context.Context, kind, msg string) error {
	if d.notifier == nil {
		return nil
	}
	if err := d.notifier.SendText(ctx, msg); err != nil {
		notificationCount.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("sending %s notification: %w", kind, err)
	}
	notificationCount.WithLabelValues(kind, "ok").Inc()
	return nil
}
