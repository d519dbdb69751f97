package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/insalol/reportwatch/mastodon"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultInterval = 30 * time.Minute

type ReportFetcher interface {
	Reports(ctx context.Context) ([]mastodon.Report, error)
}

// Receives the decisions of the loop. Calls are synchronous: the next fetch
// does not start until the call returns.
type Dispatcher interface {
	// Called on every cycle whose verdict requires a shutdown.
	Shutdown(ctx context.Context, v Verdict) error
	// Called once when consecutive fetch failures cross the retry threshold.
	Escalate(ctx context.Context, cause error, failures int) error
}

type Config struct {
	Fetcher    ReportFetcher
	Dispatcher Dispatcher
	Logger     *slog.Logger
	// Wait between cycles when not retrying. Defaults to DefaultInterval.
	Interval time.Duration
	// Defaults to NewRetryPolicy(0, 0).
	Retry    *RetryPolicy
	Evaluate EvaluateOptions
	// Clock; defaults to time.Now.
	Now func() time.Time
}

type Watchdog struct {
	fetcher    ReportFetcher
	dispatcher Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	retry      *RetryPolicy
	evalOpts   EvaluateOptions
	now        func() time.Time

	mu     sync.Mutex
	status Status
}

// Point-in-time view of the loop, for health checks.
type Status struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastCycle           time.Time `json:"lastCycle"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastError           string    `json:"lastError,omitempty"`
	Unhandled           int       `json:"unhandled"`
	OldestUnhandled     string    `json:"oldestUnhandled,omitempty"`
	ShutdownRequired    bool      `json:"shutdownRequired"`
	TriggeringReport    string    `json:"triggeringReport,omitempty"`
}

func New(config Config) (*Watchdog, error) {
	if config.Fetcher == nil {
		return nil, errors.New("watchdog: report fetcher is required")
	}
	if config.Dispatcher == nil {
		return nil, errors.New("watchdog: dispatcher is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	retry := config.Retry
	if retry == nil {
		retry = NewRetryPolicy(0, 0)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Watchdog{
		fetcher:    config.Fetcher,
		dispatcher: config.Dispatcher,
		logger:     logger.With("component", "watchdog"),
		interval:   interval,
		retry:      retry,
		evalOpts:   config.Evaluate,
		now:        now,
		status:     Status{State: StateIdle.String()},
	}, nil
}

// Runs cycles until the context is cancelled. Never returns on its own.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info("report watchdog starting up", "interval", w.interval, "retryBackoff", w.retry.Backoff, "retryThreshold", w.retry.Threshold)
	for {
		delay := w.RunOnce(ctx)
		w.logger.Debug("sleeping", "duration", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("report watchdog stopping", "err", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Runs a single fetch, evaluate, dispatch cycle and returns how long to wait
// before the next one.
func (w *Watchdog) RunOnce(ctx context.Context) time.Duration {
	ctx, span := tracer.Start(ctx, "RunOnce")
	defer span.End()

	start := time.Now()
	reports, err := w.fetcher.Reports(ctx)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil {
		// shutting down; the aborted fetch says nothing about the instance
		w.logger.Debug("report fetch interrupted", "err", err)
		return w.interval
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return w.handleFailure(ctx, err)
	}

	w.retry.RecordSuccess()
	consecutiveFailures.Set(0)

	now := w.now()
	v := Evaluate(reports, now, w.evalOpts)
	unhandledReports.Set(float64(v.Unhandled))
	oldestUnhandledAge.Set(v.Oldest.Seconds())
	span.SetAttributes(
		attribute.Int("reports", len(reports)),
		attribute.Int("unhandled", v.Unhandled),
		attribute.Bool("shutdown_required", v.ShutdownRequired),
	)
	w.recordSuccess(now, v)

	if !v.ShutdownRequired {
		cyclesCount.WithLabelValues("ok").Inc()
		w.logger.Info("no overdue reports", "reports", len(reports), "unhandled", v.Unhandled, "oldest", v.Oldest.Truncate(time.Second))
		return w.interval
	}

	cyclesCount.WithLabelValues("shutdown").Inc()
	shutdownVerdictCount.Inc()
	w.logger.Warn("unhandled report past deadline, shutdown required",
		"report", v.Report.ID,
		"age", v.Report.Age(now).Truncate(time.Second),
		"category", v.Report.Category,
		"unhandled", v.Unhandled,
	)
	if err := w.dispatcher.Shutdown(ctx, v); err != nil {
		dispatchErrorCount.WithLabelValues("shutdown").Inc()
		w.logger.Error("failed to dispatch shutdown", "report", v.Report.ID, "err", err)
	}
	return w.interval
}

func (w *Watchdog) handleFailure(ctx context.Context, err error) time.Duration {
	kind := mastodon.ErrorKind(err)
	fetchErrorCount.WithLabelValues(kind).Inc()
	cyclesCount.WithLabelValues("error").Inc()

	escalate := w.retry.RecordFailure()
	failures := w.retry.Failures()
	consecutiveFailures.Set(float64(failures))

	var apierr *mastodon.APIError
	if errors.As(err, &apierr) {
		w.logger.Error("failed to fetch reports", "kind", kind, "status", apierr.StatusCode, "body", apierr.Body, "failures", failures)
	} else {
		w.logger.Error("failed to fetch reports", "kind", kind, "err", err, "failures", failures)
	}

	w.recordFailure(err)

	if escalate {
		escalationCount.Inc()
		w.logger.Error("report state unobservable, escalating", "failures", failures, "threshold", w.retry.Threshold)
		if derr := w.dispatcher.Escalate(ctx, err, failures); derr != nil {
			dispatchErrorCount.WithLabelValues("escalate").Inc()
			w.logger.Error("failed to dispatch escalation", "err", derr)
		}
	}

	delay := w.retry.Delay(w.interval)
	if w.retry.State() == StateRetrying {
		w.logger.Info("retrying report fetch after backoff", "backoff", delay, "failures", failures)
	}
	return delay
}

func (w *Watchdog) recordSuccess(now time.Time, v Verdict) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.State = w.retry.State().String()
	w.status.ConsecutiveFailures = 0
	w.status.LastCycle = now
	w.status.LastSuccess = now
	w.status.LastError = ""
	w.status.Unhandled = v.Unhandled
	w.status.OldestUnhandled = v.Oldest.Truncate(time.Second).String()
	w.status.ShutdownRequired = v.ShutdownRequired
	w.status.TriggeringReport = ""
	if v.Report != nil {
		w.status.TriggeringReport = v.Report.ID
	}
}

func (w *Watchdog) recordFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.State = w.retry.State().String()
	w.status.ConsecutiveFailures = w.retry.Failures()
	w.status.LastCycle = w.now()
	w.status.LastError = err.Error()
}

func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
