package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// Periodically makes the instance follow a fixed set of accounts, so their
// posts keep federating in. Runs independently of the report loop.
type Follower struct {
	Runner CommandRunner
	// Command prefix, eg ["tootctl", "accounts", "follow"]. The account is appended.
	Command  []string
	Accounts []string
	// Paces consecutive commands; nil means no pacing.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Cleans up a comma-separated account list: trims whitespace and a leading
// '@', drops empty entries and duplicates.
func ParseAccounts(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range raw {
		for _, acct := range strings.Split(entry, ",") {
			acct = strings.TrimPrefix(strings.TrimSpace(acct), "@")
			if acct == "" || seen[acct] {
				continue
			}
			seen[acct] = true
			out = append(out, acct)
		}
	}
	return out
}

func (f *Follower) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Runs the follow command once per account. A failure for one account does
// not prevent the others; all failures are returned joined.
func (f *Follower) FollowAll(ctx context.Context) error {
	if len(f.Command) == 0 {
		return errors.New("follow: empty command")
	}
	var errs []error
	for _, acct := range f.Accounts {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return errors.Join(append(errs, err)...)
			}
		}
		args := append(append([]string{}, f.Command[1:]...), acct)
		if err := f.Runner.Run(ctx, f.Command[0], args...); err != nil {
			followCount.WithLabelValues("error").Inc()
			f.logger().Error("failed to follow account", "account", acct, "err", err)
			errs = append(errs, fmt.Errorf("following %s: %w", acct, err))
			continue
		}
		followCount.WithLabelValues("ok").Inc()
		f.logger().Info("followed account", "account", acct)
	}
	return errors.Join(errs...)
}

// Registers FollowAll on the cron scheduler. Each run gets its own timeout.
func (f *Follower) Schedule(ctx context.Context, c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := f.FollowAll(runCtx); err != nil {
			f.logger().Warn("follow run finished with errors", "err", err)
		}
	})
}

// Adapts slog to the cron.Logger interface.
type CronLogger struct {
	Logger *slog.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(keysAndValues, "err", err)...)
}

// Cron scheduler which skips a run while the previous one is still going.
func NewCron(logger *slog.Logger) *cron.Cron {
	cl := CronLogger{Logger: logger.With("component", "cron")}
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}
