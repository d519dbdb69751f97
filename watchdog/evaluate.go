package watchdog

import (
	"sort"
	"time"

	"github.com/insalol/reportwatch/mastodon"
)

// Unhandled reports strictly older than this require an emergency shutdown.
const DefaultThreshold = 23 * time.Hour

type Verdict struct {
	ShutdownRequired bool
	// First overdue report, in scan order. Nil unless ShutdownRequired.
	Report *mastodon.Report
	// Number of reports with no action taken.
	Unhandled int
	// Age of the oldest unhandled report; zero if there are none.
	Oldest time.Duration
	// Time the verdict was computed at. Report ages are relative to it.
	At time.Time
}

type EvaluateOptions struct {
	// Defaults to DefaultThreshold when zero.
	Threshold time.Duration
	// Scan unhandled reports oldest first instead of in API order, so the
	// triggering report is the most overdue one.
	OldestFirst bool
}

// Decides whether any unhandled report is past the deadline at time now.
//
// Reports with ActionTaken set never influence the verdict. Reports dated in
// the future have a negative age and never trigger.
func Evaluate(reports []mastodon.Report, now time.Time, opts EvaluateOptions) Verdict {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	pending := make([]*mastodon.Report, 0, len(reports))
	for i := range reports {
		if reports[i].ActionTaken {
			continue
		}
		pending = append(pending, &reports[i])
	}

	if opts.OldestFirst {
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		})
	}

	v := Verdict{Unhandled: len(pending), At: now}
	for _, r := range pending {
		age := r.Age(now)
		if age > v.Oldest {
			v.Oldest = age
		}
		if !v.ShutdownRequired && age > threshold {
			v.ShutdownRequired = true
			v.Report = r
		}
	}
	return v
}
