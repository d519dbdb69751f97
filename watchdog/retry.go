package watchdog

import (
	"time"
)

const (
	DefaultRetryThreshold = 10
	DefaultRetryBackoff   = 10 * time.Second
)

type RetryState int

const (
	StateIdle RetryState = iota
	StateRetrying
	StateEscalated
)

func (s RetryState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrying:
		return "retrying"
	case StateEscalated:
		return "escalated"
	}
	return "unknown"
}

// Tracks consecutive fetch failures for a single loop. Not safe for
// concurrent use; owned by the goroutine running the loop.
type RetryPolicy struct {
	// Number of consecutive failures tolerated before escalating. Escalation
	// happens on failure number Threshold+1.
	Threshold int
	// Wait between attempts while retrying.
	Backoff time.Duration

	failures  int
	escalated bool
}

func NewRetryPolicy(threshold int, backoff time.Duration) *RetryPolicy {
	if threshold <= 0 {
		threshold = DefaultRetryThreshold
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &RetryPolicy{
		Threshold: threshold,
		Backoff:   backoff,
	}
}

func (p *RetryPolicy) RecordSuccess() {
	p.failures = 0
	p.escalated = false
}

// Records a failed fetch. Returns true exactly once per run of consecutive
// failures: on the failure that first exceeds the threshold.
func (p *RetryPolicy) RecordFailure() bool {
	p.failures++
	if p.failures > p.Threshold && !p.escalated {
		p.escalated = true
		return true
	}
	return false
}

func (p *RetryPolicy) Failures() int {
	return p.failures
}

func (p *RetryPolicy) State() RetryState {
	switch {
	case p.escalated:
		return StateEscalated
	case p.failures > 0:
		return StateRetrying
	}
	return StateIdle
}

// How long to wait before the next attempt. While retrying that is the short
// backoff; when idle or escalated it is the regular cadence.
func (p *RetryPolicy) Delay(cadence time.Duration) time.Duration {
	if p.State() == StateRetrying {
		return p.Backoff
	}
	return cadence
}
