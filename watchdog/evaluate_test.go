package watchdog

import (
	"testing"
	"time"

	"github.com/insalol/reportwatch/mastodon"

	"github.com/stretchr/testify/assert"
)

var evalNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func reportAged(id string, age time.Duration, handled bool) mastodon.Report {
	return mastodon.Report{
		ID:          id,
		ActionTaken: handled,
		CreatedAt:   evalNow.Add(-age),
	}
}

func TestEvaluateUnhandledOverdue(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{reportAged("1", 24*time.Hour, false)}
	v := Evaluate(reports, evalNow, EvaluateOptions{})
	assert.True(v.ShutdownRequired)
	assert.Equal(evalNow, v.At)
	if assert.NotNil(v.Report) {
		assert.Equal("1", v.Report.ID)
	}
	assert.Equal(1, v.Unhandled)
	assert.Equal(24*time.Hour, v.Oldest)
}

func TestEvaluateHandledIgnored(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{reportAged("1", 48*time.Hour, true)}
	v := Evaluate(reports, evalNow, EvaluateOptions{})
	assert.False(v.ShutdownRequired)
	assert.Nil(v.Report)
	assert.Equal(0, v.Unhandled)
}

func TestEvaluateEmpty(t *testing.T) {
	assert := assert.New(t)

	assert.False(Evaluate(nil, evalNow, EvaluateOptions{}).ShutdownRequired)
	assert.False(Evaluate([]mastodon.Report{}, evalNow, EvaluateOptions{OldestFirst: true}).ShutdownRequired)
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	assert := assert.New(t)

	exact := []mastodon.Report{reportAged("exact", DefaultThreshold, false)}
	assert.False(Evaluate(exact, evalNow, EvaluateOptions{}).ShutdownRequired)

	over := []mastodon.Report{reportAged("over", DefaultThreshold+time.Second, false)}
	v := Evaluate(over, evalNow, EvaluateOptions{})
	assert.True(v.ShutdownRequired)
	assert.Equal("over", v.Report.ID)
}

func TestEvaluateFirstMatchInInputOrder(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{
		reportAged("fresh", time.Hour, false),
		reportAged("handled", 96*time.Hour, true),
		reportAged("overdue-1", 30*time.Hour, false),
		reportAged("overdue-2", 72*time.Hour, false),
	}
	v := Evaluate(reports, evalNow, EvaluateOptions{})
	assert.True(v.ShutdownRequired)
	assert.Equal("overdue-1", v.Report.ID)
	assert.Equal(3, v.Unhandled)
	assert.Equal(72*time.Hour, v.Oldest)
	// input is not reordered
	assert.Equal("fresh", reports[0].ID)
}

func TestEvaluateOldestFirst(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{
		reportAged("overdue-1", 30*time.Hour, false),
		reportAged("handled", 96*time.Hour, true),
		reportAged("overdue-2", 72*time.Hour, false),
	}
	v := Evaluate(reports, evalNow, EvaluateOptions{OldestFirst: true})
	assert.True(v.ShutdownRequired)
	assert.Equal("overdue-2", v.Report.ID)
	assert.Equal("overdue-1", reports[0].ID)
}

func TestEvaluateFutureTimestamp(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{
		reportAged("future", -2*time.Hour, false),
		reportAged("now", 0, false),
	}
	v := Evaluate(reports, evalNow, EvaluateOptions{})
	assert.False(v.ShutdownRequired)
	assert.Equal(2, v.Unhandled)
	assert.Equal(time.Duration(0), v.Oldest)
}

func TestEvaluateCustomThreshold(t *testing.T) {
	assert := assert.New(t)

	reports := []mastodon.Report{reportAged("1", 2*time.Hour, false)}
	assert.False(Evaluate(reports, evalNow, EvaluateOptions{}).ShutdownRequired)
	assert.True(Evaluate(reports, evalNow, EvaluateOptions{Threshold: time.Hour}).ShutdownRequired)
}

func TestEvaluateHandledNeverInfluences(t *testing.T) {
	assert := assert.New(t)

	base := []mastodon.Report{
		reportAged("a", time.Hour, false),
		reportAged("b", 20*time.Hour, false),
	}
	handled := []mastodon.Report{
		reportAged("x", 100*time.Hour, true),
		reportAged("a", time.Hour, false),
		reportAged("y", 50*time.Hour, true),
		reportAged("b", 20*time.Hour, false),
		reportAged("z", 24*time.Hour, true),
	}
	for _, oldestFirst := range []bool{false, true} {
		opts := EvaluateOptions{OldestFirst: oldestFirst}
		assert.Equal(Evaluate(base, evalNow, opts), Evaluate(handled, evalNow, opts))
	}
}
