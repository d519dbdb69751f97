package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/insalol/reportwatch/mastodon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	reports []mastodon.Report
	err     error
}

type scriptedFetcher struct {
	results []fetchResult
	calls   int
}

func (f *scriptedFetcher) Reports(ctx context.Context) ([]mastodon.Report, error) {
	r := f.results[f.calls%len(f.results)]
	f.calls++
	return r.reports, r.err
}

type recordingDispatcher struct {
	shutdowns   []Verdict
	escalations []int
	err         error
}

func (d *recordingDispatcher) Shutdown(ctx context.Context, v Verdict) error {
	d.shutdowns = append(d.shutdowns, v)
	return d.err
}

func (d *recordingDispatcher) Escalate(ctx context.Context, cause error, failures int) error {
	d.escalations = append(d.escalations, failures)
	return d.err
}

func watchdogFixture(t *testing.T, f ReportFetcher, d Dispatcher) *Watchdog {
	w, err := New(Config{
		Fetcher:    f,
		Dispatcher: d,
		Interval:   30 * time.Minute,
		Retry:      NewRetryPolicy(10, 10*time.Second),
		Now:        func() time.Time { return evalNow },
	})
	require.NoError(t, err)
	return w
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Dispatcher: &recordingDispatcher{}})
	assert.Error(t, err)
	_, err = New(Config{Fetcher: &scriptedFetcher{}})
	assert.Error(t, err)
}

func TestRunOnceNoReports(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	d := &recordingDispatcher{}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{}}}, d)

	assert.Equal(30*time.Minute, w.RunOnce(ctx))
	assert.Empty(d.shutdowns)
	assert.Empty(d.escalations)

	st := w.Status()
	assert.Equal("idle", st.State)
	assert.Equal(evalNow, st.LastSuccess)
	assert.False(st.ShutdownRequired)
}

func TestRunOnceOverdueDispatchesShutdown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	reports := []mastodon.Report{
		reportAged("handled", 48*time.Hour, true),
		reportAged("overdue", 24*time.Hour, false),
	}
	d := &recordingDispatcher{}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{reports: reports}}}, d)

	assert.Equal(30*time.Minute, w.RunOnce(ctx))
	require.Len(t, d.shutdowns, 1)
	assert.True(d.shutdowns[0].ShutdownRequired)
	assert.Equal("overdue", d.shutdowns[0].Report.ID)

	st := w.Status()
	assert.True(st.ShutdownRequired)
	assert.Equal("overdue", st.TriggeringReport)
	assert.Equal(1, st.Unhandled)
}

func TestRunOnceDispatchErrorDoesNotAffectCadence(t *testing.T) {
	ctx := context.Background()

	reports := []mastodon.Report{reportAged("overdue", 24*time.Hour, false)}
	d := &recordingDispatcher{err: errors.New("systemctl exploded")}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{reports: reports}}}, d)

	assert.Equal(t, 30*time.Minute, w.RunOnce(ctx))
	assert.Len(t, d.shutdowns, 1)
}

func TestRunOnceAPIErrorBacksOff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	apierr := &mastodon.APIError{StatusCode: 500, Body: "server error"}
	d := &recordingDispatcher{}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{err: apierr}}}, d)

	assert.Equal(10*time.Second, w.RunOnce(ctx))
	assert.Empty(d.shutdowns)
	assert.Empty(d.escalations)

	st := w.Status()
	assert.Equal("retrying", st.State)
	assert.Equal(1, st.ConsecutiveFailures)
	assert.Contains(st.LastError, "server error")
}

func TestRunOnceEscalatesOnceThenResumesCadence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	connerr := &mastodon.ConnectivityError{Host: "https://mastodon.example", Wrapped: errors.New("connection refused")}
	d := &recordingDispatcher{}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{err: connerr}}}, d)

	for i := 1; i <= 10; i++ {
		assert.Equal(10*time.Second, w.RunOnce(ctx), "attempt %d", i)
	}
	assert.Empty(d.escalations)

	assert.Equal(30*time.Minute, w.RunOnce(ctx))
	assert.Equal([]int{11}, d.escalations)
	assert.Equal("escalated", w.Status().State)

	assert.Equal(30*time.Minute, w.RunOnce(ctx))
	assert.Equal([]int{11}, d.escalations)
}

func TestRunOnceRecoversAfterFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	f := &scriptedFetcher{results: []fetchResult{
		{err: &mastodon.DecodeError{Wrapped: errors.New("unexpected EOF")}},
		{err: &mastodon.DecodeError{Wrapped: errors.New("unexpected EOF")}},
		{},
	}}
	d := &recordingDispatcher{}
	w := watchdogFixture(t, f, d)

	assert.Equal(10*time.Second, w.RunOnce(ctx))
	assert.Equal(10*time.Second, w.RunOnce(ctx))
	assert.Equal(30*time.Minute, w.RunOnce(ctx))

	st := w.Status()
	assert.Equal("idle", st.State)
	assert.Equal(0, st.ConsecutiveFailures)
	assert.Empty(st.LastError)
}

func TestRunOnceCancelledFetchIsNotAFailure(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	connerr := &mastodon.ConnectivityError{Host: "https://mastodon.example", Wrapped: context.Canceled}
	d := &recordingDispatcher{}
	w := watchdogFixture(t, &scriptedFetcher{results: []fetchResult{{err: connerr}}}, d)

	for i := 0; i < 12; i++ {
		assert.Equal(30*time.Minute, w.RunOnce(ctx))
	}
	assert.Empty(d.escalations)
	assert.Equal(0, w.retry.Failures())

	st := w.Status()
	assert.Equal("idle", st.State)
	assert.Equal(0, st.ConsecutiveFailures)
	assert.Empty(st.LastError)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := &cancellingFetcher{cancel: cancel}
	w := watchdogFixture(t, f, &recordingDispatcher{})

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.calls)
}

type cancellingFetcher struct {
	cancel func()
	calls  int
}

func (f *cancellingFetcher) Reports(ctx context.Context) ([]mastodon.Report, error) {
	f.calls++
	f.cancel()
	return nil, nil
}
