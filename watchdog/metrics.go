package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("watchdog")

var cyclesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_cycles_total",
	Help: "Number of watchdog cycles, by result",
}, []string{"result"})

var fetchErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_fetch_errors_total",
	Help: "Number of failed report fetches, by error kind",
}, []string{"kind"})

var fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "reportwatch_fetch_duration_sec",
	Help: "Duration of report fetch attempts",
})

var consecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reportwatch_consecutive_fetch_failures",
	Help: "Current run of consecutive report fetch failures",
})

var unhandledReports = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reportwatch_unhandled_reports",
	Help: "Reports with no moderator action at the last successful fetch",
})

var oldestUnhandledAge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reportwatch_oldest_unhandled_report_age_sec",
	Help: "Age of the oldest unhandled report at the last successful fetch",
})

var escalationCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reportwatch_escalations_total",
	Help: "Number of times sustained fetch failure was escalated",
})

var shutdownVerdictCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reportwatch_shutdown_verdicts_total",
	Help: "Number of cycles which concluded a shutdown is required",
})

var dispatchErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_dispatch_errors_total",
	Help: "Number of failed dispatcher calls, by action",
}, []string{"action"})
