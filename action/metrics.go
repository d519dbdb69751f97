package action

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var serviceStopCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_service_stops_total",
	Help: "Number of service stop attempts, by outcome",
}, []string{"outcome"})

var notificationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_notifications_total",
	Help: "Number of notifications, by kind and outcome",
}, []string{"kind", "outcome"})

var followCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reportwatch_follows_total",
	Help: "Number of follow command runs, by outcome",
}, []string{"outcome"})
