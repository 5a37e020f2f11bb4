package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PgErrCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peakform",
		Subsystem: "pg",
		Name:      "pg_err_count",
	}, []string{"method"})
	PgDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peakform",
		Subsystem: "pg",
		Name:      "pg_duration",
	}, []string{"method"})
	CalendarErrCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peakform",
		Subsystem: "calendar",
		Name:      "calendar_err_count",
	}, []string{"op"})
	CalendarDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peakform",
		Subsystem: "calendar",
		Name:      "calendar_duration",
	}, []string{"op"})
	RateLimitedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peakform",
		Subsystem: "http",
		Name:      "rate_limited_count",
	}, []string{"route"})
)
