package web

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modserver",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests dispatched, by route kind and status code.",
	}, []string{"kind", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "modserver",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent dispatching a request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "modserver",
		Subsystem: "http",
		Name:      "sessions_active",
		Help:      "Connections currently being served.",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modserver",
		Subsystem: "http",
		Name:      "sessions_total",
		Help:      "Connections accepted.",
	})
)

func observeRequest(kind string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
