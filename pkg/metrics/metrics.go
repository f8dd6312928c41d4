package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snatchd_tasks_total",
			Help: "Number of task rows by type and status",
		},
		[]string{"type", "status"},
	)

	SnatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snatchd_snatch_attempts_total",
			Help: "Total launch attempts by account alias",
		},
		[]string{"alias"},
	)

	SnatchSuccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snatchd_snatch_success_total",
			Help: "Total snatches that landed an instance, by account alias",
		},
		[]string{"alias"},
	)

	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snatchd_tasks_failed_total",
			Help: "Total tasks that ended in failure",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snatchd_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snatchd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(SnatchAttemptsTotal)
	prometheus.MustRegister(SnatchSuccessTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
