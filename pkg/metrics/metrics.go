package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker lifecycle
	WorkersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pvcship_workers_created_total",
			Help: "Total number of worker pods created",
		},
	)

	WorkersDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pvcship_workers_deleted_total",
			Help: "Total number of worker pods deleted",
		},
	)

	// Transfer metrics
	BytesStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcship_bytes_streamed_total",
			Help: "Total bytes moved through workers by direction",
		},
		[]string{"direction"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcship_jobs_total",
			Help: "Total jobs by result",
		},
		[]string{"result"},
	)

	JobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pvcship_job_duration_seconds",
			Help:    "Duration of transfer jobs",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	TransferFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvcship_transfer_failures_total",
			Help: "Stream failures by class (oom, generic, worker-gone, clear)",
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersCreatedTotal,
		WorkersDeletedTotal,
		BytesStreamedTotal,
		JobsTotal,
		JobDurationSeconds,
		TransferFailuresTotal,
	)
}

// Serve exposes /metrics on addr for the duration of a batch run. Errors
// from the listener are returned to the caller's goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
