// Package metrics holds the prometheus collectors for the pipeline scheduler and the HTTP endpoints.
//
// Collectors register on the default registry through promauto. Stage labels are the scheduler's
// stage names (download, examine, media_process, sidecar_process).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/tfx/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline metrics
var (
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfx_claims_total",
			Help: "Entities claimed by the scheduler, per stage.",
		},
		[]string{"stage"},
	)

	inFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tfx_in_flight",
			Help: "Units of work currently running, per stage.",
		},
		[]string{"stage"},
	)

	stageLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tfx_stage_limit",
			Help: "Configured concurrency budget, per stage.",
		},
		[]string{"stage"},
	)

	unitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfx_unit_duration_seconds",
			Help:    "Duration of one unit of work, per stage and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		},
		[]string{"stage", "outcome"},
	)

	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfx_failures_total",
			Help: "Units of work that ended in a failed status, per stage and error class.",
		},
		[]string{"stage", "class"},
	)

	downloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfx_downloaded_bytes_total",
		Help: "Bytes written to the downloads directory.",
	})

	mediaRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfx_media_records_total",
		Help: "Media records created for filed pairs.",
	})
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfx_http_requests_total",
			Help: "HTTP requests served by the status server.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfx_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome labels for [ObserveUnit]
const (
	OutcomeDone   = "done"
	OutcomeParked = "parked"
	OutcomeFailed = "failed"
)

func ObserveClaim(stage string) {
	claimsTotal.WithLabelValues(stage).Inc()
}

func SetInFlight(stage string, n int) {
	inFlight.WithLabelValues(stage).Set(float64(n))
}

func SetStageLimit(stage string, n int) {
	stageLimit.WithLabelValues(stage).Set(float64(n))
}

// ObserveUnit records the duration of a finished unit of work.
func ObserveUnit(stage, outcome string, d time.Duration) {
	unitDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// ObserveFailure counts a failed unit of work under the class [shared.Classify] assigns to err.
func ObserveFailure(stage string, err error) {
	failuresTotal.WithLabelValues(stage, shared.Classify(err)).Inc()
}

func AddDownloadedBytes(n int64) {
	if n > 0 {
		downloadedBytes.Add(float64(n))
	}
}

func IncMediaRecords() {
	mediaRecordsTotal.Inc()
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations. Paths are the registered route patterns,
// so unknown paths collapse into "other".
func Middleware(routes ...string) func(http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			path := r.URL.Path
			if !known[path] {
				path = "other"
			}

			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
