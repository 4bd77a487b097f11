// Package metrics exposes Prometheus counters and histograms for the
// HTTP API, the generator, and the sync service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests served by the local API, by route, method, and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lmassist",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	KnowledgeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "knowledge_ops_total",
		Help:      "Knowledge store operations by kind (create, update, delete, get, list, search) and outcome.",
	}, []string{"op", "outcome"})

	GenerateRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "generate_runs_total",
		Help:      "Candidate generation attempts by outcome (created, rejected, error).",
	}, []string{"outcome"})

	GenerateBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lmassist",
		Name:      "generate_batch_size",
		Help:      "Number of candidates submitted per batch generation run.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "sync_runs_total",
		Help:      "Remote sync runs by outcome (ok, error, conflict).",
	}, []string{"outcome"})

	SyncDocumentsPulled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "sync_documents_pulled_total",
		Help:      "Total peer documents pulled across all sync runs.",
	})

	RelayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmassist",
		Name:      "relay_requests_total",
		Help:      "Relayed requests forwarded to the local API, by outcome (ok, rejected, timeout).",
	}, []string{"outcome"})
)

// Handler returns the promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps h, recording HTTPRequestsTotal and HTTPRequestDuration
// for every request. routeLabel should be a low-cardinality route template
// (e.g. "/knowledge/{id}"), not the raw request path.
func Middleware(routeLabel string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		HTTPRequestsTotal.WithLabelValues(routeLabel, r.Method, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(routeLabel, r.Method).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
