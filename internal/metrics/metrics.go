// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "csvshare"

var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	},
	[]string{"route", "method", "code"},
)

var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

var UploadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Finished uploads by result: ok, invalid, too_large, busy or failed.",
	},
	[]string{"result"},
)

var UploadRows = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_rows_total",
		Help:      "Data rows stored by successful uploads.",
	},
)

var UploadCells = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_cells_total",
		Help:      "Cells written by uploads, including rolled back ones.",
	},
)

var UploadBytes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes read from upload bodies.",
	},
)

var UploadsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uploads_active",
		Help:      "Uploads currently holding a limiter slot.",
	},
)

var TableQueries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "table_queries_total",
		Help:      "Table fetches by whether filters or sorting were applied.",
	},
	[]string{"filtered", "sorted"},
)

var RateLimited = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-IP rate limiter.",
	},
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(UploadRows)
	prometheus.MustRegister(UploadCells)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(UploadsActive)
	prometheus.MustRegister(TableQueries)
	prometheus.MustRegister(RateLimited)
}
