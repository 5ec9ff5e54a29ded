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
	linesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whitebox_lines_scanned_total",
		Help: "Raw trace lines read from the backing store",
	})

	linesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whitebox_lines_skipped_total",
		Help: "Raw trace lines dropped because they failed to decode",
	})

	analyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whitebox_analyses_total",
			Help: "Historical correlation runs by result status",
		},
		[]string{"status"},
	)

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whitebox_analysis_duration_seconds",
		Help:    "Time spent reading, aggregating and matching one correlation request",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	windowRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whitebox_window_records",
		Help: "Records retained by the time filter in the last correlation run",
	})

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whitebox_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	segmentsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whitebox_segments_purged_total",
		Help: "Archived segments removed by the retention cleaner",
	})
)

// ObserveScan records one pass over the backing store.
func ObserveScan(lines, skipped int) {
	linesScanned.Add(float64(lines))
	linesSkipped.Add(float64(skipped))
}

// ObserveAnalysis records the outcome of a correlation run.
func ObserveAnalysis(status string, retained int, elapsed time.Duration) {
	analyses.WithLabelValues(status).Inc()
	analysisDuration.Observe(elapsed.Seconds())
	windowRecords.Set(float64(retained))
}

// ObserveHTTP counts one served request.
func ObserveHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObservePurge counts removed segments.
func ObservePurge(n int) {
	segmentsPurged.Add(float64(n))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
