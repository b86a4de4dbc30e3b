package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"pnr_quality/internal/domain"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pnrq", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pnrq", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	ExternalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "external_errors_total", Help: "Outbound requests that got no response."},
		[]string{"service", "reason"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "cache_events_total", Help: "Cache hits/misses/sets."},
		[]string{"cache", "event"}, // event: hit|miss|set
	)
	Imports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "imports_total", Help: "Bulk imports by outcome."},
		[]string{"status"}, // ok|failed
	)
	ImportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "import_failures_total", Help: "Failed bulk imports by reason."},
		[]string{"reason"},
	)
	ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pnrq", Name: "import_rows_total", Help: "Source rows by outcome."},
		[]string{"outcome"}, // processed|skipped|bad_date|duplicate_passenger|duplicate_contact
	)
	ImportLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pnrq", Name: "import_duration_seconds",
			Help:    "Bulk import duration seconds.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
	SnapshotPNRs = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pnrq", Name: "snapshot_pnrs", Help: "PNRs in the last scored snapshot."},
	)
	SnapshotAvgScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pnrq", Name: "snapshot_avg_score", Help: "Average quality score of the last scored snapshot."},
	)
)

// Serve exposes reg on a dedicated listener; an empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, ExternalErrors, CacheEvents,
		Imports, ImportFailures, ImportRows, ImportLatency, SnapshotPNRs, SnapshotAvgScore,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveExternalError(service string, err error) {
	ExternalErrors.WithLabelValues(service, LabelErr(err)).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set
	CacheEvents.WithLabelValues(cache, event).Inc()
}

// RowCounts mirrors importer.Stats without importing it.
type RowCounts struct {
	Processed, Skipped, BadDates, DuplicatePassengers, DuplicateContacts int
}

// ObserveImport records one run; err is nil for a successful one.
func ObserveImport(status string, rows RowCounts, dur time.Duration, err error) {
	Imports.WithLabelValues(status).Inc()
	if err != nil {
		ImportFailures.WithLabelValues(LabelErr(err)).Inc()
	}
	ImportLatency.Observe(dur.Seconds())
	ImportRows.WithLabelValues("processed").Add(float64(rows.Processed))
	ImportRows.WithLabelValues("skipped").Add(float64(rows.Skipped))
	ImportRows.WithLabelValues("bad_date").Add(float64(rows.BadDates))
	ImportRows.WithLabelValues("duplicate_passenger").Add(float64(rows.DuplicatePassengers))
	ImportRows.WithLabelValues("duplicate_contact").Add(float64(rows.DuplicateContacts))
}

func ObserveSnapshot(pnrs int, avgScore float64) {
	SnapshotPNRs.Set(float64(pnrs))
	SnapshotAvgScore.Set(avgScore)
}

// LabelErr maps err onto a small, fixed label set.
func LabelErr(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrEmptyTable):
		return "empty_table"
	case errors.Is(err, domain.ErrMissingColumn):
		return "missing_column"
	case errors.Is(err, domain.ErrForeignSource):
		return "foreign_source"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
