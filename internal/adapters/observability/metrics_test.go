package observability_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pnr_quality/internal/adapters/observability"
	"pnr_quality/internal/domain"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record samples so the vectors are exported
	observability.ObserveHTTP("/v1/stats", "GET", 200, 12*time.Millisecond)
	observability.ObserveImport("ok", observability.RowCounts{Processed: 6, Skipped: 1}, 2*time.Second, nil)
	observability.ObserveImport("failed", observability.RowCounts{}, time.Second, fmt.Errorf("read: %w", domain.ErrEmptyTable))
	observability.ObserveExternalError("sbrfeed", context.DeadlineExceeded)
	observability.ObserveSnapshot(10, 62.5)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{
		"pnrq_http_requests_total",
		"pnrq_imports_total",
		`pnrq_import_rows_total{outcome="processed"}`,
		"pnrq_snapshot_avg_score 62.5",
		`pnrq_import_failures_total{reason="empty_table"} 1`,
		`pnrq_external_errors_total{reason="timeout",service="sbrfeed"} 1`,
	} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestLabelErr(t *testing.T) {
	cases := map[string]error{
		"none":           nil,
		"other":          io.EOF,
		"timeout":        fmt.Errorf("fetch: %w", context.DeadlineExceeded),
		"missing_column": fmt.Errorf("header: %w", domain.ErrMissingColumn),
		"foreign_source": fmt.Errorf("%w: https://elsewhere", domain.ErrForeignSource),
		"not_found":      domain.ErrNotFound,
	}
	for want, err := range cases {
		if got := observability.LabelErr(err); got != want {
			t.Fatalf("LabelErr(%v) = %q, want %q", err, got, want)
		}
	}
}
