package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/service"
)

// findRequestsTotal returns the fwd_proxy_http_requests_total sample with the
// given labels, or nil.
func findRequestsTotal(t *testing.T, m *metrics.Metrics, method, status string) *dto.Metric {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "fwd_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["status_code"] == status {
				return metric
			}
		}
	}
	return nil
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/search", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/search?q=rust", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	metric := findRequestsTotal(t, m, "GET", "200")
	if metric == nil {
		t.Fatal("expected fwd_proxy_http_requests_total with method=GET status_code=200")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "fwd_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected fwd_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/x", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestsTotal(t, m, "GET", "404") == nil {
		t.Error("expected fwd_proxy_http_requests_total with status_code=404")
	}
}

func TestMetricsMiddleware_UpstreamErrorLabelledAborted(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/x", func(c echo.Context) error {
		return fmt.Errorf("%w: connection refused", service.ErrUpstream)
	})
	// Keep the default error handler from writing a 500 that would mask the label.
	e.HTTPErrorHandler = func(error, echo.Context) {}

	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestsTotal(t, m, "GET", statusAborted) == nil {
		t.Error("expected fwd_proxy_http_requests_total with status_code=aborted")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/x", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestsTotal(t, m, "other", "200") == nil {
		t.Error("expected fwd_proxy_http_requests_total with method=other")
	}
}
