package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/service"
)

// statusAborted labels requests whose connection was dropped without a reply.
const statusAborted = "aborted"

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			// When a handler returns an error the response has not been
			// written yet; the central error handler does that later.
			status := strconv.Itoa(c.Response().Status)
			if err != nil {
				var he *echo.HTTPError
				switch {
				case errors.Is(err, service.ErrUpstream):
					status = statusAborted
				case errors.As(err, &he):
					status = strconv.Itoa(he.Code)
				}
			}

			method := metrics.NormalizeMethod(c.Request().Method)
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status).Inc()
			m.RequestDuration.WithLabelValues(method, status).Observe(duration)

			return err
		}
	}
}
