// Package middleware provides Echo middleware for request ids, logging and metrics.
package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"fwd-proxy-go/internal/service"
)

// RequestIDKey is the echo context key holding the request id.
const RequestIDKey = "request_id"

// RequestID returns echo's RequestID middleware with the id also stored
// under RequestIDKey, so it survives handlers that reset response headers.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set(RequestIDKey, id)
		},
	})
}

// RequestLogger returns an Echo middleware that logs each request with slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			var status any = res.Status
			if errors.Is(err, service.ErrUpstream) {
				status = statusAborted
			}

			id, _ := c.Get(RequestIDKey).(string)
			logger.Info("request",
				"method", req.Method,
				"target", req.RequestURI,
				"status", status,
				"committed", res.Committed,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", id,
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
				"size", humanize.Bytes(uint64(max(res.Size, 0))),
			)

			return err
		}
	}
}
