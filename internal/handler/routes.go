package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Mount makes fwd the terminal handler for every request on e, whatever its
// method or request target. It must be the last middleware registered: the
// router result is ignored, so asterisk-form and authority-form targets that
// no route can match are forwarded too.
func Mount(e *echo.Echo, fwd *ForwardHandler) {
	e.Use(func(echo.HandlerFunc) echo.HandlerFunc {
		return fwd.Handle
	})
}

// RegisterAdminRoutes wires the health, status and metrics endpoints onto the
// admin Echo instance. A nil metrics handler skips the metrics route.
func RegisterAdminRoutes(e *echo.Echo, health *HealthHandler, metrics http.Handler, metricsPath string) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if metrics != nil {
		e.GET(metricsPath, echo.WrapHandler(metrics))
	}
}
