// Package server binds the forwarding and admin listeners and ties them to the
// fx lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	proxyproto "github.com/pires/go-proxyproto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"fwd-proxy-go/internal/config"
	"fwd-proxy-go/internal/handler"
	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/middleware"
	"fwd-proxy-go/internal/service"
)

// Server owns the forwarding listener and the optional admin listener.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	forward *echo.Echo
	admin   *echo.Echo // nil when disabled

	// fatal is called when a listener stops serving on its own.
	fatal func(error)

	mu        sync.Mutex
	addr      net.Addr
	adminAddr net.Addr
}

// New builds both Echo instances. The forwarding instance sends every request
// to fwd; the admin instance exists only when cfg.Admin.Enabled.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, fwd *handler.ForwardHandler, health *handler.HealthHandler) *Server {
	logger = logger.With("component", "server")

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		forward: newForwardEcho(cfg, logger, m, fwd),
		fatal:   func(error) {},
	}
	if cfg.Admin.Enabled {
		s.admin = newAdminEcho(cfg, m, health)
	}
	return s
}

func newForwardEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, fwd *handler.ForwardHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout is disabled (0) so slow upstream bodies can still be
	// streamed in full.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second
	// "OPTIONS *" is forwarded like any other request.
	e.Server.DisableGeneralOptionsHandler = true

	e.HTTPErrorHandler = ErrorHandler(logger, e.DefaultHTTPErrorHandler)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if m != nil {
		e.Use(middleware.MetricsMiddleware(m))
	}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	handler.Mount(e, fwd)
	return e
}

func newAdminEcho(cfg *config.Config, m *metrics.Metrics, health *handler.HealthHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())

	var mh http.Handler
	if m != nil {
		mh = promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	}
	handler.RegisterAdminRoutes(e, health, mh, cfg.Admin.MetricsPath)
	return e
}

// ErrorHandler reports upstream transport failures for the failing request
// only and drops its connection without a reply. Other errors go to fallback.
func ErrorHandler(logger *slog.Logger, fallback echo.HTTPErrorHandler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if !errors.Is(err, service.ErrUpstream) {
			fallback(err, c)
			return
		}

		req := c.Request()
		id, _ := c.Get(middleware.RequestIDKey).(string)
		if errors.Is(err, context.Canceled) && req.Context().Err() != nil {
			logger.Debug("caller went away before upstream replied",
				"target", req.RequestURI,
				"request_id", id,
			)
		} else {
			logger.Error("upstream request failed",
				"err", err,
				"method", req.Method,
				"target", req.RequestURI,
				"request_id", id,
			)
		}

		if c.Response().Committed {
			return
		}
		// net/http closes the connection without writing a response.
		panic(http.ErrAbortHandler)
	}
}

// Start binds the listeners and serves them in the background. A bind failure
// is returned; nothing is left listening in that case.
func (s *Server) Start(_ context.Context) error {
	addr := s.cfg.Server.Addr()
	ln, err := s.listen(addr, s.cfg.Server.ProxyProtocol)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	var adminLn net.Listener
	if s.admin != nil {
		adminAddr := s.cfg.Admin.Addr()
		adminLn, err = s.listen(adminAddr, false)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("bind admin %s: %w", adminAddr, err)
		}
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	if adminLn != nil {
		s.adminAddr = adminLn.Addr()
	}
	s.mu.Unlock()

	s.logger.Info("listening", "url", "http://"+ln.Addr().String())
	go s.serve("forward", s.forward, ln)

	if adminLn != nil {
		s.logger.Info("admin listening", "url", "http://"+adminLn.Addr().String())
		go s.serve("admin", s.admin, adminLn)
	}
	return nil
}

func (s *Server) listen(addr string, withProxyProtocol bool) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if withProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	return ln, nil
}

func (s *Server) serve(name string, e *echo.Echo, ln net.Listener) {
	if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server error", "listener", name, "err", err)
		s.fatal(err)
	}
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.forward.Shutdown(ctx)
	if s.admin != nil {
		err = multierr.Append(err, s.admin.Shutdown(ctx))
	}
	return err
}

// Addr returns the bound forwarding address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// AdminAddr returns the bound admin address, or nil when disabled or before Start.
func (s *Server) AdminAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAddr
}

// Register ties the server to the fx lifecycle. A listener that stops serving
// on its own shuts the application down with exit code 1.
func Register(lc fx.Lifecycle, sd fx.Shutdowner, s *Server) {
	s.fatal = func(error) {
		_ = sd.Shutdown(fx.ExitCode(1))
	}
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
