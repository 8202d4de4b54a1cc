package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"fwd-proxy-go/internal/middleware"
	"fwd-proxy-go/internal/model"
	"fwd-proxy-go/internal/service"
)

// hopByHopHeaders describe the upstream connection, not the response, and are
// never relayed. Headers named in the upstream's Connection header are dropped
// as well.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardHandler relays every inbound request to the upstream.
type ForwardHandler struct {
	service *service.ForwardService
	logger  *slog.Logger
}

// NewForwardHandler creates a ForwardHandler.
func NewForwardHandler(svc *service.ForwardService, logger *slog.Logger) *ForwardHandler {
	return &ForwardHandler{
		service: svc,
		logger:  logger.With("component", "forward_handler"),
	}
}

// Handle forwards the request and writes exactly one reply: the upstream
// response verbatim, or a 200 text/plain diagnostic. Upstream failures are
// returned unwritten for the server's error handler.
func (h *ForwardHandler) Handle(c echo.Context) error {
	req := c.Request()

	in := &model.InboundRequest{
		Ctx:        req.Context(),
		ID:         requestID(c),
		Method:     req.Method,
		RequestURI: req.RequestURI,
		Header:     req.Header,
		Body:       req.Body,
	}

	out, err := h.service.Forward(in)
	if err != nil {
		return err
	}

	if out.Kind == model.Diagnostic {
		return WriteDiagnostic(c, out.Diagnostic)
	}
	return h.relay(c, out.Response)
}

// WriteDiagnostic writes text as a 200 plain-text response.
func WriteDiagnostic(c echo.Context, text string) error {
	clear(c.Response().Header())
	return c.String(http.StatusOK, text)
}

func (h *ForwardHandler) relay(c echo.Context, resp *model.OutboundResponse) error {
	defer func() { _ = resp.Body.Close() }()

	// Drop anything middleware put on the response; the reply carries the
	// upstream's headers only.
	dst := c.Response().Header()
	clear(dst)
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	for _, v := range resp.Header["Connection"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		dst.Del(key)
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is out a copy failure can only truncate the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"request_id", requestID(c),
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

// requestID returns the id stored by the RequestID middleware, if any.
func requestID(c echo.Context) string {
	if id, ok := c.Get(middleware.RequestIDKey).(string); ok {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
