// Package client provides the outbound HTTP client for the upstream host.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fwd-proxy-go/internal/config"
	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/model"
)

// UpstreamClient issues outbound requests to the upstream.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient. A zero upstream timeout leaves
// the request bounded only by the caller's context.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Bodies are relayed byte-for-byte, so never negotiate gzip on the
		// caller's behalf.
		DisableCompression: true,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are the caller's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an outbound request and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(or *model.OutboundRequest) (*model.OutboundResponse, error) {
	req, err := http.NewRequestWithContext(or.Ctx, or.Method, or.URL.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	// Keep Opaque, which carries path bytes a reparse would escape.
	req.URL = or.URL

	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via OutboundResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
			c.metrics.UpstreamErrors.Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.OutboundResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Fetch issues the outbound GET for target. The context controls the lifetime
// of the upstream request: when it is canceled (e.g. the caller disconnects),
// the in-flight request and its connection are released.
func (c *UpstreamClient) Fetch(ctx context.Context, target *url.URL) (*model.OutboundResponse, error) {
	return c.Do(&model.OutboundRequest{
		Ctx:    ctx,
		Method: model.ForwardMethod,
		URL:    target,
	})
}
