// Package service implements the per-request forwarding state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"fwd-proxy-go/internal/metrics"
	"fwd-proxy-go/internal/model"
	"fwd-proxy-go/internal/rewrite"
)

// ErrUpstream marks a transport-level failure talking to the upstream. Such
// failures are not converted into a response.
var ErrUpstream = errors.New("upstream request failed")

// State is a step of the forwarding state machine.
type State int

// Forwarding states, in program order.
const (
	Received State = iota
	URLResolved
	Dispatched
	Completed
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case URLResolved:
		return "url_resolved"
	case Dispatched:
		return "dispatched"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Fetcher performs the outbound request.
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL) (*model.OutboundResponse, error)
}

// ForwardService turns an inbound request into an Outcome.
type ForwardService struct {
	rewriter *rewrite.Rewriter
	fetcher  Fetcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewForwardService creates a ForwardService. The metrics parameter is optional.
func NewForwardService(rw *rewrite.Rewriter, f Fetcher, logger *slog.Logger, m *metrics.Metrics) *ForwardService {
	return &ForwardService{
		rewriter: rw,
		fetcher:  f,
		logger:   logger.With("component", "forward_service"),
		metrics:  m,
	}
}

// Forward runs one request through Received → URLResolved → Dispatched →
// Completed. Rewrite failures complete with a Diagnostic outcome and no
// outbound call. An upstream failure is returned as an error wrapping
// ErrUpstream. On Success the caller owns Response.Body.
func (s *ForwardService) Forward(req *model.InboundRequest) (model.Outcome, error) {
	s.transition(req, Received)

	target, diag := s.resolve(req)
	if diag != "" {
		s.transition(req, Completed, "outcome", model.Diagnostic.String(), "diagnostic", diag)
		s.count(metrics.OutcomeDiagnostic)
		return model.DiagnosticOutcome(diag), nil
	}
	s.transition(req, URLResolved, "url", target.String())

	s.transition(req, Dispatched)
	resp, err := s.fetcher.Fetch(req.Ctx, target)
	if err != nil {
		s.transition(req, Completed, "outcome", "error")
		s.count(metrics.OutcomeUpstreamError)
		return model.Outcome{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	s.transition(req, Completed, "outcome", model.Success.String(), "status", resp.StatusCode)
	s.count(metrics.OutcomeSuccess)
	return model.SuccessOutcome(resp), nil
}

// resolve returns the outbound URL, or diagnostic text when rewriting fails.
func (s *ForwardService) resolve(req *model.InboundRequest) (*url.URL, string) {
	pq, ok := rewrite.PathAndQuery(req.RequestURI)
	if !ok {
		return nil, rewrite.ErrMissingPathAndQuery.Error()
	}
	target, err := s.rewriter.Rewrite(pq)
	if err != nil {
		return nil, err.Error()
	}
	return target, ""
}

func (s *ForwardService) transition(req *model.InboundRequest, st State, args ...any) {
	s.logger.Debug("forward state",
		append([]any{"state", st.String(), "request_id", req.ID, "method", req.Method}, args...)...,
	)
}

func (s *ForwardService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.OutcomesTotal.WithLabelValues(outcome).Inc()
	}
}
