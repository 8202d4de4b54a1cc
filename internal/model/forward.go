// Package model defines shared request-scoped types for the forwarder.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ForwardMethod is the method used for every outbound request, whatever the
// inbound method was.
const ForwardMethod = http.MethodGet

// InboundRequest is the caller's request as seen by the forward handler.
type InboundRequest struct {
	Ctx        context.Context
	ID         string // request id, for logging
	Method     string
	RequestURI string // raw request target, unmodified
	Header     http.Header
	Body       io.ReadCloser
}

// OutboundRequest is the request issued to the upstream on the caller's behalf.
type OutboundRequest struct {
	Ctx    context.Context
	Method string
	URL    *url.URL
}

// OutboundResponse is the upstream response to be streamed back verbatim.
type OutboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// OutcomeKind discriminates an Outcome.
type OutcomeKind int

const (
	// Success carries an upstream response.
	Success OutcomeKind = iota
	// Diagnostic carries error text to be returned with a 200 status.
	Diagnostic
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Diagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a handled request that produced a reply.
type Outcome struct {
	Kind       OutcomeKind
	Response   *OutboundResponse
	Diagnostic string
}

// SuccessOutcome wraps an upstream response.
func SuccessOutcome(resp *OutboundResponse) Outcome {
	return Outcome{Kind: Success, Response: resp}
}

// DiagnosticOutcome wraps diagnostic text.
func DiagnosticOutcome(text string) Outcome {
	return Outcome{Kind: Diagnostic, Diagnostic: text}
}
