// Package rewrite maps an inbound path-and-query onto the fixed upstream host.
package rewrite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Fixed upstream authority.
const (
	UpstreamScheme = "http"
	UpstreamHost   = "google.com"
)

// ErrMissingPathAndQuery is returned when the inbound request target has no
// path-and-query component.
var ErrMissingPathAndQuery = errors.New("invalid URL query")

// ParseError reports a rewritten URL that could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return "failed to parse URL: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Rewriter builds absolute upstream URLs. It holds no mutable state.
type Rewriter struct {
	scheme string
	host   string
}

// New creates a Rewriter for the given scheme and host (host may include a port).
func New(scheme, host string) *Rewriter {
	return &Rewriter{scheme: scheme, host: host}
}

// Default returns the Rewriter for the built-in upstream.
func Default() *Rewriter {
	return New(UpstreamScheme, UpstreamHost)
}

// Authority returns scheme://host.
func (r *Rewriter) Authority() string {
	return r.scheme + "://" + r.host
}

// Rewrite appends pathAndQuery to the upstream authority byte-for-byte and
// parses the result. The returned URL's String and RequestURI reproduce the
// input bytes; a path that net/url would re-escape is carried in Opaque.
func (r *Rewriter) Rewrite(pathAndQuery string) (*url.URL, error) {
	authority := r.Authority()
	raw := authority + pathAndQuery

	if i := invalidByte(pathAndQuery); i >= 0 {
		return nil, &ParseError{
			URL: raw,
			Err: fmt.Errorf("invalid uri character %q at offset %d", pathAndQuery[i], len(authority)+i),
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, &ParseError{URL: raw, Err: err}
	}
	// A target such as "*" would otherwise be absorbed into the host.
	if u.Host != r.host {
		return nil, &ParseError{URL: raw, Err: fmt.Errorf("invalid authority %q", u.Host)}
	}

	rawPath, _, _ := strings.Cut(pathAndQuery, "?")
	rawPath, _, _ = strings.Cut(rawPath, "#")
	if u.EscapedPath() != rawPath {
		u.Opaque = "//" + u.Host + rawPath
	}
	return u, nil
}

// PathAndQuery extracts the path-and-query component of a raw request target
// (http.Request.RequestURI). The second result is false when the target has
// none (authority-form or empty).
func PathAndQuery(target string) (string, bool) {
	switch {
	case target == "":
		return "", false
	case target == "*":
		return target, true
	case strings.HasPrefix(target, "/"):
		return target, true
	}

	// absolute-form: scheme://authority[/path][?query]
	i := strings.Index(target, "://")
	if i <= 0 {
		return "", false
	}
	rest := target[i+3:]
	if j := strings.IndexAny(rest, "/?"); j >= 0 {
		if rest[j] == '?' {
			return "/" + rest[j:], true
		}
		return rest[j:], true
	}
	return "/", true
}

// invalidByte returns the offset of the first byte of a path-and-query that
// cannot appear in a request target, or -1. Everything after the first '?'
// or '#' is checked as query.
func invalidByte(pq string) int {
	for i := 0; i < len(pq); i++ {
		c := pq[i]
		if c == '?' || c == '#' {
			for j := i + 1; j < len(pq); j++ {
				if !queryByte(pq[j]) {
					return j
				}
			}
			return -1
		}
		if !pathByte(c) {
			return i
		}
	}
	return -1
}

// pathByte accepts RFC 3986 characters plus the few that browsers and
// servers commonly leave unescaped in paths.
func pathByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', // unreserved
		':', '/', '@', '[', ']', // gen-delims
		'!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=', // sub-delims
		'%',
		'"', '{', '}', '|', '^':
		return true
	}
	return false
}

// queryByte accepts any visible ASCII byte.
func queryByte(c byte) bool {
	return c > 0x20 && c < 0x7f
}
