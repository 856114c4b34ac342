package service

import (
	"fmt"
	"net/url"

	"gemini-proxy-go/internal/model"
)

// UpstreamHost is the fixed backend every request is forwarded to.
const UpstreamHost = "generativelanguage.googleapis.com"

// upstreamScheme is forced on every rewritten URL regardless of the inbound scheme.
const upstreamScheme = "https"

// Rewriter points inbound URLs at the upstream host.
type Rewriter struct {
	host string
}

// NewRewriter returns a Rewriter targeting host, which must be a bare
// host or host:port.
func NewRewriter(host string) (*Rewriter, error) {
	if host == "" {
		return nil, fmt.Errorf("upstream host is empty")
	}
	u, err := url.Parse(upstreamScheme + "://" + host)
	if err != nil {
		return nil, fmt.Errorf("upstream host %q: %w", host, err)
	}
	if u.Host != host || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("upstream host %q is not a bare host[:port]", host)
	}
	return &Rewriter{host: host}, nil
}

// Host returns the upstream host requests are rewritten to.
func (r *Rewriter) Host() string {
	return r.host
}

// BaseURL returns the upstream origin, e.g. https://generativelanguage.googleapis.com.
func (r *Rewriter) BaseURL() string {
	return upstreamScheme + "://" + r.host
}

// Rewrite returns a copy of u with the upstream scheme and host. Path,
// query and fragment are kept as-is; u is not modified.
//
// User info is cleared, otherwise net/http would turn it into an
// Authorization header on the outbound request.
func (r *Rewriter) Rewrite(u *url.URL) (*url.URL, error) {
	if u == nil {
		return nil, &model.URLRewriteError{Reason: "missing url"}
	}
	if u.Opaque != "" {
		return nil, &model.URLRewriteError{URL: u.Redacted(), Reason: "opaque url cannot carry a host"}
	}

	out := *u
	out.User = nil
	out.Scheme = upstreamScheme
	out.Host = r.host
	return &out, nil
}
