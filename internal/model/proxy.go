// Package model defines shared types for the proxy pipeline.
package model

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
)

// Method is the closed set of request methods the proxy forwards.
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch

	methodCount
)

var methodTokens = [methodCount]string{
	MethodGet:     "GET",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodHead:    "HEAD",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// Methods returns every supported method in declaration order.
func Methods() []Method {
	out := make([]Method, 0, methodCount)
	for m := range methodCount {
		out = append(out, m)
	}
	return out
}

// ParseMethod maps a request-line method token onto Method.
// Tokens are case-sensitive, as in HTTP.
func ParseMethod(token string) (Method, error) {
	for m, t := range methodTokens {
		if t == token {
			return Method(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, token)
}

// Valid reports whether m is one of the declared methods.
func (m Method) Valid() bool {
	return m >= 0 && m < methodCount
}

func (m Method) String() string {
	if !m.Valid() {
		return "UNKNOWN"
	}
	return methodTokens[m]
}

// InboundRequest is the request as received from the downstream client.
// Body is read at most once.
type InboundRequest struct {
	Ctx    context.Context
	Method Method
	URL    *url.URL
	Header http.Header
	Body   io.ReadCloser
}

// OutboundRequest is the request sent to the upstream after rewriting.
type OutboundRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// UpstreamResponse is the upstream reply with its body still unread.
// Whoever holds it owns Body and must close it.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// OutboundResponse is the value relayed back to the client. Body is a
// single-pass sequence of chunks; each chunk is only valid until the next
// iteration step.
type OutboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       iter.Seq2[[]byte, error]
}
