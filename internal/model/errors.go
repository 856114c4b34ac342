package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrUnsupportedMethod is returned by ParseMethod for tokens outside the
	// forwarded method set.
	ErrUnsupportedMethod = errors.New("unsupported request method")

	// ErrClientUnavailable indicates the shared upstream client could not be
	// constructed.
	ErrClientUnavailable = errors.New("upstream client unavailable")

	// ErrStreamConsumed is yielded when a response body is iterated twice.
	ErrStreamConsumed = errors.New("response stream already consumed")
)

// URLRewriteError reports an inbound URL that cannot be pointed at the
// upstream host.
type URLRewriteError struct {
	URL    string
	Reason string
}

func (e *URLRewriteError) Error() string {
	return fmt.Sprintf("rewrite url %q: %s", e.URL, e.Reason)
}

// HeaderTranslationError names the inbound header that failed validation.
// It rejects the whole request.
type HeaderTranslationError struct {
	Name   string
	Reason string
}

func (e *HeaderTranslationError) Error() string {
	return fmt.Sprintf("translate header %q: %s", e.Name, e.Reason)
}

// BodyReadError reports a failure while materializing the inbound body.
type BodyReadError struct {
	Read  int
	Cause error
}

func (e *BodyReadError) Error() string {
	return fmt.Sprintf("read request body after %d bytes: %v", e.Read, e.Cause)
}

func (e *BodyReadError) Unwrap() error { return e.Cause }

// DispatchError reports a failed upstream exchange. It is never retried.
type DispatchError struct {
	Method string
	Host   string
	Cause  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s: %v", e.Method, e.Host, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// StreamReadError reports an upstream body read failure after the response
// has been committed downstream. Offset is the number of bytes already
// relayed.
type StreamReadError struct {
	Offset int64
	Cause  error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("read upstream body at offset %d: %v", e.Offset, e.Cause)
}

func (e *StreamReadError) Unwrap() error { return e.Cause }
