package client

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/model"
)

// Factory constructs the process-wide upstream client.
type Factory func() (*http.Client, error)

// SharedClient holds the one *http.Client used for every upstream call. It
// is built on first use; concurrent first callers wait for a single
// construction and all observe the same instance.
type SharedClient struct {
	get func() (*http.Client, error)
}

// NewSharedClient wraps build in a once-only initializer. onFailure, if
// non-nil, is called exactly once when build fails; a failed client is
// never rebuilt. The metrics parameter is optional.
func NewSharedClient(build Factory, m *metrics.Metrics, onFailure func(error)) *SharedClient {
	return &SharedClient{
		get: sync.OnceValues(func() (*http.Client, error) {
			c, err := build()
			if err != nil {
				if m != nil {
					m.ClientInits.WithLabelValues("error").Inc()
				}
				if onFailure != nil {
					onFailure(err)
				}
				return nil, fmt.Errorf("%w: %w", model.ErrClientUnavailable, err)
			}
			if m != nil {
				m.ClientInits.WithLabelValues("ok").Inc()
			}
			return c, nil
		}),
	}
}

// Get returns the shared client, constructing it on the first call.
func (s *SharedClient) Get() (*http.Client, error) {
	return s.get()
}

// NewTransportFactory returns a Factory building a pooled, HTTP/2-capable
// client from the upstream settings.
//
// No overall client timeout is set because it would also bound the
// streamed body; ResponseHeaderTimeout limits the dispatch phase instead.
func NewTransportFactory(cfg *config.Config) Factory {
	return func() (*http.Client, error) {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.Upstream.IdleConnections,
			MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   time.Duration(cfg.Upstream.TLSHandshakeTimeoutSeconds) * time.Second,
			ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			// Accept-Encoding is whatever the caller sent; bodies pass through encoded.
			DisableCompression: true,
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}

		return &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}, nil
	}
}
