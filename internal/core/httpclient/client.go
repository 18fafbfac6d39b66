// Package httpclient configures the HTTP client used to call provider and
// geocoder APIs.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout backs up the per-call context deadline set by adapters.
	DefaultTimeout = 10 * time.Second
	// the registry lists about a dozen provider hosts; each sees at most one
	// call per query cell at a time
	maxIdlePerHost = 16
	maxIdle        = 256
)

type Option func(*http.Client, *http.Transport)

// WithTimeout sets the whole-request timeout; non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client, _ *http.Transport) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithResponseHeaderTimeout bounds the wait for upstream headers.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(_ *http.Client, t *http.Transport) {
		if d > 0 {
			t.ResponseHeaderTimeout = d
		}
	}
}

func NewOutbound(opts ...Option) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   2 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	c := &http.Client{Transport: transport, Timeout: DefaultTimeout}
	for _, o := range opts {
		o(c, transport)
	}
	return c
}
