// Package httpclient builds the shared transport handle. One client is
// constructed at startup and read-shared by every worker; it is never
// mutated after construction.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewClient returns an HTTP client tuned for sustained concurrent load.
// A zero timeout leaves deadline enforcement to the per-iteration context,
// which is how the worker loop uses it.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
