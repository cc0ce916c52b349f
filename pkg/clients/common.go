package clients

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/trustmesh/trustmesh/pkg/observability"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist upstream.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates an HTTP client with a standard timeout for API requests.
// Requests are reported through the registered observability HTTP hooks.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   httpTimeout,
		Transport: &hookedTransport{inner: http.DefaultTransport},
	}
}

// hookedTransport reports request lifecycle events to observability hooks.
type hookedTransport struct {
	inner http.RoundTripper
}

func (t *hookedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)

	start := time.Now()
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, err
	}
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}

// URLEncode percent-encodes a string for use in URLs.
// This is a convenience wrapper around [url.QueryEscape].
func URLEncode(s string) string { return url.QueryEscape(s) }

// reportCacheHit is a small helper so client code reads cleanly.
func reportCacheHit(ctx context.Context, keyType string, hit bool) {
	if hit {
		observability.Cache().OnCacheHit(ctx, keyType)
	} else {
		observability.Cache().OnCacheMiss(ctx, keyType)
	}
}
