// Package cache provides response caching for the graph store and
// vulnerability feed clients.
//
// The trust engine itself is request-scoped and holds no cross-request
// state; caching lives entirely at the client boundary, where repeated
// lookups for popular packages would otherwise hammer the upstream APIs.
//
// Backends:
//   - file: directory-based cache for CLI usage
//   - redis: shared cache for multi-instance server deployments
//   - null: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by all cache backends.
// Values are opaque byte slices; callers handle serialization.
type Cache interface {
	// Get retrieves a value. Returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A TTL of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ResponseKey builds a cache key for an upstream API response.
// Keys are namespaced by client so different sources never collide:
//
//	ResponseKey("osv", "pkg:npm/left-pad@1.3.0")
func ResponseKey(client, key string) string {
	return hashKey("resp:"+client, key)
}

// ReportKeyOpts captures the request options that change a trust report.
type ReportKeyOpts struct {
	MaxDepth int      `json:"max_depth"`
	Sources  []string `json:"sources"`
}

// ReportKey builds a cache key for a finished trust report.
// Reports for the same coordinate but different depth or source sets
// must not share an entry.
func ReportKey(coordinate string, opts ReportKeyOpts) string {
	return hashKey("report", coordinate, opts)
}
