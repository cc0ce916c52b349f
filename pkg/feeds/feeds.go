// Package feeds defines the contract with vulnerability-intelligence feeds
// and the factory that builds configured sources.
//
// Each feed speaks its own advisory vocabulary; the per-source clients
// (osv, snyk) normalize their payloads into the common advisory shape.
// Unknown source kinds fail loudly at configuration time rather than
// silently passing through unmapped records.
package feeds

import (
	"context"
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/feeds/osv"
	"github.com/trustmesh/trustmesh/pkg/feeds/snyk"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// Source is one configured vulnerability feed.
type Source interface {
	// Name returns the source's identifier (e.g. "osv", "snyk").
	Name() string

	// Fetch returns the known advisories for a coordinate, normalized to
	// the common advisory shape. A coordinate with no advisories returns
	// an empty slice, not an error.
	Fetch(ctx context.Context, coordinate purl.Coordinate) ([]advisory.Advisory, error)
}

// Known source kinds.
const (
	KindOSV  = "osv"
	KindSnyk = "snyk"
)

// Config describes one feed in configuration.
type Config struct {
	Kind     string        // "osv" or "snyk"
	Endpoint string        // base URL; empty uses the source's default
	Token    string        // API token, for sources that require one
	CacheTTL time.Duration // response cache TTL
}

// New builds a Source from its configuration.
// Returns an UNSUPPORTED error for unknown kinds so that a typo in
// configuration is caught at startup, not mid-request.
func New(cfg Config, c cache.Cache) (Source, error) {
	switch cfg.Kind {
	case KindOSV:
		return osv.NewClient(cfg.Endpoint, c, cfg.CacheTTL)
	case KindSnyk:
		return snyk.NewClient(cfg.Endpoint, cfg.Token, c, cfg.CacheTTL)
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unknown feed kind %q", cfg.Kind)
	}
}

// NewAll builds every configured source, failing on the first invalid one.
func NewAll(cfgs []Config, c cache.Cache) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		s, err := New(cfg, c)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}
