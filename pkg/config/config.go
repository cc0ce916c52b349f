// Package config loads and validates the trustmesh configuration file.
//
// Configuration is TOML. Every field has a working default so a missing
// file yields a runnable (if feed-less) setup; Validate catches the rest
// at startup.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/feeds"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/trust"
)

// Duration wraps time.Duration so TOML values can be written as "30s".
type Duration struct{ time.Duration }

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full configuration file.
type Config struct {
	Server     Server     `toml:"server"`
	Engine     Engine     `toml:"engine"`
	GraphStore GraphStore `toml:"graphstore"`
	Feeds      []Feed     `toml:"feeds"`
	Cache      Cache      `toml:"cache"`
	SBOM       SBOM       `toml:"sbom"`
}

// Server configures the HTTP adapter.
type Server struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Engine configures the trust engine.
type Engine struct {
	MaxDepth             int      `toml:"max_depth"`
	EdgeKinds            []string `toml:"edge_kinds"`
	FetchTimeout         Duration `toml:"fetch_timeout"`
	RetryAttempts        int      `toml:"retry_attempts"`
	RetryDelay           Duration `toml:"retry_delay"`
	MaxConcurrentFetches int      `toml:"max_concurrent_fetches"`
	RequestTimeout       Duration `toml:"request_timeout"`
}

// GraphStore configures the supply-chain graph store client.
type GraphStore struct {
	URL      string   `toml:"url"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// Feed configures one vulnerability source.
type Feed struct {
	Kind     string   `toml:"kind"`
	Endpoint string   `toml:"endpoint"`
	Token    string   `toml:"token"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// Cache selects the response cache backend.
type Cache struct {
	// Backend is "file", "redis", or "none".
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// SBOM configures the SBOM registry backend.
type SBOM struct {
	// Backend is "memory" or "mongo".
	Backend         string `toml:"backend"`
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Engine: Engine{
			MaxDepth:             trust.DefaultMaxDepth,
			FetchTimeout:         Duration{trust.DefaultFetchTimeout},
			RetryAttempts:        trust.DefaultRetryAttempts,
			RetryDelay:           Duration{trust.DefaultRetryDelay},
			MaxConcurrentFetches: trust.DefaultMaxConcurrentFetches,
			RequestTimeout:       Duration{trust.DefaultRequestTimeout},
		},
		GraphStore: GraphStore{
			URL:      "http://localhost:8085",
			CacheTTL: Duration{5 * time.Minute},
		},
		Cache: Cache{Backend: "file"},
		SBOM:  SBOM{Backend: "memory"},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "cannot read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "cannot parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that could not serve requests.
func (c *Config) Validate() error {
	if err := errors.ValidateURL(c.GraphStore.URL); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "graphstore.url")
	}
	for i, f := range c.Feeds {
		if f.Kind != feeds.KindOSV && f.Kind != feeds.KindSnyk {
			return errors.New(errors.ErrCodeInvalidConfig, "feeds[%d]: unknown kind %q", i, f.Kind)
		}
		if f.Kind == feeds.KindSnyk && f.Token == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "feeds[%d]: snyk requires a token", i)
		}
	}
	switch c.Cache.Backend {
	case "file", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	switch c.SBOM.Backend {
	case "memory":
	case "mongo":
		if c.SBOM.MongoURI == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "sbom.mongo_uri is required for the mongo backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown sbom backend %q", c.SBOM.Backend)
	}
	opts := c.EngineOptions()
	return opts.Validate()
}

// EngineOptions converts the engine section into trust.Options.
func (c *Config) EngineOptions() trust.Options {
	opts := trust.DefaultOptions()
	opts.MaxDepth = c.Engine.MaxDepth
	opts.FetchTimeout = c.Engine.FetchTimeout.Duration
	opts.RetryAttempts = c.Engine.RetryAttempts
	opts.RetryDelay = c.Engine.RetryDelay.Duration
	opts.MaxConcurrentFetches = c.Engine.MaxConcurrentFetches
	opts.RequestTimeout = c.Engine.RequestTimeout.Duration

	if len(c.Engine.EdgeKinds) > 0 {
		kinds := make([]graphstore.EdgeKind, 0, len(c.Engine.EdgeKinds))
		for _, k := range c.Engine.EdgeKinds {
			kinds = append(kinds, graphstore.EdgeKind(k))
		}
		opts.EdgeKinds = kinds
	}
	return opts
}

// FeedConfigs converts the feeds section for the feeds factory.
func (c *Config) FeedConfigs() []feeds.Config {
	out := make([]feeds.Config, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		out = append(out, feeds.Config{
			Kind:     f.Kind,
			Endpoint: f.Endpoint,
			Token:    f.Token,
			CacheTTL: f.CacheTTL.Duration,
		})
	}
	return out
}
