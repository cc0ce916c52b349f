package cli

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/trustmesh/trustmesh/pkg/cache"
	"github.com/trustmesh/trustmesh/pkg/config"
	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/feeds"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/graphstore/guac"
	"github.com/trustmesh/trustmesh/pkg/sbom"
	"github.com/trustmesh/trustmesh/pkg/trust"
)

// collaborators holds everything a command needs to serve trust requests,
// built once from configuration.
type collaborators struct {
	cfg     config.Config
	cache   cache.Cache
	store   graphstore.Store
	sources []feeds.Source
	sboms   sbom.Registry
}

// buildCollaborators wires cache, graph store, feeds, and SBOM registry
// from the configuration.
func buildCollaborators(ctx context.Context, cfg config.Config, logger *log.Logger) (*collaborators, error) {
	c, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	store, err := guac.NewClient(cfg.GraphStore.URL, c, cfg.GraphStore.CacheTTL.Duration)
	if err != nil {
		return nil, err
	}

	sources, err := feeds.NewAll(cfg.FeedConfigs(), c)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		// A feed-less setup can still walk the graph but answers nothing
		// about vulnerabilities; default to the anonymous OSV API.
		logger.Warn("no feeds configured, defaulting to osv")
		src, err := feeds.New(feeds.Config{Kind: feeds.KindOSV}, c)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	sboms, err := buildSBOMRegistry(ctx, cfg.SBOM)
	if err != nil {
		return nil, err
	}

	return &collaborators{
		cfg:     cfg,
		cache:   c,
		store:   store,
		sources: sources,
		sboms:   sboms,
	}, nil
}

// engine builds a trust engine over the collaborators with the given
// options.
func (c *collaborators) engine(opts trust.Options) (*trust.Engine, error) {
	return trust.New(c.store, c.sources, opts)
}

// close releases backend connections.
func (c *collaborators) close(ctx context.Context) {
	if c.cache != nil {
		_ = c.cache.Close()
	}
	if c.sboms != nil {
		_ = c.sboms.Close(ctx)
	}
}

func buildCache(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	switch cfg.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "file", "":
		return cache.NewFileCache(cfg.Dir)
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
	}
}

func buildSBOMRegistry(ctx context.Context, cfg config.SBOM) (sbom.Registry, error) {
	switch cfg.Backend {
	case "memory", "":
		return sbom.NewMemoryRegistry(), nil
	case "mongo":
		return sbom.NewMongoRegistry(ctx, sbom.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown sbom backend %q", cfg.Backend)
	}
}
