package trust

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
)

// Defaults for engine options.
const (
	DefaultMaxDepth             = 5
	DefaultFetchTimeout         = 10 * time.Second
	DefaultRetryAttempts        = 3
	DefaultRetryDelay           = 500 * time.Millisecond
	DefaultMaxConcurrentFetches = 8
	DefaultRequestTimeout       = 2 * time.Minute
)

// Options configures the trust engine. The zero value is not usable;
// start from DefaultOptions and override.
type Options struct {
	// MaxDepth bounds the breadth-first traversal. Zero means report on
	// the root nodes only; negative is rejected.
	MaxDepth int

	// EdgeKinds selects which relations the walker follows.
	// Empty uses graphstore.DefaultEdgeKinds.
	EdgeKinds []graphstore.EdgeKind

	// FetchTimeout bounds each individual feed query.
	FetchTimeout time.Duration

	// RetryAttempts and RetryDelay control retries of graph-store queries.
	RetryAttempts int
	RetryDelay    time.Duration

	// MaxConcurrentFetches bounds in-flight feed queries across the whole
	// request. This is the back-pressure between walker and fetcher.
	MaxConcurrentFetches int

	// RequestTimeout is the request-wide deadline. When it expires the
	// engine force-finalizes with whatever has been reconciled so far.
	RequestTimeout time.Duration

	// Logger receives per-request progress logs. Defaults to log.Default.
	Logger *log.Logger
}

// DefaultOptions returns the documented default configuration.
func DefaultOptions() Options {
	return Options{
		MaxDepth:             DefaultMaxDepth,
		EdgeKinds:            graphstore.DefaultEdgeKinds,
		FetchTimeout:         DefaultFetchTimeout,
		RetryAttempts:        DefaultRetryAttempts,
		RetryDelay:           DefaultRetryDelay,
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
		RequestTimeout:       DefaultRequestTimeout,
	}
}

// Validate rejects obviously invalid configuration at construction time
// rather than mid-request.
func (o *Options) Validate() error {
	if o.MaxDepth < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "max depth must not be negative, got %d", o.MaxDepth)
	}
	if o.MaxConcurrentFetches < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrent fetch limit must be at least 1, got %d", o.MaxConcurrentFetches)
	}
	if o.RetryAttempts < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "retry attempts must be at least 1, got %d", o.RetryAttempts)
	}
	if o.FetchTimeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "fetch timeout must be positive, got %s", o.FetchTimeout)
	}
	if o.RequestTimeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "request timeout must be positive, got %s", o.RequestTimeout)
	}
	return nil
}

// withDefaults fills unset optional fields.
func (o Options) withDefaults() Options {
	if len(o.EdgeKinds) == 0 {
		o.EdgeKinds = graphstore.DefaultEdgeKinds
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}
