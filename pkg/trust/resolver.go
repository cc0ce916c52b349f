package trust

import (
	"context"
	"time"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/httputil"
	"github.com/trustmesh/trustmesh/pkg/observability"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// resolver turns a raw coordinate string into a canonical coordinate and
// a starting node set for the walker.
type resolver struct {
	store graphstore.Store
	opts  Options
}

// resolve parses and canonicalizes the coordinate, then looks it up in the
// graph store. An ambiguous coordinate may match several nodes; all of them
// become independent traversal roots. A clean miss returns NODE_NOT_FOUND,
// which the engine maps to an absent report, not a failure.
func (r *resolver) resolve(ctx context.Context, raw string) (purl.Coordinate, []graphstore.Node, error) {
	observability.Engine().OnResolveStart(ctx, raw)
	start := time.Now()

	if err := errors.ValidateCoordinateString(raw); err != nil {
		return purl.Coordinate{}, nil, err
	}
	coord, err := purl.Parse(raw)
	if err != nil {
		return purl.Coordinate{}, nil, errors.Wrap(errors.ErrCodeMalformedCoordinate, err,
			"cannot parse coordinate %q", raw)
	}

	var nodes []graphstore.Node
	err = httputil.Retry(ctx, r.opts.RetryAttempts, r.opts.RetryDelay, func() error {
		var lerr error
		nodes, lerr = r.store.Lookup(ctx, coord)
		return lerr
	})
	observability.Engine().OnResolveComplete(ctx, coord.String(), len(nodes), time.Since(start), err)
	if err != nil {
		// A failed initial lookup leaves nothing to walk; unlike mid-walk
		// store failures this one is request-fatal.
		return coord, nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err,
			"graph store lookup for %s failed", coord)
	}
	if len(nodes) == 0 {
		return coord, nil, errors.New(errors.ErrCodeNodeNotFound, "no graph nodes match %s", coord)
	}

	return coord, nodes, nil
}
