package trust

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/feeds"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/observability"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// fetcher queries every configured feed for a coordinate, concurrently,
// and folds the answers into one per-node result.
//
// Fetches are deduplicated by coordinate: when the same package/version is
// reached as several graph nodes, only one set of feed queries is issued
// and every node shares the outcome.
type fetcher struct {
	sources []feeds.Source
	opts    Options

	mu       sync.Mutex
	inflight map[string]*fetchOutcome
}

// fetchOutcome is the shared result of querying all feeds for one
// coordinate. done is closed once the fields below are final.
type fetchOutcome struct {
	done chan struct{}

	status     FetchStatus
	advisories []advisory.Advisory
	sources    []string
	failed     []string
}

func newFetcher(sources []feeds.Source, opts Options) *fetcher {
	return &fetcher{
		sources:  sources,
		opts:     opts,
		inflight: make(map[string]*fetchOutcome),
	}
}

// fetch returns the vulnerability result for one node, issuing feed
// queries only if no other node with the same coordinate got there first.
func (f *fetcher) fetch(ctx context.Context, nodeID graphstore.NodeID, coord purl.Coordinate) NodeResult {
	key := coord.String()

	f.mu.Lock()
	outcome, running := f.inflight[key]
	if !running {
		outcome = &fetchOutcome{done: make(chan struct{})}
		f.inflight[key] = outcome
	}
	f.mu.Unlock()

	if running {
		select {
		case <-outcome.done:
		case <-ctx.Done():
			return NodeResult{NodeID: nodeID, Coordinate: coord, Status: FetchFailed, Sources: f.names()}
		}
	} else {
		f.query(ctx, coord, outcome)
		close(outcome.done)
	}

	return outcome.toResult(nodeID, coord)
}

// query fans out one goroutine per source with an independent timeout.
// A slow or failing source never blocks the others; the status reflects
// how many answered.
func (f *fetcher) query(ctx context.Context, coord purl.Coordinate, out *fetchOutcome) {
	observability.Engine().OnFetchStart(ctx, coord.String())
	start := time.Now()

	type answer struct {
		source     string
		advisories []advisory.Advisory
		err        error
	}

	answers := make(chan answer, len(f.sources))
	for _, src := range f.sources {
		go func(src feeds.Source) {
			fctx, cancel := context.WithTimeout(ctx, f.opts.FetchTimeout)
			defer cancel()
			advisories, err := src.Fetch(fctx, coord)
			answers <- answer{source: src.Name(), advisories: advisories, err: err}
		}(src)
	}

	set := advisory.NewSet()
	var succeeded int
	var lastErr error
	for range f.sources {
		a := <-answers
		out.sources = append(out.sources, a.source)
		if a.err != nil {
			lastErr = a.err
			out.failed = append(out.failed, a.source)
			f.opts.Logger.Warn("feed query failed", "source", a.source, "coordinate", coord, "err", a.err)
			continue
		}
		succeeded++
		set.AddAll(advisory.Applicable(a.advisories, coord.Version))
	}
	sort.Strings(out.sources)
	sort.Strings(out.failed)

	out.advisories = set.All()
	switch {
	case succeeded == len(f.sources):
		out.status = FetchComplete
	case succeeded > 0:
		out.status = FetchPartial
	default:
		out.status = FetchFailed
	}

	observability.Engine().OnFetchComplete(ctx, coord.String(), len(out.advisories), time.Since(start), lastErr)
}

func (f *fetcher) names() []string {
	names := make([]string, 0, len(f.sources))
	for _, s := range f.sources {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

func (o *fetchOutcome) toResult(nodeID graphstore.NodeID, coord purl.Coordinate) NodeResult {
	return NodeResult{
		NodeID:     nodeID,
		Coordinate: coord,
		Status:     o.status,
		Advisories: o.advisories,
		Sources:    o.sources,
		Failed:     o.failed,
	}
}
