// Package trust implements the trust-aggregation engine: resolve a package
// coordinate against the supply-chain graph store, walk its dependency
// closure breadth-first, fan out vulnerability-feed queries for every node
// discovered, and reconcile the answers into one trust report.
//
// The pipeline streams: feed queries for a node start the moment the
// walker discovers it, not after the walk finishes. Progress is observable
// through an ordered event stream, and partial failures (a store fault on
// one subtree, a feed outage for one node) degrade the report instead of
// failing the request.
package trust

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/feeds"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/observability"
)

// Engine runs trust requests against a graph store and a set of
// vulnerability feeds. It is stateless across requests; the same Engine
// serves concurrent requests safely.
type Engine struct {
	store   graphstore.Store
	sources []feeds.Source
	opts    Options
}

// New creates an engine. Invalid options are rejected here, not
// mid-request.
func New(store graphstore.Store, sources []feeds.Source, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "graph store is required")
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "at least one vulnerability feed is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: store, sources: sources, opts: opts.withDefaults()}, nil
}

// Options returns the engine's effective configuration.
func (e *Engine) Options() Options { return e.opts }

// Run executes one request synchronously and returns the terminal report.
//
// A NODE_NOT_FOUND coordinate yields an absent report, not an error. A
// report may come back partial (truncated traversal, failed fetches,
// expired deadline); only malformed input, a dead graph store, and
// cancellation surface as errors.
func (e *Engine) Run(ctx context.Context, coordinate string) (*Report, error) {
	return e.run(ctx, coordinate, nil)
}

// Stream executes one request and returns its progress stream.
//
// The channel delivers sequence-numbered events ending in exactly one
// terminal event carrying the report or a fatal error, then closes. If
// the context is cancelled mid-request the channel closes without a
// terminal event.
func (e *Engine) Stream(ctx context.Context, coordinate string) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		_, _ = e.run(ctx, coordinate, ch)
	}()
	return ch
}

func (e *Engine) run(ctx context.Context, coordinate string, ch chan<- Event) (*Report, error) {
	requestID := uuid.NewString()
	logger := e.opts.Logger.With("request_id", requestID, "coordinate", coordinate)

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	// The emitter is gated on the caller's context, not the request
	// deadline: deadline expiry still delivers a terminal event carrying
	// the partial report, while caller cancellation abandons the stream.
	em := newEmitter(ctx, requestID, ch)

	coord, roots, err := (&resolver{store: e.store, opts: e.opts}).resolve(rctx, coordinate)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeNodeNotFound {
			logger.Info("coordinate not in graph")
			report := absentReport(coord)
			em.complete(report)
			return report, nil
		}
		if cerr := e.checkInterrupted(ctx, rctx); cerr != nil {
			if errors.GetCode(cerr) == errors.ErrCodeCancelled {
				logger.Info("request cancelled")
				return nil, cerr
			}
			err = cerr
		}
		logger.Error("request failed during resolve", "err", err)
		em.failed(err)
		return nil, err
	}
	logger.Info("resolved coordinate", "roots", len(roots))

	observability.Engine().OnWalkStart(rctx, coord.String())
	start := time.Now()

	// Fetch results flow through one channel into the reconciler, the
	// report's only writer. The semaphore bounds in-flight feed work so
	// a fast walk cannot spawn unbounded fetches.
	f := newFetcher(e.sources, e.opts)
	rec := newReconciler(coord)

	results := make(chan NodeResult)
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		for res := range results {
			rec.apply(res)
			em.resolved(res)
		}
	}()

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.opts.MaxConcurrentFetches)
	w := &walker{
		store: e.store,
		opts:  e.opts,
		onDiscover: func(n graphstore.Node) {
			em.discovered(n)
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-rctx.Done():
					return
				}
				results <- f.fetch(rctx, n.ID, n.Coordinate)
			}()
		},
	}

	closure, werr := w.walk(rctx, roots)
	wg.Wait()
	close(results)
	<-recDone

	observability.Engine().OnWalkComplete(rctx, coord.String(), len(closure.Nodes), time.Since(start), werr)

	var reasons []string
	if cerr := e.checkInterrupted(ctx, rctx); cerr != nil {
		if errors.GetCode(cerr) == errors.ErrCodeCancelled {
			// The caller is gone; drop accumulated progress and close the
			// stream without a terminal event.
			logger.Info("request cancelled")
			return nil, cerr
		}
		// Deadline expiry degrades the report rather than discarding it.
		logger.Warn("request deadline exceeded, finalizing partial report")
		reasons = append(reasons, "request deadline exceeded")
	}

	report := rec.finalize(closure, reasons)
	observability.Engine().OnFinalize(rctx, coord.String(), string(report.Status), time.Since(start))
	logger.Info("report finalized",
		"status", report.Status,
		"nodes", len(closure.Nodes),
		"edges", len(closure.Edges),
		"advisories", report.TotalAdvisories,
		"highest", report.HighestSeverity,
		"failed_nodes", report.FailedNodes)

	em.complete(report)
	return report, nil
}

// checkInterrupted distinguishes caller cancellation from the engine's own
// request deadline.
func (e *Engine) checkInterrupted(parent, rctx context.Context) error {
	if err := parent.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCancelled, err, "request cancelled")
	}
	if err := rctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeDeadlineExceeded, err, "request deadline exceeded")
	}
	return nil
}
