package trust

import (
	"context"
	"fmt"

	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/httputil"
)

// walker performs the bounded breadth-first traversal. Visited state is
// scoped to one request; walkers are never shared.
type walker struct {
	store graphstore.Store
	opts  Options

	// onDiscover fires the first time each node joins the closure,
	// before the walker moves on. The engine uses it to start fetches
	// while the walk is still running.
	onDiscover func(graphstore.Node)
}

// walk traverses up to opts.MaxDepth levels from the roots, one batched
// store query per level. Cycles are suppressed by node identity: a node
// already in the closure is not re-expanded or re-emitted, though edges
// into it are still recorded. Store failures at one level are retried,
// then absorbed as an incomplete closure; only cancellation stops the
// walk early.
func (w *walker) walk(ctx context.Context, roots []graphstore.Node) (*Closure, error) {
	c := &Closure{}
	visited := make(map[graphstore.NodeID]bool)
	seenEdges := make(map[string]bool)

	var frontier []graphstore.NodeID
	for _, n := range roots {
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true
		c.Nodes = append(c.Nodes, n)
		frontier = append(frontier, n.ID)
		w.onDiscover(n)
	}

	for depth := 0; depth < w.opts.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			c.Frontier = frontier
			c.Incomplete = true
			return c, err
		}

		nodes, edges, complete := w.expandLevel(ctx, frontier)
		if !complete {
			c.Incomplete = true
		}

		for _, e := range edges {
			key := fmt.Sprintf("%s|%s|%s", e.From, e.To, e.Kind)
			if seenEdges[key] {
				continue
			}
			seenEdges[key] = true
			c.Edges = append(c.Edges, e)
		}

		frontier = frontier[:0]
		for _, n := range nodes {
			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			c.Nodes = append(c.Nodes, n)
			frontier = append(frontier, n.ID)
			w.onDiscover(n)
		}
	}

	// Whatever is left was discovered but never expanded; mark it so the
	// consumer can tell the closure was truncated by the depth limit.
	if len(frontier) > 0 {
		c.Frontier = frontier
	}
	return c, nil
}

// expandLevel queries the neighbors of one frontier in a single batched
// call. If the batch fails after retries it falls back to per-node
// expansion so a store fault on one subtree only loses that subtree.
// Returns complete=false when any part of the level was lost.
func (w *walker) expandLevel(ctx context.Context, ids []graphstore.NodeID) (nodes []graphstore.Node, edges []graphstore.Edge, complete bool) {
	nodes, edges, err := w.expand(ctx, ids)
	if err == nil {
		return nodes, edges, true
	}
	if len(ids) == 1 || ctx.Err() != nil {
		w.opts.Logger.Warn("dropping unexpandable frontier", "nodes", len(ids), "err", err)
		return nil, nil, false
	}

	w.opts.Logger.Warn("batched expansion failed, retrying per node", "nodes", len(ids), "err", err)
	complete = true
	for _, id := range ids {
		n, e, err := w.expand(ctx, []graphstore.NodeID{id})
		if err != nil {
			w.opts.Logger.Warn("dropping unexpandable subtree", "node", id, "err", err)
			complete = false
			continue
		}
		nodes = append(nodes, n...)
		edges = append(edges, e...)
	}
	return nodes, edges, complete
}

func (w *walker) expand(ctx context.Context, ids []graphstore.NodeID) (nodes []graphstore.Node, edges []graphstore.Edge, err error) {
	err = httputil.Retry(ctx, w.opts.RetryAttempts, w.opts.RetryDelay, func() error {
		var eerr error
		nodes, edges, eerr = w.store.Expand(ctx, ids, w.opts.EdgeKinds)
		return eerr
	})
	return nodes, edges, err
}
