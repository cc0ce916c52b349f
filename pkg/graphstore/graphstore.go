// Package graphstore defines the contract with the software-supply-chain
// graph store.
//
// The store records packages, versions, build provenance, and dependency
// edges. The trust engine consumes it through the two-method Store
// interface; the store's own query language and transport are not modeled
// here. A GUAC-style HTTP client ships in the guac subpackage.
package graphstore

import (
	"context"

	"github.com/trustmesh/trustmesh/pkg/purl"
)

// NodeID is the opaque graph-store identity of a node.
// Downstream stages reference nodes by ID, never by pointer, which keeps
// cyclic graphs safe to traverse and serialize.
type NodeID string

// EdgeKind tags the relation an edge represents.
type EdgeKind string

// Edge kinds recorded by supply-chain graph stores.
const (
	EdgeKindDependsOn EdgeKind = "depends_on"
	EdgeKindBuiltFrom EdgeKind = "built_from"
	EdgeKindContains  EdgeKind = "contains"

	// EdgeKindDependencyOf is the reverse of depends_on: expanding along it
	// yields the packages that depend on the given nodes.
	EdgeKindDependencyOf EdgeKind = "dependency_of"
)

// DefaultEdgeKinds is the edge set traversed when a request doesn't
// specify one.
var DefaultEdgeKinds = []EdgeKind{EdgeKindDependsOn}

// Node is one artifact instance in the dependency graph.
type Node struct {
	ID         NodeID            `json:"id"`
	Coordinate purl.Coordinate   `json:"coordinate"`
	Provenance map[string]string `json:"provenance,omitempty"` // build metadata, attestations
}

// Edge is a directed relation between two node identities.
type Edge struct {
	From NodeID   `json:"from"`
	To   NodeID   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Store is the graph-store client contract.
// Both calls are fallible and potentially slow; the engine treats every
// call as retryable but not guaranteed.
type Store interface {
	// Lookup resolves a coordinate to matching graph nodes.
	// Ambiguous coordinates (e.g. unpinned qualifiers) may match several
	// nodes; a miss returns an empty slice, not an error.
	Lookup(ctx context.Context, coordinate purl.Coordinate) ([]Node, error)

	// Expand returns the direct neighbors of the given nodes along the
	// given edge kinds, batched in one round trip per traversal level.
	Expand(ctx context.Context, ids []NodeID, kinds []EdgeKind) ([]Node, []Edge, error)
}
