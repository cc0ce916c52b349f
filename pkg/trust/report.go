package trust

import (
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// FetchStatus describes how completely a node's feeds were queried.
type FetchStatus string

const (
	// FetchComplete means every configured source responded.
	FetchComplete FetchStatus = "complete"
	// FetchPartial means at least one source responded.
	FetchPartial FetchStatus = "partial"
	// FetchFailed means no source responded.
	FetchFailed FetchStatus = "failed"
)

// ReportStatus describes the terminal state of a report as a whole.
type ReportStatus string

const (
	// ReportComplete means the closure is full and every fetch succeeded.
	ReportComplete ReportStatus = "complete"
	// ReportPartial means the closure was truncated, some fetches failed,
	// or the request deadline expired. Reasons lists why.
	ReportPartial ReportStatus = "partial"
	// ReportAbsent means the coordinate resolved to no graph nodes.
	ReportAbsent ReportStatus = "absent"
)

// NodeResult is the vulnerability outcome for one closure node.
type NodeResult struct {
	NodeID     graphstore.NodeID   `json:"node_id"`
	Coordinate purl.Coordinate     `json:"coordinate"`
	Status     FetchStatus         `json:"status"`
	Advisories []advisory.Advisory `json:"advisories,omitempty"`
	// Sources names every feed queried; Failed the subset that errored.
	Sources []string `json:"sources,omitempty"`
	Failed  []string `json:"failed_sources,omitempty"`
}

// Closure is the node/edge subgraph discovered by a bounded traversal.
// Nodes are referenced by identity, never by pointer, so cyclic graphs
// serialize without special handling.
type Closure struct {
	Nodes []graphstore.Node `json:"nodes"`
	Edges []graphstore.Edge `json:"edges"`
	// Frontier lists nodes that were discovered but not expanded because
	// the depth limit cut the traversal off there.
	Frontier []graphstore.NodeID `json:"frontier,omitempty"`
	// Incomplete is set when store failures dropped part of the traversal.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Node returns the closure node with the given identity.
func (c *Closure) Node(id graphstore.NodeID) (graphstore.Node, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graphstore.Node{}, false
}

// Report is the terminal artifact of one trust request.
// Every node in the closure has exactly one entry in Results by the time
// the report is terminal, failed fetches included.
type Report struct {
	Coordinate purl.Coordinate `json:"coordinate"`
	Status     ReportStatus    `json:"status"`
	// Reasons explains a partial or absent status in human-readable terms.
	Reasons []string `json:"reasons,omitempty"`

	Closure *Closure                         `json:"closure"`
	Results map[graphstore.NodeID]NodeResult `json:"results"`

	TotalAdvisories int               `json:"total_advisories"`
	HighestSeverity advisory.Severity `json:"highest_severity"`
	FailedNodes     int               `json:"failed_nodes"`

	GeneratedAt time.Time `json:"generated_at"`
}
