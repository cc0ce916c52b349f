package trust

import "github.com/trustmesh/trustmesh/pkg/graphstore"

// EventKind tags a progress event variant.
type EventKind string

const (
	// EventNodeDiscovered fires the first time the walker adds a node.
	EventNodeDiscovered EventKind = "node_discovered"
	// EventNodeResolved fires when a node's vulnerability result lands.
	EventNodeResolved EventKind = "node_resolved"
	// EventWalkComplete is terminal and carries the final report.
	EventWalkComplete EventKind = "walk_complete"
	// EventFailed is terminal and carries a fatal error.
	EventFailed EventKind = "failed"
)

// Event is one entry in a request's progress stream.
//
// Seq numbers are strictly increasing within a request. Events for the
// same node arrive in causal order (discovered before resolved); across
// nodes no order is promised, so consumers must treat the stream as a
// partially ordered log keyed by node identity. A stream ends with exactly
// one terminal event, except on cancellation, where it just closes.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id"`

	Node   *graphstore.Node `json:"node,omitempty"`
	Result *NodeResult      `json:"result,omitempty"`
	Report *Report          `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Kind == EventWalkComplete || e.Kind == EventFailed
}
