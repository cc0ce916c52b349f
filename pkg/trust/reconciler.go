package trust

import (
	"fmt"
	"time"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// reconciler accumulates per-node results into the report. It is the
// single writer of the report for a request; everything else contributes
// only by sending completed results. Its merge operations (set union,
// running max) are commutative, so arbitrary arrival order is safe.
type reconciler struct {
	report *Report
	all    *advisory.Set
}

func newReconciler(coord purl.Coordinate) *reconciler {
	return &reconciler{
		report: &Report{
			Coordinate: coord,
			Results:    make(map[graphstore.NodeID]NodeResult),
		},
		all: advisory.NewSet(),
	}
}

// apply records one node's result and folds its advisories into the
// aggregate set. Failed nodes stay in the mapping with zero contribution.
func (r *reconciler) apply(res NodeResult) {
	r.report.Results[res.NodeID] = res
	r.all.AddAll(res.Advisories)
}

// finalize seals the report. Closure nodes with no result by now (the
// request was cut short before their fetch settled) get a synthesized
// failed entry so the node mapping is always total.
func (r *reconciler) finalize(closure *Closure, reasons []string) *Report {
	rep := r.report
	rep.Closure = closure
	rep.GeneratedAt = time.Now().UTC()

	for _, n := range closure.Nodes {
		if _, ok := rep.Results[n.ID]; ok {
			continue
		}
		rep.Results[n.ID] = NodeResult{
			NodeID:     n.ID,
			Coordinate: n.Coordinate,
			Status:     FetchFailed,
		}
	}

	for _, res := range rep.Results {
		if res.Status == FetchFailed {
			rep.FailedNodes++
		}
	}

	rep.TotalAdvisories = r.all.Len()
	rep.HighestSeverity = r.all.Highest()

	rep.Reasons = append(rep.Reasons, reasons...)
	if closure.Incomplete {
		rep.Reasons = append(rep.Reasons, "traversal truncated by graph store failures")
	}
	if rep.FailedNodes > 0 {
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("%d node fetches failed", rep.FailedNodes))
	}

	if len(rep.Reasons) > 0 {
		rep.Status = ReportPartial
	} else {
		rep.Status = ReportComplete
	}
	return rep
}

// absentReport is the well-defined answer for a coordinate that resolved
// to no graph nodes: empty closure, absent status, never an error.
func absentReport(coord purl.Coordinate) *Report {
	return &Report{
		Coordinate:  coord,
		Status:      ReportAbsent,
		Reasons:     []string{"coordinate matches no graph nodes"},
		Closure:     &Closure{},
		Results:     make(map[graphstore.NodeID]NodeResult),
		GeneratedAt: time.Now().UTC(),
	}
}
