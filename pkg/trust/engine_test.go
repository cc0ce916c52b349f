package trust

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/trustmesh/pkg/advisory"
	trusterrors "github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/feeds"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/purl"
)

// fakeStore serves a fixed graph from memory.
type fakeStore struct {
	mu        sync.Mutex
	nodes     map[string][]graphstore.Node // canonical purl -> matches
	neighbors map[graphstore.NodeID][]graphstore.Node
	edges     map[graphstore.NodeID][]graphstore.Edge

	lookupErr error
	expandErr map[graphstore.NodeID]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:     make(map[string][]graphstore.Node),
		neighbors: make(map[graphstore.NodeID][]graphstore.Node),
		edges:     make(map[graphstore.NodeID][]graphstore.Edge),
		expandErr: make(map[graphstore.NodeID]error),
	}
}

func (s *fakeStore) addNode(id, p string) graphstore.Node {
	n := graphstore.Node{ID: graphstore.NodeID(id), Coordinate: purl.MustParse(p)}
	s.nodes[n.Coordinate.String()] = append(s.nodes[n.Coordinate.String()], n)
	return n
}

func (s *fakeStore) addEdge(from, to graphstore.Node) {
	s.neighbors[from.ID] = append(s.neighbors[from.ID], to)
	s.edges[from.ID] = append(s.edges[from.ID], graphstore.Edge{
		From: from.ID, To: to.ID, Kind: graphstore.EdgeKindDependsOn,
	})
}

func (s *fakeStore) Lookup(ctx context.Context, coordinate purl.Coordinate) ([]graphstore.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.nodes[coordinate.String()], nil
}

func (s *fakeStore) Expand(ctx context.Context, ids []graphstore.NodeID, kinds []graphstore.EdgeKind) ([]graphstore.Node, []graphstore.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nodes []graphstore.Node
	var edges []graphstore.Edge
	for _, id := range ids {
		if err := s.expandErr[id]; err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, s.neighbors[id]...)
		edges = append(edges, s.edges[id]...)
	}
	return nodes, edges, nil
}

// fakeFeed answers from a fixed advisory table and counts its calls.
type fakeFeed struct {
	name       string
	advisories map[string][]advisory.Advisory // canonical purl -> records
	errFor     map[string]error
	block      bool // block until ctx is done, then fail

	calls atomic.Int64
}

func newFakeFeed(name string) *fakeFeed {
	return &fakeFeed{
		name:       name,
		advisories: make(map[string][]advisory.Advisory),
		errFor:     make(map[string]error),
	}
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) Fetch(ctx context.Context, coordinate purl.Coordinate) ([]advisory.Advisory, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	key := coordinate.String()
	if err := f.errFor[key]; err != nil {
		return nil, err
	}
	return f.advisories[key], nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond
	opts.Logger = log.New(io.Discard)
	return opts
}

// leftPadFixture builds the canonical three-node graph: left-pad depends
// on string-pad and pad-left, with one high-severity advisory on
// string-pad.
func leftPadFixture() (*fakeStore, *fakeFeed) {
	store := newFakeStore()
	root := store.addNode("n1", "pkg:npm/left-pad@1.3.0")
	dep1 := store.addNode("n2", "pkg:npm/string-pad@1.0.0")
	dep2 := store.addNode("n3", "pkg:npm/pad-left@0.2.0")
	store.addEdge(root, dep1)
	store.addEdge(root, dep2)

	feed := newFakeFeed("osv")
	feed.advisories["pkg:npm/string-pad@1.0.0"] = []advisory.Advisory{
		{ID: "CVE-2024-0001", Severity: advisory.SeverityHigh, Sources: []string{"osv"}},
	}
	return store, feed
}

func TestLeftPadScenario(t *testing.T) {
	store, feed := leftPadFixture()
	opts := testOptions()
	opts.MaxDepth = 1

	e, err := New(store, []feeds.Source{feed}, opts)
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err)

	assert.Equal(t, ReportComplete, report.Status)
	assert.Len(t, report.Closure.Nodes, 3)
	assert.Len(t, report.Closure.Edges, 2)
	assert.Equal(t, 1, report.TotalAdvisories)
	assert.Equal(t, advisory.SeverityHigh, report.HighestSeverity)
	assert.Zero(t, report.FailedNodes)
	assert.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Equal(t, FetchComplete, res.Status)
	}
}

func TestFeedFailureDowngradesNode(t *testing.T) {
	store, feed := leftPadFixture()
	feed.errFor["pkg:npm/pad-left@0.2.0"] = errors.New("feed timeout")
	opts := testOptions()
	opts.MaxDepth = 1

	e, err := New(store, []feeds.Source{feed}, opts)
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err)

	assert.Equal(t, ReportPartial, report.Status)
	assert.Equal(t, 1, report.FailedNodes)
	assert.NotEmpty(t, report.Reasons)

	assert.Equal(t, FetchFailed, report.Results["n3"].Status)
	assert.Equal(t, FetchComplete, report.Results["n1"].Status)
	assert.Equal(t, FetchComplete, report.Results["n2"].Status)

	// The failed node stays in the mapping but contributes nothing.
	assert.Equal(t, 1, report.TotalAdvisories)
	assert.Equal(t, advisory.SeverityHigh, report.HighestSeverity)
}

func TestZeroDepthClosureIsRootsOnly(t *testing.T) {
	store, feed := leftPadFixture()
	opts := testOptions()
	opts.MaxDepth = 0

	e, err := New(store, []feeds.Source{feed}, opts)
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err)

	require.Len(t, report.Closure.Nodes, 1)
	assert.Empty(t, report.Closure.Edges)
	assert.Equal(t, graphstore.NodeID("n1"), report.Closure.Nodes[0].ID)
	assert.Equal(t, []graphstore.NodeID{"n1"}, report.Closure.Frontier)
}

func TestCyclicGraphTerminates(t *testing.T) {
	store := newFakeStore()
	a := store.addNode("a", "pkg:npm/a@1.0.0")
	b := store.addNode("b", "pkg:npm/b@1.0.0")
	store.addEdge(a, b)
	store.addEdge(b, a)

	e, err := New(store, []feeds.Source{newFakeFeed("osv")}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/a@1.0.0")
	require.NoError(t, err)

	// Each node appears exactly once however many cycles reach it, and
	// the back-edge is still part of the closure.
	assert.Len(t, report.Closure.Nodes, 2)
	assert.Len(t, report.Closure.Edges, 2)
	assert.Len(t, report.Results, 2)
}

func TestDuplicateCoordinateFetchedOnce(t *testing.T) {
	// The same package/version reached as two distinct graph nodes.
	store := newFakeStore()
	root := store.addNode("n1", "pkg:npm/app@1.0.0")
	d1 := store.addNode("n2", "pkg:npm/shared@2.0.0")
	d2 := graphstore.Node{ID: "n3", Coordinate: purl.MustParse("pkg:npm/shared@2.0.0")}
	store.neighbors[root.ID] = []graphstore.Node{d1, d2}
	store.edges[root.ID] = []graphstore.Edge{
		{From: "n1", To: "n2", Kind: graphstore.EdgeKindDependsOn},
		{From: "n1", To: "n3", Kind: graphstore.EdgeKindDependsOn},
	}

	feed := newFakeFeed("osv")
	e, err := New(store, []feeds.Source{feed}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/app@1.0.0")
	require.NoError(t, err)

	assert.Len(t, report.Results, 3)
	assert.EqualValues(t, 2, feed.calls.Load(), "one query per distinct coordinate")
}

func TestCrossSourceAdvisoriesNotDoubleCounted(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", "pkg:npm/left-pad@1.3.0")

	osvFeed := newFakeFeed("osv")
	osvFeed.advisories["pkg:npm/left-pad@1.3.0"] = []advisory.Advisory{
		{ID: "GHSA-xxxx-yyyy-zzzz", Aliases: []string{"CVE-2024-0001"}, Severity: advisory.SeverityMedium, Sources: []string{"osv"}},
	}
	snykFeed := newFakeFeed("snyk")
	snykFeed.advisories["pkg:npm/left-pad@1.3.0"] = []advisory.Advisory{
		{ID: "SNYK-JS-1", Aliases: []string{"CVE-2024-0001"}, Severity: advisory.SeverityHigh, Sources: []string{"snyk"}},
	}

	e, err := New(store, []feeds.Source{osvFeed, snykFeed}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAdvisories, "same CVE from two feeds is one advisory")
	assert.Equal(t, advisory.SeverityHigh, report.HighestSeverity, "merge keeps the higher severity")
	res := report.Results["n1"]
	require.Len(t, res.Advisories, 1)
	assert.ElementsMatch(t, []string{"osv", "snyk"}, res.Advisories[0].Sources)
}

func TestOneSourceFailingIsPartial(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", "pkg:npm/left-pad@1.3.0")

	good := newFakeFeed("osv")
	bad := newFakeFeed("snyk")
	bad.errFor["pkg:npm/left-pad@1.3.0"] = errors.New("snyk down")

	e, err := New(store, []feeds.Source{good, bad}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err)

	res := report.Results["n1"]
	assert.Equal(t, FetchPartial, res.Status)
	assert.Equal(t, []string{"snyk"}, res.Failed)
	assert.Equal(t, []string{"osv", "snyk"}, res.Sources)
}

func TestNodeNotFoundProducesAbsentReport(t *testing.T) {
	e, err := New(newFakeStore(), []feeds.Source{newFakeFeed("osv")}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/ghost@0.0.1")
	require.NoError(t, err, "a miss is an absent report, not an error")

	assert.Equal(t, ReportAbsent, report.Status)
	assert.Empty(t, report.Closure.Nodes)
	assert.Empty(t, report.Results)
}

func TestMalformedCoordinateRejected(t *testing.T) {
	e, err := New(newFakeStore(), []feeds.Source{newFakeFeed("osv")}, testOptions())
	require.NoError(t, err)

	for _, raw := range []string{"", "left-pad", "pkg:npm/bad name@1.0"} {
		_, err := e.Run(context.Background(), raw)
		require.Error(t, err, "raw=%q", raw)
		assert.Equal(t, trusterrors.ErrCodeMalformedCoordinate, trusterrors.GetCode(err))
	}
}

func TestInitialLookupFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("store down")

	e, err := New(store, []feeds.Source{newFakeFeed("osv")}, testOptions())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.Error(t, err)
	assert.Equal(t, trusterrors.ErrCodeStoreUnavailable, trusterrors.GetCode(err))
}

func TestMidWalkStoreFailureIsAbsorbed(t *testing.T) {
	store, feed := leftPadFixture()
	deep := graphstore.Node{ID: "n4", Coordinate: purl.MustParse("pkg:npm/deep@1.0.0")}
	store.neighbors["n3"] = []graphstore.Node{deep}
	store.edges["n3"] = []graphstore.Edge{{From: "n3", To: "n4", Kind: graphstore.EdgeKindDependsOn}}
	store.expandErr["n2"] = errors.New("shard down")

	e, err := New(store, []feeds.Source{feed}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err, "a store fault on one subtree never aborts the request")

	assert.Equal(t, ReportPartial, report.Status)
	assert.True(t, report.Closure.Incomplete)
	// The sibling subtree survives the fallback to per-node expansion.
	_, ok := report.Closure.Node("n4")
	assert.True(t, ok)
}

func TestStreamOrderingAndTerminal(t *testing.T) {
	store, feed := leftPadFixture()
	opts := testOptions()
	opts.MaxDepth = 1

	e, err := New(store, []feeds.Source{feed}, opts)
	require.NoError(t, err)

	var events []Event
	for ev := range e.Stream(context.Background(), "pkg:npm/left-pad@1.3.0") {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)

	discovered := make(map[graphstore.NodeID]uint64)
	var terminals int
	var lastSeq uint64
	for _, ev := range events {
		assert.Greater(t, ev.Seq, lastSeq, "sequence numbers strictly increase")
		lastSeq = ev.Seq
		assert.NotEmpty(t, ev.RequestID)

		switch ev.Kind {
		case EventNodeDiscovered:
			discovered[ev.Node.ID] = ev.Seq
		case EventNodeResolved:
			seq, ok := discovered[ev.Result.NodeID]
			assert.True(t, ok, "resolved before discovered for %s", ev.Result.NodeID)
			assert.Less(t, seq, ev.Seq)
		case EventWalkComplete, EventFailed:
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal event")

	last := events[len(events)-1]
	require.Equal(t, EventWalkComplete, last.Kind)
	require.NotNil(t, last.Report)
	assert.Equal(t, ReportComplete, last.Report.Status)
	assert.Len(t, discovered, 3)
}

func TestStreamFailedOnMalformedInput(t *testing.T) {
	e, err := New(newFakeStore(), []feeds.Source{newFakeFeed("osv")}, testOptions())
	require.NoError(t, err)

	var events []Event
	for ev := range e.Stream(context.Background(), "not-a-purl") {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.NotEmpty(t, events[0].Error)
}

func TestCancellationClosesStreamWithoutTerminal(t *testing.T) {
	store, _ := leftPadFixture()
	feed := newFakeFeed("osv")
	feed.block = true

	e, err := New(store, []feeds.Source{feed}, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream := e.Stream(ctx, "pkg:npm/left-pad@1.3.0")

	// Wait for the pipeline to start, then pull the plug.
	ev, ok := <-stream
	require.True(t, ok)
	require.Equal(t, EventNodeDiscovered, ev.Kind)
	cancel()

	for ev := range stream {
		assert.False(t, ev.Terminal(), "no terminal event after cancellation, got %s", ev.Kind)
	}
}

func TestCancelledRunReturnsNoReport(t *testing.T) {
	store, _ := leftPadFixture()
	feed := newFakeFeed("osv")
	feed.block = true

	e, err := New(store, []feeds.Source{feed}, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := e.Run(ctx, "pkg:npm/left-pad@1.3.0")
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, trusterrors.ErrCodeCancelled, trusterrors.GetCode(err))
}

func TestDeadlineForceFinalizesPartial(t *testing.T) {
	store, _ := leftPadFixture()
	feed := newFakeFeed("osv")
	feed.block = true

	opts := testOptions()
	opts.RequestTimeout = 50 * time.Millisecond

	e, err := New(store, []feeds.Source{feed}, opts)
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/left-pad@1.3.0")
	require.NoError(t, err, "deadline expiry degrades the report, not the request")

	assert.Equal(t, ReportPartial, report.Status)
	assert.Contains(t, report.Reasons, "request deadline exceeded")
	// Every closure node still has a (failed) result entry.
	assert.Len(t, report.Results, len(report.Closure.Nodes))
	assert.Equal(t, len(report.Closure.Nodes), report.FailedNodes)
}

func TestAmbiguousCoordinateUnionsMatches(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", "pkg:npm/dual@1.0.0")
	store.addNode("n2", "pkg:npm/dual@1.0.0")

	feed := newFakeFeed("osv")
	e, err := New(store, []feeds.Source{feed}, testOptions())
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "pkg:npm/dual@1.0.0")
	require.NoError(t, err)

	assert.Len(t, report.Closure.Nodes, 2, "every match becomes a traversal root")
	assert.Len(t, report.Results, 2)
}

func TestNewRejectsInvalidSetup(t *testing.T) {
	store := newFakeStore()
	feed := newFakeFeed("osv")

	_, err := New(nil, []feeds.Source{feed}, testOptions())
	assert.Error(t, err)

	_, err = New(store, nil, testOptions())
	assert.Error(t, err)

	bad := testOptions()
	bad.MaxDepth = -1
	_, err = New(store, []feeds.Source{feed}, bad)
	assert.Error(t, err)
}
