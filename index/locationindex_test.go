package index

import (
	"path"
	"roadsnap/graph"
	"roadsnap/store"
	"roadsnap/util"
	"testing"

	"github.com/pkg/errors"

	"github.com/paulmach/orb"
)

func newTestStore(t *testing.T) *store.FlatStore {
	return store.NewFlatStore(path.Join(t.TempDir(), StoreFileName))
}

// singleEdgeGraph is the graph of the basic snapping scenarios: one edge from (0,0) to
// (0.0010, 0.0010) within bounds [-0.01, 0.01] in both axes.
func singleEdgeGraph(t *testing.T) *graph.MemGraph {
	g := graph.NewMemGraph()
	g.AddNode(0.0, 0.0)
	g.AddNode(0.0010, 0.0010)
	_, err := g.AddEdge(0, 1, nil, nil)
	util.AssertNil(t, err)
	g.SetBounds(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})
	return g
}

func prepareSingleEdgeIndex(t *testing.T) *LocationIndex {
	idx := NewLocationIndex(singleEdgeGraph(t), newTestStore(t))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))
	return idx
}

func TestLocationIndex_findClosestSnapsOntoEdge(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)

	snap, err := idx.FindClosest(0.0005, 0.0005, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertTrue(t, snap.IsValid())
	util.AssertEqual(t, Edge, snap.SnappedPosition())
	util.AssertEqual(t, 0, snap.ClosestEdge().Edge())
	util.AssertTrue(t, snap.QueryDistance() < 0.1)

	util.AssertApprox(t, 0.0005, snap.SnappedPoint().Lat(), 0.000001)
	util.AssertApprox(t, 0.0005, snap.SnappedPoint().Lon(), 0.000001)
}

func TestLocationIndex_findClosestSnapsOntoTower(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)

	snap, err := idx.FindClosest(0.0000001, 0.0, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertTrue(t, snap.IsValid())
	util.AssertEqual(t, Tower, snap.SnappedPosition())
	util.AssertEqual(t, 0, snap.ClosestNode())
}

func TestLocationIndex_findClosestWithRejectingFilter(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)

	snap, err := idx.FindClosest(0.0005, 0.0005, func(graph.EdgeIteratorState) bool { return false })
	util.AssertNil(t, err)

	util.AssertFalse(t, snap.IsValid())
}

func TestLocationIndex_expandingRingFindsEdgeInNeighborTile(t *testing.T) {
	// Two parallel horizontal edges a few tiles apart. The first query lies in the tile row
	// of the lower edge, the second one in an empty tile between them.
	g := graph.NewMemGraph()
	g.AddNode(0.0, -0.001)
	g.AddNode(0.0, 0.001)
	g.AddNode(0.000625, -0.001)
	g.AddNode(0.000625, 0.001)
	_, err := g.AddEdge(0, 1, nil, nil)
	util.AssertNil(t, err)
	_, err = g.AddEdge(2, 3, nil, nil)
	util.AssertNil(t, err)
	g.SetBounds(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})

	idx := NewLocationIndex(g, newTestStore(t))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))

	// closer to the lower edge
	snap, err := idx.FindClosest(0.0001, 0.0, graph.AllEdges)
	util.AssertNil(t, err)
	util.AssertTrue(t, snap.IsValid())
	util.AssertEqual(t, 0, snap.ClosestEdge().Edge())

	// closer to the upper edge
	snap, err = idx.FindClosest(0.000525, 0.0, graph.AllEdges)
	util.AssertNil(t, err)
	util.AssertTrue(t, snap.IsValid())
	util.AssertEqual(t, 1, snap.ClosestEdge().Edge())
}

func TestLocationIndex_crossAntimeridianEdgeIsNotIndexed(t *testing.T) {
	g := graph.NewMemGraph()
	g.AddNode(0.0, 179.9)
	g.AddNode(0.0001, -179.9)
	_, err := g.AddEdge(0, 1, nil, nil)
	util.AssertNil(t, err)

	idx := NewLocationIndex(g, newTestStore(t))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))

	snap, err := idx.FindClosest(0.0, 179.9, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertFalse(t, snap.IsValid())
}

func TestLocationIndex_persistenceRoundTrip(t *testing.T) {
	storePath := path.Join(t.TempDir(), StoreFileName)

	idx := NewLocationIndex(singleEdgeGraph(t), store.NewFlatStore(storePath))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))

	before, err := idx.FindClosest(0.0005, 0.0005, graph.AllEdges)
	util.AssertNil(t, err)
	idx.Close()

	loaded := NewLocationIndex(singleEdgeGraph(t), store.NewFlatStore(storePath))
	found, err := loaded.LoadExisting()
	util.AssertNil(t, err)
	util.AssertTrue(t, found)

	after, err := loaded.FindClosest(0.0005, 0.0005, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertEqual(t, before.IsValid(), after.IsValid())
	util.AssertEqual(t, before.SnappedPosition(), after.SnappedPosition())
	util.AssertEqual(t, before.ClosestNode(), after.ClosestNode())
	util.AssertEqual(t, before.ClosestEdge().Edge(), after.ClosestEdge().Edge())
	util.AssertEqual(t, before.WayIndex(), after.WayIndex())
	util.AssertApprox(t, before.QueryDistance(), after.QueryDistance(), 0.0000001)
	util.AssertEqual(t, before.SnappedPoint(), after.SnappedPoint())
}

func TestLocationIndex_findClosestIsDeterministic(t *testing.T) {
	first := prepareSingleEdgeIndex(t)
	second := prepareSingleEdgeIndex(t)

	snapA, err := first.FindClosest(0.0007, 0.0002, graph.AllEdges)
	util.AssertNil(t, err)
	snapB, err := second.FindClosest(0.0007, 0.0002, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertEqual(t, snapA.SnappedPosition(), snapB.SnappedPosition())
	util.AssertEqual(t, snapA.ClosestNode(), snapB.ClosestNode())
	util.AssertEqual(t, snapA.WayIndex(), snapB.WayIndex())
	util.AssertEqual(t, snapA.QueryDistance(), snapB.QueryDistance())
	util.AssertEqual(t, snapA.SnappedPoint(), snapB.SnappedPoint())
}

func TestLocationIndex_snapToPillar(t *testing.T) {
	// An edge with a sharp kink at its pillar: the query sits "outside" the kink, so no
	// perpendicular foot lies on either segment and the pillar itself is closest.
	g := graph.NewMemGraph()
	g.AddNode(0.0, 0.0)
	g.AddNode(0.0, 0.002)
	_, err := g.AddEdge(0, 1, []float64{0.001}, []float64{0.001})
	util.AssertNil(t, err)
	g.SetBounds(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})

	idx := NewLocationIndex(g, newTestStore(t))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))

	snap, err := idx.FindClosest(0.0013, 0.001, graph.AllEdges)
	util.AssertNil(t, err)

	util.AssertTrue(t, snap.IsValid())
	util.AssertEqual(t, Pillar, snap.SnappedPosition())
	util.AssertApprox(t, 0.001, snap.SnappedPoint().Lat(), 0.0000001)
	util.AssertApprox(t, 0.001, snap.SnappedPoint().Lon(), 0.0000001)
}

func TestLocationIndex_setMaxRegionSearchCoercesToEven(t *testing.T) {
	idx := NewLocationIndex(singleEdgeGraph(t), newTestStore(t))

	util.AssertNil(t, idx.SetMaxRegionSearch(1))
	util.AssertEqual(t, 2, idx.maxRegionSearch)

	util.AssertNil(t, idx.SetMaxRegionSearch(3))
	util.AssertEqual(t, 4, idx.maxRegionSearch)

	util.AssertNil(t, idx.SetMaxRegionSearch(6))
	util.AssertEqual(t, 6, idx.maxRegionSearch)

	err := idx.SetMaxRegionSearch(0)
	util.AssertTrue(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestLocationIndex_setResolutionValidation(t *testing.T) {
	idx := NewLocationIndex(singleEdgeGraph(t), newTestStore(t))

	err := idx.SetResolution(-5)
	util.AssertTrue(t, errors.Is(err, ErrInvalidConfiguration))

	err = idx.SetResolution(0)
	util.AssertTrue(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestLocationIndex_prepareOnEmptyGraph(t *testing.T) {
	idx := NewLocationIndex(graph.NewMemGraph(), newTestStore(t))

	err := idx.PrepareIndex(graph.AllEdges)
	util.AssertTrue(t, errors.Is(err, ErrInvalidGraphBounds))
}

func TestLocationIndex_lifecycleViolations(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)

	err := idx.PrepareIndex(graph.AllEdges)
	util.AssertTrue(t, errors.Is(err, ErrLifecycleViolation))

	_, err = idx.LoadExisting()
	util.AssertTrue(t, errors.Is(err, ErrLifecycleViolation))

	util.AssertTrue(t, errors.Is(idx.Create(1024), ErrLifecycleViolation))
}

func TestLocationIndex_operationsAfterClose(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)
	idx.Close()

	util.AssertTrue(t, idx.IsClosed())

	_, err := idx.FindClosest(0.0005, 0.0005, graph.AllEdges)
	util.AssertTrue(t, errors.Is(err, ErrIndexClosed))

	err = idx.Query(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}, func(int) {})
	util.AssertTrue(t, errors.Is(err, ErrIndexClosed))

	// closing again stays fine
	idx.Close()
}

func TestLocationIndex_loadExistingWithoutFile(t *testing.T) {
	idx := NewLocationIndex(singleEdgeGraph(t), newTestStore(t))

	found, err := idx.LoadExisting()

	util.AssertNil(t, err)
	util.AssertFalse(t, found)
}

func TestLocationIndex_loadExistingChecksumMismatch(t *testing.T) {
	storePath := path.Join(t.TempDir(), StoreFileName)

	idx := NewLocationIndex(singleEdgeGraph(t), store.NewFlatStore(storePath))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))
	idx.Close()

	// a graph with a different node count
	otherGraph := singleEdgeGraph(t)
	otherGraph.AddNode(0.005, 0.005)

	loaded := NewLocationIndex(otherGraph, store.NewFlatStore(storePath))
	_, err := loaded.LoadExisting()

	util.AssertTrue(t, errors.Is(err, ErrChecksumMismatch))
}

func TestLocationIndex_loadExistingVersionMismatch(t *testing.T) {
	storePath := path.Join(t.TempDir(), StoreFileName)

	// a store file that is valid on the store level but has a wrong index magic
	foreign := store.NewFlatStore(storePath)
	foreign.Create(1024)
	foreign.SetHeader(headerSlotMagic, 12345)
	util.AssertNil(t, foreign.Flush())
	foreign.Close()

	idx := NewLocationIndex(singleEdgeGraph(t), store.NewFlatStore(storePath))
	_, err := idx.LoadExisting()

	util.AssertTrue(t, errors.Is(err, ErrVersionMismatch))
}

func TestLocationIndex_depthScheduleShape(t *testing.T) {
	idx := prepareSingleEdgeIndex(t)

	// mixed fan-out: non-increasing entries from {16, 4}, last one always 4
	util.AssertTrue(t, len(idx.entries) >= 1)
	util.AssertEqual(t, 4, idx.entries[len(idx.entries)-1])
	last := 16
	shiftSum := 0
	for i, entry := range idx.entries {
		util.AssertTrue(t, entry == 16 || entry == 4)
		util.AssertTrue(t, entry <= last)
		last = entry
		util.AssertEqual(t, uint64(entry-1), idx.bitmasks[i])
		shiftSum += int(idx.shifts[i])
	}
	util.AssertTrue(t, shiftSum <= 64)
	util.AssertEqual(t, shiftSum, idx.keyAlgo.Bits())
}
