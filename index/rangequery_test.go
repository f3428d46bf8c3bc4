package index

import (
	"sort"
	"testing"

	"github.com/paulmach/orb"

	"roadsnap/graph"
	"roadsnap/util"
)

// spreadGraph places three separate short edges into different corners of the bounds.
func spreadGraph(t *testing.T) *graph.MemGraph {
	g := graph.NewMemGraph()
	g.AddNode(-0.008, -0.008)
	g.AddNode(-0.007, -0.007)
	g.AddNode(0.008, 0.008)
	g.AddNode(0.007, 0.007)
	g.AddNode(-0.008, 0.008)
	g.AddNode(-0.007, 0.007)

	_, err := g.AddEdge(0, 1, nil, nil)
	util.AssertNil(t, err)
	_, err = g.AddEdge(2, 3, nil, nil)
	util.AssertNil(t, err)
	_, err = g.AddEdge(4, 5, nil, nil)
	util.AssertNil(t, err)

	g.SetBounds(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})
	return g
}

func prepareSpreadIndex(t *testing.T) *LocationIndex {
	idx := NewLocationIndex(spreadGraph(t), newTestStore(t))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))
	return idx
}

func queryEdges(t *testing.T, idx *LocationIndex, bbox orb.Bound) []int {
	var found []int
	err := idx.Query(bbox, func(edgeId int) {
		found = append(found, edgeId)
	})
	util.AssertNil(t, err)
	sort.Ints(found)
	return found
}

func TestLocationIndex_queryWholeBoundsFindsEverything(t *testing.T) {
	idx := prepareSpreadIndex(t)

	found := queryEdges(t, idx, orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})

	util.AssertEqual(t, []int{0, 1, 2}, found)
}

func TestLocationIndex_queryCornerFindsOnlyLocalEdge(t *testing.T) {
	idx := prepareSpreadIndex(t)

	found := queryEdges(t, idx, orb.Bound{Min: orb.Point{-0.009, -0.009}, Max: orb.Point{-0.006, -0.006}})
	util.AssertEqual(t, []int{0}, found)

	found = queryEdges(t, idx, orb.Bound{Min: orb.Point{0.006, 0.006}, Max: orb.Point{0.009, 0.009}})
	util.AssertEqual(t, []int{1}, found)

	found = queryEdges(t, idx, orb.Bound{Min: orb.Point{0.006, -0.009}, Max: orb.Point{0.009, -0.006}})
	util.AssertEqual(t, []int{2}, found)
}

func TestLocationIndex_queryEmptyRegion(t *testing.T) {
	idx := prepareSpreadIndex(t)

	found := queryEdges(t, idx, orb.Bound{Min: orb.Point{-0.001, -0.001}, Max: orb.Point{0.001, 0.001}})

	util.AssertEqual(t, 0, len(found))
}

func TestLocationIndex_queryReportsEveryEdgeOnce(t *testing.T) {
	// A long diagonal edge covers many tiles, but the visitor must see it exactly once.
	g := graph.NewMemGraph()
	g.AddNode(-0.008, -0.008)
	g.AddNode(0.008, 0.008)
	_, err := g.AddEdge(0, 1, nil, nil)
	util.AssertNil(t, err)
	g.SetBounds(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}})

	idx := NewLocationIndex(g, newTestStore(t))
	util.AssertNil(t, idx.SetResolution(10))
	util.AssertNil(t, idx.PrepareIndex(graph.AllEdges))

	visits := 0
	err = idx.Query(orb.Bound{Min: orb.Point{-0.01, -0.01}, Max: orb.Point{0.01, 0.01}}, func(edgeId int) {
		util.AssertEqual(t, 0, edgeId)
		visits++
	})
	util.AssertNil(t, err)

	util.AssertEqual(t, 1, visits)
}
