package graph

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

type memEdge struct {
	base int
	adj  int
	// pillar coordinates in base-to-adjacent direction
	pillarLats []float64
	pillarLons []float64
}

// MemGraph is a slice backed Graph implementation. It is populated through AddNode and
// AddEdge and read-only afterwards. Edge iteration order is the insertion order, which
// keeps index construction deterministic.
type MemGraph struct {
	nodeLats []float64
	nodeLons []float64
	edges    []memEdge
	// edge IDs connected to each node, in insertion order
	adjacency [][]int
	bounds    orb.Bound
}

func NewMemGraph() *MemGraph {
	return &MemGraph{
		bounds: orb.Bound{
			Min: orb.Point{math.Inf(1), math.Inf(1)},
			Max: orb.Point{math.Inf(-1), math.Inf(-1)},
		},
	}
}

// AddNode appends a tower node and returns its ID.
func (g *MemGraph) AddNode(lat, lon float64) int {
	g.nodeLats = append(g.nodeLats, lat)
	g.nodeLons = append(g.nodeLons, lon)
	g.adjacency = append(g.adjacency, nil)
	g.extendBounds(lat, lon)
	return len(g.nodeLats) - 1
}

// AddEdge appends an edge between two tower nodes and returns its ID. The pillar slices
// hold the interior polyline points in base-to-adjacent direction and may be nil.
func (g *MemGraph) AddEdge(base, adj int, pillarLats, pillarLons []float64) (int, error) {
	if base < 0 || base >= len(g.nodeLats) || adj < 0 || adj >= len(g.nodeLats) {
		return 0, errors.Errorf("Unable to add edge %d-%d: graph has only %d nodes", base, adj, len(g.nodeLats))
	}
	if len(pillarLats) != len(pillarLons) {
		return 0, errors.Errorf("Unable to add edge %d-%d: %d pillar latitudes but %d pillar longitudes", base, adj, len(pillarLats), len(pillarLons))
	}

	edgeId := len(g.edges)
	g.edges = append(g.edges, memEdge{
		base:       base,
		adj:        adj,
		pillarLats: pillarLats,
		pillarLons: pillarLons,
	})
	g.adjacency[base] = append(g.adjacency[base], edgeId)
	if adj != base {
		g.adjacency[adj] = append(g.adjacency[adj], edgeId)
	}

	for i := range pillarLats {
		g.extendBounds(pillarLats[i], pillarLons[i])
	}

	return edgeId, nil
}

func (g *MemGraph) extendBounds(lat, lon float64) {
	if lon < g.bounds.Min.Lon() {
		g.bounds.Min[0] = lon
	}
	if lat < g.bounds.Min.Lat() {
		g.bounds.Min[1] = lat
	}
	if lon > g.bounds.Max.Lon() {
		g.bounds.Max[0] = lon
	}
	if lat > g.bounds.Max.Lat() {
		g.bounds.Max[1] = lat
	}
}

// SetBounds replaces the derived bounding box, e.g. to widen the indexed area beyond
// the coordinates seen so far.
func (g *MemGraph) SetBounds(bounds orb.Bound) {
	g.bounds = bounds
}

func (g *MemGraph) Nodes() int {
	return len(g.nodeLats)
}

func (g *MemGraph) Edges() int {
	return len(g.edges)
}

func (g *MemGraph) Bounds() orb.Bound {
	return g.bounds
}

func (g *MemGraph) NodeLat(node int) float64 {
	return g.nodeLats[node]
}

func (g *MemGraph) NodeLon(node int) float64 {
	return g.nodeLons[node]
}

func (g *MemGraph) AllEdges() EdgeIterator {
	return &allEdgesIterator{graph: g, edgeId: -1}
}

func (g *MemGraph) EdgeIteratorStateForKey(edgeKey int) EdgeIteratorState {
	return &memEdgeState{
		graph:    g,
		edgeId:   edgeKey >> 1,
		reversed: edgeKey&1 == 1,
	}
}

func (g *MemGraph) CreateEdgeExplorer() EdgeExplorer {
	return &memEdgeExplorer{graph: g}
}

// memEdgeState is a directed view onto one edge. With reversed set, base and adjacent
// node swap and the geometry runs backwards.
type memEdgeState struct {
	graph    *MemGraph
	edgeId   int
	reversed bool
}

func (s *memEdgeState) Edge() int {
	return s.edgeId
}

func (s *memEdgeState) BaseNode() int {
	if s.reversed {
		return s.graph.edges[s.edgeId].adj
	}
	return s.graph.edges[s.edgeId].base
}

func (s *memEdgeState) AdjNode() int {
	if s.reversed {
		return s.graph.edges[s.edgeId].base
	}
	return s.graph.edges[s.edgeId].adj
}

func (s *memEdgeState) FetchWayGeometry(mode FetchMode) orb.LineString {
	edge := s.graph.edges[s.edgeId]
	numPillars := len(edge.pillarLats)

	var line orb.LineString
	if mode == All {
		base := s.BaseNode()
		line = append(line, orb.Point{s.graph.nodeLons[base], s.graph.nodeLats[base]})
	}
	for i := 0; i < numPillars; i++ {
		pillar := i
		if s.reversed {
			pillar = numPillars - 1 - i
		}
		line = append(line, orb.Point{edge.pillarLons[pillar], edge.pillarLats[pillar]})
	}
	if mode == PillarAndAdj || mode == All {
		adj := s.AdjNode()
		line = append(line, orb.Point{s.graph.nodeLons[adj], s.graph.nodeLats[adj]})
	}
	return line
}

func (s *memEdgeState) Detach() EdgeIteratorState {
	detached := *s
	return &detached
}

type allEdgesIterator struct {
	graph  *MemGraph
	edgeId int
}

func (it *allEdgesIterator) Next() bool {
	it.edgeId++
	return it.edgeId < len(it.graph.edges)
}

func (it *allEdgesIterator) Edge() int {
	return it.edgeId
}

func (it *allEdgesIterator) BaseNode() int {
	return it.graph.edges[it.edgeId].base
}

func (it *allEdgesIterator) AdjNode() int {
	return it.graph.edges[it.edgeId].adj
}

func (it *allEdgesIterator) FetchWayGeometry(mode FetchMode) orb.LineString {
	return (&memEdgeState{graph: it.graph, edgeId: it.edgeId}).FetchWayGeometry(mode)
}

func (it *allEdgesIterator) Detach() EdgeIteratorState {
	return &memEdgeState{graph: it.graph, edgeId: it.edgeId}
}

type memEdgeExplorer struct {
	graph *MemGraph
	state nodeEdgeIterator
}

func (e *memEdgeExplorer) SetBaseNode(node int) EdgeIterator {
	e.state = nodeEdgeIterator{graph: e.graph, node: node, pos: -1}
	return &e.state
}

type nodeEdgeIterator struct {
	graph *MemGraph
	node  int
	pos   int
}

func (it *nodeEdgeIterator) Next() bool {
	it.pos++
	return it.pos < len(it.graph.adjacency[it.node])
}

func (it *nodeEdgeIterator) current() *memEdgeState {
	edgeId := it.graph.adjacency[it.node][it.pos]
	return &memEdgeState{
		graph:    it.graph,
		edgeId:   edgeId,
		reversed: it.graph.edges[edgeId].base != it.node,
	}
}

func (it *nodeEdgeIterator) Edge() int {
	return it.graph.adjacency[it.node][it.pos]
}

func (it *nodeEdgeIterator) BaseNode() int {
	return it.current().BaseNode()
}

func (it *nodeEdgeIterator) AdjNode() int {
	return it.current().AdjNode()
}

func (it *nodeEdgeIterator) FetchWayGeometry(mode FetchMode) orb.LineString {
	return it.current().FetchWayGeometry(mode)
}

func (it *nodeEdgeIterator) Detach() EdgeIteratorState {
	return it.current()
}
