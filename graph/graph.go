package graph

import (
	"github.com/paulmach/orb"
)

// FetchMode selects which points of an edge polyline FetchWayGeometry returns.
type FetchMode int

const (
	// PillarOnly returns only the interior polyline points.
	PillarOnly FetchMode = iota
	// PillarAndAdj returns the interior points followed by the adjacent tower node.
	PillarAndAdj
	// All returns base tower node, interior points and adjacent tower node.
	All
)

// EdgeIteratorState is a view onto one edge, directed from its base node to its adjacent
// node. Iterators reuse their state while advancing, so callers keeping an edge beyond
// the current iteration step must Detach it first.
type EdgeIteratorState interface {
	// Edge returns the edge ID.
	Edge() int
	BaseNode() int
	AdjNode() int
	// FetchWayGeometry returns the polyline of this edge in base-to-adjacent direction.
	// Points are orb.Point{lon, lat}.
	FetchWayGeometry(mode FetchMode) orb.LineString
	// Detach returns an immutable copy of this state that survives iterator advancement.
	Detach() EdgeIteratorState
}

// EdgeIterator iterates edges, exposing the state of the current edge.
type EdgeIterator interface {
	EdgeIteratorState
	// Next advances to the next edge and reports whether one exists.
	Next() bool
}

// EdgeExplorer iterates the edges connected to single nodes. One explorer can be reused
// for many nodes but must not be shared between goroutines.
type EdgeExplorer interface {
	// SetBaseNode returns an iterator over all edges connected to the given node. Each
	// returned state has the given node as its base node.
	SetBaseNode(node int) EdgeIterator
}

// EdgeFilter decides which edges participate in a lookup.
type EdgeFilter func(edge EdgeIteratorState) bool

// AllEdges accepts every edge.
var AllEdges EdgeFilter = func(EdgeIteratorState) bool { return true }

// Graph is the road network the location index is built for. Node and edge IDs are dense
// and start at 0.
type Graph interface {
	// Nodes returns the number of tower nodes.
	Nodes() int
	// Edges returns the number of edges.
	Edges() int
	// Bounds returns the bounding box enclosing all tower and pillar coordinates.
	Bounds() orb.Bound
	NodeLat(node int) float64
	NodeLon(node int) float64
	// AllEdges returns an iterator over every edge in ascending edge ID order.
	AllEdges() EdgeIterator
	// EdgeIteratorStateForKey resolves an edge key (edge ID shifted left by one bit, the
	// lowest bit selecting the direction) into an edge state.
	EdgeIteratorStateForKey(edgeKey int) EdgeIteratorState
	CreateEdgeExplorer() EdgeExplorer
}
