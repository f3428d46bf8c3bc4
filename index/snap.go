package index

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"roadsnap/geo"
	"roadsnap/graph"
)

// Position describes what kind of point a query got snapped to.
type Position int

const (
	// Tower means the snap hit an endpoint of an edge.
	Tower Position = iota
	// Pillar means the snap hit an interior polyline point.
	Pillar
	// Edge means the snap hit the perpendicular projection onto a segment.
	Edge
)

func (p Position) String() string {
	switch p {
	case Tower:
		return "tower"
	case Pillar:
		return "pillar"
	case Edge:
		return "edge"
	}
	return "unknown"
}

// Snap is the result of projecting a query coordinate onto the road network. During the
// search the query distance is kept normalized, FindClosest denormalizes it into meter
// before returning.
type Snap struct {
	queryLat        float64
	queryLon        float64
	closestEdge     graph.EdgeIteratorState
	closestNode     int
	wayIndex        int
	snappedPosition Position
	queryDistance   float64
	snappedPoint    orb.Point
}

func newSnap(queryLat, queryLon float64) *Snap {
	return &Snap{
		queryLat:      queryLat,
		queryLon:      queryLon,
		closestNode:   -1,
		wayIndex:      -1,
		queryDistance: math.Inf(1),
	}
}

// IsValid reports whether any candidate was recorded for the query.
func (s *Snap) IsValid() bool {
	return s.closestNode >= 0
}

// QueryPoint returns the original query coordinate.
func (s *Snap) QueryPoint() orb.Point {
	return orb.Point{s.queryLon, s.queryLat}
}

// ClosestEdge returns the closest accepted edge. The state is detached and stays usable
// after the lookup.
func (s *Snap) ClosestEdge() graph.EdgeIteratorState {
	return s.closestEdge
}

// ClosestNode returns the tower node of the closest edge that lies nearer to the query:
// the node the edge was reached from, or its adjacent node if that one is closer.
func (s *Snap) ClosestNode() int {
	return s.closestNode
}

// WayIndex returns the index into the full edge geometry the snap position refers to.
func (s *Snap) WayIndex() int {
	return s.wayIndex
}

func (s *Snap) SnappedPosition() Position {
	return s.snappedPosition
}

// QueryDistance returns the distance from the query point to the snapped point in meter.
func (s *Snap) QueryDistance() float64 {
	return s.queryDistance
}

// SnappedPoint returns the coordinate on the closest edge the query got snapped to. Only
// valid after calcSnappedPoint ran, which FindClosest does for every valid snap.
func (s *Snap) SnappedPoint() orb.Point {
	return s.snappedPoint
}

// calcSnappedPoint computes the snapped coordinate from the closest edge's geometry. For
// tower and pillar snaps this is the polyline point at the way index, for edge snaps the
// perpendicular projection onto the segment starting there.
func (s *Snap) calcSnappedPoint(distCalc geo.DistanceCalc) {
	fullLine := s.closestEdge.FetchWayGeometry(graph.All)
	point := fullLine[s.wayIndex]

	if s.snappedPosition != Edge {
		s.snappedPoint = point
		return
	}

	adjPoint := fullLine[s.wayIndex+1]
	if distCalc.ValidEdgeDistance(s.queryLat, s.queryLon, point.Lat(), point.Lon(), adjPoint.Lat(), adjPoint.Lon()) {
		s.snappedPoint = distCalc.CalcCrossingPointToEdge(s.queryLat, s.queryLon, point.Lat(), point.Lon(), adjPoint.Lat(), adjPoint.Lon())
	} else {
		s.snappedPoint = point
	}
}

// SortByQueryDistance sorts snaps ascending by their query distance.
func SortByQueryDistance(snaps []*Snap) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].queryDistance < snaps[j].queryDistance
	})
}
