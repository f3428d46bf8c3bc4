package graph

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// BreadthFirstSearch walks a graph level by level from a start node. The visited set is
// supplied by the caller, so several walks within one lookup can share it and examine
// every node at most once overall.
type BreadthFirstSearch struct {
	// Visited marks the nodes already seen. Required.
	Visited *roaring.Bitmap
	// GoFurther is asked for every dequeued node and decides whether its edges get
	// expanded. A nil hook expands every node.
	GoFurther func(node int) bool
	// CheckAdjacent is asked for every outgoing edge of an expanded node and decides
	// whether the adjacent node gets enqueued. A nil hook enqueues every neighbor.
	CheckAdjacent func(edge EdgeIteratorState) bool
}

// Start runs the walk from the given node.
func (s *BreadthFirstSearch) Start(explorer EdgeExplorer, startNode int) {
	var fifo []int
	s.Visited.Add(uint32(startNode))
	fifo = append(fifo, startNode)

	for len(fifo) > 0 {
		current := fifo[0]
		fifo = fifo[1:]

		if s.GoFurther != nil && !s.GoFurther(current) {
			continue
		}

		iter := explorer.SetBaseNode(current)
		for iter.Next() {
			connected := iter.AdjNode()
			if s.CheckAdjacent != nil && !s.CheckAdjacent(iter) {
				continue
			}
			if !s.Visited.Contains(uint32(connected)) {
				s.Visited.Add(uint32(connected))
				fifo = append(fifo, connected)
			}
		}
	}
}
