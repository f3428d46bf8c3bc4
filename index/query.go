package index

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"roadsnap/graph"
)

// FindClosest returns the closest accepted edge for the query coordinate, together with
// the snapped point on it. The returned snap is invalid if no accepted edge was found
// within the configured search region.
func (idx *LocationIndex) FindClosest(queryLat, queryLon float64, edgeFilter graph.EdgeFilter) (*Snap, error) {
	if idx.IsClosed() {
		return nil, ErrIndexClosed
	}
	if !idx.initialized {
		return nil, errors.Wrap(ErrLifecycleViolation, "call PrepareIndex or LoadExisting before FindClosest")
	}

	seeds := roaring.New()
	for iteration := 0; iteration < idx.maxRegionSearch; iteration++ {
		if idx.findEdgeIdsInNeighborhood(queryLat, queryLon, seeds, iteration, edgeFilter) {
			break
		}
	}

	checkBitset := roaring.New()
	explorer := idx.graph.CreateEdgeExplorer()
	closestMatch := newSnap(queryLat, queryLon)

	seeds.Iterate(func(edgeId uint32) bool {
		check := &xFirstSearchCheck{
			index:       idx,
			queryLat:    queryLat,
			queryLon:    queryLon,
			checkBitset: checkBitset,
			edgeFilter:  edgeFilter,
			closest:     closestMatch,
		}
		check.start(explorer, idx.graph.EdgeIteratorStateForKey(int(edgeId)*2).BaseNode())
		return true
	})

	if closestMatch.IsValid() {
		closestMatch.queryDistance = idx.distCalc.DenormalizeDist(closestMatch.queryDistance)
		closestMatch.calcSnappedPoint(idx.distCalc)
	}

	return closestMatch, nil
}

// findEdgeIdsInNeighborhood collects the edges stored in the ring of tiles at the given
// offset around the query into foundIds. After odd iterations it checks whether a later
// ring could still contain a closer edge and returns true if not, so the caller can stop
// expanding.
func (idx *LocationIndex) findEdgeIdsInNeighborhood(queryLat, queryLon float64, foundIds *roaring.Bitmap, iteration int, edgeFilter graph.EdgeFilter) bool {
	// left and right column of the ring
	for yreg := -iteration; yreg <= iteration; yreg++ {
		subqueryLat := queryLat + float64(yreg)*idx.deltaLat
		subqueryLonA := queryLon - float64(iteration)*idx.deltaLon
		subqueryLonB := queryLon + float64(iteration)*idx.deltaLon
		idx.findNetworkEntriesSingleRegion(foundIds, subqueryLat, subqueryLonA, edgeFilter)

		if iteration > 0 {
			idx.findNetworkEntriesSingleRegion(foundIds, subqueryLat, subqueryLonB, edgeFilter)
		}
	}

	// top and bottom row without the corners
	for xreg := -iteration + 1; xreg <= iteration-1; xreg++ {
		subqueryLon := queryLon + float64(xreg)*idx.deltaLon
		subqueryLatA := queryLat - float64(iteration)*idx.deltaLat
		subqueryLatB := queryLat + float64(iteration)*idx.deltaLat
		idx.findNetworkEntriesSingleRegion(foundIds, subqueryLatA, subqueryLon, edgeFilter)
		idx.findNetworkEntriesSingleRegion(foundIds, subqueryLatB, subqueryLon, edgeFilter)
	}

	if iteration%2 != 0 && !foundIds.IsEmpty() {
		rMin := idx.calculateRMin(queryLat, queryLon, iteration)
		minDistance := idx.calcMinDistance(queryLat, queryLon, foundIds)

		if minDistance < rMin {
			// early finish => foundIds contains a closest edge for sure
			return true
		}
		// else: an undetected closer edge may sit in a neighboring tile, so the search
		// area widens in the next iteration
	}

	return false
}

// calcMinDistance returns the smallest distance from the query to any endpoint of the
// given edges.
func (idx *LocationIndex) calcMinDistance(queryLat, queryLon float64, edgeIds *roaring.Bitmap) float64 {
	min := math.Inf(1)
	edgeIds.Iterate(func(edgeId uint32) bool {
		edge := idx.graph.EdgeIteratorStateForKey(int(edgeId) * 2)

		nodeA := edge.BaseNode()
		distA := idx.distCalc.CalcDist(queryLat, queryLon, idx.graph.NodeLat(nodeA), idx.graph.NodeLon(nodeA))
		if distA < min {
			min = distA
		}

		nodeB := edge.AdjNode()
		distB := idx.distCalc.CalcDist(queryLat, queryLon, idx.graph.NodeLat(nodeB), idx.graph.NodeLon(nodeB))
		if distB < min {
			min = distB
		}
		return true
	})
	return min
}

func (idx *LocationIndex) findNetworkEntriesSingleRegion(foundIds *roaring.Bitmap, queryLat, queryLon float64, edgeFilter graph.EdgeFilter) {
	keyPart := idx.createReverseKey(queryLat, queryLon)
	idx.fillIDs(keyPart, startPointer, foundIds, 0, edgeFilter)
}

// fillIDs descends from the given cell along the reversed key and collects the accepted
// edge IDs of the leaf it ends in.
func (idx *LocationIndex) fillIDs(keyPart uint64, intPointer int, foundIds *roaring.Bitmap, depth int, edgeFilter graph.EdgeFilter) {
	pointer := intPointer << 2

	if depth == len(idx.entries) {
		value := idx.dataStore.GetInt(pointer)
		if value < 0 {
			// single data entry, the edge ID is encoded in the cell itself
			edgeId := -(value + 1)
			if edgeFilter(idx.graph.EdgeIteratorStateForKey(int(edgeId) * 2)) {
				foundIds.Add(uint32(edgeId))
			}
		} else {
			// leaf entry => value is the exclusive end offset
			max := int(value) << 2
			for leafPointer := pointer + 4; leafPointer < max; leafPointer += 4 {
				edgeId := idx.dataStore.GetInt(leafPointer)
				if edgeFilter(idx.graph.EdgeIteratorStateForKey(int(edgeId) * 2)) {
					foundIds.Add(uint32(edgeId))
				}
			}
		}
		return
	}

	offset := idxOfKeyPart(keyPart, idx.bitmasks[depth]) << 2
	nextIntPointer := idx.dataStore.GetInt(pointer + offset)
	if nextIntPointer > 0 {
		idx.fillIDs(keyPart>>idx.shifts[depth], int(nextIntPointer), foundIds, depth+1, edgeFilter)
	}
}

// xFirstSearchCheck refines the seed edges into the closest snap. It walks breadth first
// from each seed's base node and rates every accepted edge's polyline against the query.
// The visited set is shared across all seeds of one lookup.
type xFirstSearchCheck struct {
	index       *LocationIndex
	queryLat    float64
	queryLon    float64
	checkBitset *roaring.Bitmap
	edgeFilter  graph.EdgeFilter
	closest     *Snap

	goFurther      bool
	currNormedDist float64
	currLat        float64
	currLon        float64
	currNode       int
}

func (x *xFirstSearchCheck) start(explorer graph.EdgeExplorer, startNode int) {
	x.goFurther = true
	search := &graph.BreadthFirstSearch{
		Visited:       x.checkBitset,
		GoFurther:     x.onGoFurther,
		CheckAdjacent: x.onCheckAdjacent,
	}
	search.Start(explorer, startNode)
}

func (x *xFirstSearchCheck) onGoFurther(baseNode int) bool {
	x.currNode = baseNode
	x.currLat = x.index.graph.NodeLat(baseNode)
	x.currLon = x.index.graph.NodeLon(baseNode)
	x.currNormedDist = x.index.distCalc.CalcNormalizedDist(x.queryLat, x.queryLon, x.currLat, x.currLon)
	return x.goFurther
}

func (x *xFirstSearchCheck) onCheckAdjacent(currEdge graph.EdgeIteratorState) bool {
	x.goFurther = false
	distCalc := x.index.distCalc

	if !x.edgeFilter(currEdge) {
		return true
	}

	tmpClosestNode := x.currNode
	if x.check(tmpClosestNode, x.currNormedDist, 0, currEdge, Tower) {
		if x.currNormedDist <= x.index.equalNormedDelta {
			return false
		}
	}

	adjNode := currEdge.AdjNode()
	adjLat := x.index.graph.NodeLat(adjNode)
	adjLon := x.index.graph.NodeLon(adjNode)
	adjDist := distCalc.CalcNormalizedDist(adjLat, adjLon, x.queryLat, x.queryLon)
	// if there are way points this is only an approximation
	if adjDist < x.currNormedDist {
		tmpClosestNode = adjNode
	}

	tmpLat := x.currLat
	tmpLon := x.currLon
	pointList := currEdge.FetchWayGeometry(graph.PillarAndAdj)
	length := len(pointList)

	for pointIndex := 0; pointIndex < length; pointIndex++ {
		wayLat := pointList[pointIndex].Lat()
		wayLon := pointList[pointIndex].Lon()
		pos := Edge

		if distCalc.IsCrossBoundary(tmpLon, wayLon) {
			tmpLat = wayLat
			tmpLon = wayLon
			continue
		}

		var tmpNormedDist float64
		if distCalc.ValidEdgeDistance(x.queryLat, x.queryLon, tmpLat, tmpLon, wayLat, wayLon) {
			tmpNormedDist = distCalc.CalcNormalizedEdgeDistance(x.queryLat, x.queryLon, tmpLat, tmpLon, wayLat, wayLon)
			x.check(tmpClosestNode, tmpNormedDist, pointIndex, currEdge, pos)
		} else {
			if pointIndex+1 == length {
				tmpNormedDist = adjDist
				pos = Tower
			} else {
				tmpNormedDist = distCalc.CalcNormalizedDist(x.queryLat, x.queryLon, wayLat, wayLon)
				pos = Pillar
			}
			x.check(tmpClosestNode, tmpNormedDist, pointIndex+1, currEdge, pos)
		}

		if tmpNormedDist <= x.index.equalNormedDelta {
			return false
		}

		tmpLat = wayLat
		tmpLon = wayLon
	}

	return x.closest.queryDistance > x.index.equalNormedDelta
}

// check records the candidate if it improves the current best snap.
func (x *xFirstSearchCheck) check(node int, normedDist float64, wayIndex int, edge graph.EdgeIteratorState, pos Position) bool {
	if normedDist < x.closest.queryDistance {
		x.closest.queryDistance = normedDist
		x.closest.closestNode = node
		x.closest.closestEdge = edge.Detach()
		x.closest.wayIndex = wayIndex
		x.closest.snappedPosition = pos
		return true
	}
	return false
}
