package index

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Query calls the visitor for every edge stored in a leaf tile that overlaps the given
// bounding box. Every edge ID is reported exactly once, in no particular order. Note
// that tiles overlapping the box may contain edges whose geometry lies outside of it.
func (idx *LocationIndex) Query(queryBBox orb.Bound, visitor func(edgeId int)) error {
	if idx.IsClosed() {
		return ErrIndexClosed
	}
	if !idx.initialized {
		return errors.Wrap(ErrLifecycleViolation, "call PrepareIndex or LoadExisting before Query")
	}

	bounds := idx.graph.Bounds()
	seen := roaring.New()
	idx.queryRec(startPointer, &queryBBox,
		bounds.Min.Lat(), bounds.Min.Lon(),
		bounds.Max.Lat()-bounds.Min.Lat(), bounds.Max.Lon()-bounds.Min.Lon(),
		0, func(edgeId int32) {
			if seen.CheckedAdd(uint32(edgeId)) {
				visitor(int(edgeId))
			}
		})
	return nil
}

// queryRec recursively descends the packed tree. A nil queryBBox means the subtree is
// fully contained and everything below gets emitted without further geometry checks.
func (idx *LocationIndex) queryRec(intPointer int, queryBBox *orb.Bound,
	minLat, minLon, deltaLatPerDepth, deltaLonPerDepth float64,
	depth int, onEdge func(edgeId int32)) {
	pointer := intPointer << 2

	if depth == len(idx.entries) {
		value := idx.dataStore.GetInt(pointer)
		if value < 0 {
			// single data entry
			onEdge(-(value + 1))
		} else {
			maxPointer := int(value) << 2
			for leafPointer := pointer + 4; leafPointer < maxPointer; leafPointer += 4 {
				onEdge(idx.dataStore.GetInt(leafPointer))
			}
		}
		return
	}

	max := 1 << idx.shifts[depth]
	factor := 4.0
	if max == 4 {
		factor = 2.0
	}
	deltaLatPerDepth /= factor
	deltaLonPerDepth /= factor

	for cellIndex := 0; cellIndex < max; cellIndex++ {
		nextIntPointer := idx.dataStore.GetInt(pointer + (cellIndex << 2))
		if nextIntPointer <= 0 {
			continue
		}

		// The cell index is a piece of the reversed spatial key: its even bits (counted
		// from bit 0) carry the latitude, its odd bits the longitude, most significant
		// bisection first.
		var latCount, lonCount int
		if max == 4 {
			latCount = cellIndex & 1
			lonCount = cellIndex >> 1
		} else {
			latCount = (cellIndex&1)*2 + boolToInt(cellIndex&4 != 0)
			lonCount = (cellIndex & 2) + boolToInt(cellIndex&8 != 0)
		}

		tmpMinLat := minLat + deltaLatPerDepth*float64(latCount)
		tmpMinLon := minLon + deltaLonPerDepth*float64(lonCount)

		if queryBBox == nil {
			// fill without a restriction
			idx.queryRec(int(nextIntPointer), nil, tmpMinLat, tmpMinLon, deltaLatPerDepth, deltaLonPerDepth, depth+1, onEdge)
			continue
		}

		tileBBox := orb.Bound{
			Min: orb.Point{tmpMinLon, tmpMinLat},
			Max: orb.Point{tmpMinLon + deltaLonPerDepth, tmpMinLat + deltaLatPerDepth},
		}
		if boundContainsBound(*queryBBox, tileBBox) {
			idx.queryRec(int(nextIntPointer), nil, tmpMinLat, tmpMinLon, deltaLatPerDepth, deltaLonPerDepth, depth+1, onEdge)
		} else if queryBBox.Intersects(tileBBox) {
			idx.queryRec(int(nextIntPointer), queryBBox, tmpMinLat, tmpMinLon, deltaLatPerDepth, deltaLonPerDepth, depth+1, onEdge)
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boundContainsBound(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}
