package index

import (
	"sort"

	"github.com/pkg/errors"

	"roadsnap/geo"
	"roadsnap/geokey"
	"roadsnap/graph"
)

type inMemEntry interface {
	isLeaf() bool
}

// inMemLeafEntry holds the edge IDs of one leaf tile, sorted and duplicate free.
type inMemLeafEntry struct {
	ids []int32
}

func newInMemLeafEntry() *inMemLeafEntry {
	return &inMemLeafEntry{ids: make([]int32, 0, initSizeLeafEntries)}
}

func (l *inMemLeafEntry) isLeaf() bool {
	return true
}

// addOnce inserts the edge ID at its sorted position. Inserting an existing ID is a
// no-op, so one edge is stored at most once per tile.
func (l *inMemLeafEntry) addOnce(edgeId int32) bool {
	pos := sort.Search(len(l.ids), func(i int) bool { return l.ids[i] >= edgeId })
	if pos < len(l.ids) && l.ids[pos] == edgeId {
		return false
	}

	l.ids = append(l.ids, 0)
	copy(l.ids[pos+1:], l.ids[pos:])
	l.ids[pos] = edgeId
	return true
}

// inMemTreeEntry is an internal node with one child slot per entry of its depth.
type inMemTreeEntry struct {
	subEntries []inMemEntry
}

func newInMemTreeEntry(subEntryCount int) *inMemTreeEntry {
	return &inMemTreeEntry{subEntries: make([]inMemEntry, subEntryCount)}
}

func (e *inMemTreeEntry) isLeaf() bool {
	return false
}

// inMemConstructionIndex is the mutable tree the index is built in before it gets packed
// into the flat store.
type inMemConstructionIndex struct {
	index *LocationIndex
	root  *inMemTreeEntry

	// counters for logging
	size  int
	leafs int
}

func newInMemConstructionIndex(idx *LocationIndex) *inMemConstructionIndex {
	return &inMemConstructionIndex{
		index: idx,
		root:  newInMemTreeEntry(idx.entries[0]),
	}
}

// prepare rasterizes every accepted edge of the graph into the tree.
func (m *inMemConstructionIndex) prepare(edgeFilter graph.EdgeFilter) error {
	allIter := m.index.graph.AllEdges()
	for allIter.Next() {
		if !edgeFilter(allIter) {
			continue
		}

		edge := allIter.Edge()
		nodeA := allIter.BaseNode()
		nodeB := allIter.AdjNode()
		lat1 := m.index.graph.NodeLat(nodeA)
		lon1 := m.index.graph.NodeLon(nodeA)

		var lat2, lon2 float64
		points := allIter.FetchWayGeometry(graph.PillarOnly)
		for _, point := range points {
			lat2 = point.Lat()
			lon2 = point.Lon()
			if err := m.addEdgeToAllTilesOnLine(edge, lat1, lon1, lat2, lon2); err != nil {
				return errors.Wrapf(err, "Unable to rasterize edge %d (base:%d, adj:%d)", edge, nodeA, nodeB)
			}
			lat1 = lat2
			lon1 = lon2
		}

		lat2 = m.index.graph.NodeLat(nodeB)
		lon2 = m.index.graph.NodeLon(nodeB)
		if err := m.addEdgeToAllTilesOnLine(edge, lat1, lon1, lat2, lon2); err != nil {
			return errors.Wrapf(err, "Unable to rasterize edge %d (base:%d, adj:%d)", edge, nodeA, nodeB)
		}
	}
	return nil
}

// addEdgeToAllTilesOnLine registers the edge in every tile the segment passes through.
// Segments crossing the antimeridian are not indexed.
func (m *inMemConstructionIndex) addEdgeToAllTilesOnLine(edgeId int, lat1, lon1, lat2, lon2 float64) error {
	if m.index.distCalc.IsCrossBoundary(lon1, lon2) {
		return nil
	}

	bounds := m.index.graph.Bounds()
	y1 := int((lat1 - bounds.Min.Lat()) / m.index.deltaLat)
	x1 := int((lon1 - bounds.Min.Lon()) / m.index.deltaLon)
	y2 := int((lat2 - bounds.Min.Lat()) / m.index.deltaLat)
	x2 := int((lon2 - bounds.Min.Lon()) / m.index.deltaLon)

	geo.Bresenham(y1, x1, y2, x2, func(y, x int) {
		// A representative coordinate slightly inside the tile. Re-encoding it is simpler
		// than stepping through key space directly and still O(1) per tile.
		rLat := (float64(y)+0.1)*m.index.deltaLat + bounds.Min.Lat()
		rLon := (float64(x)+0.1)*m.index.deltaLon + bounds.Min.Lon()

		key := m.index.keyAlgo.Encode(rLat, rLon)
		keyPart := geokey.ReverseKey(key, m.index.keyAlgo.Bits())
		m.addEdgeToOneTile(m.root, int32(edgeId), 0, keyPart)
	})

	return nil
}

// addEdgeToOneTile descends along the reversed key, materializing missing children, and
// adds the edge ID to the leaf.
func (m *inMemConstructionIndex) addEdgeToOneTile(entry inMemEntry, edgeId int32, depth int, keyPart uint64) {
	if entry.isLeaf() {
		entry.(*inMemLeafEntry).addOnce(edgeId)
		return
	}

	treeEntry := entry.(*inMemTreeEntry)
	childIndex := idxOfKeyPart(keyPart, m.index.bitmasks[depth])
	keyPart >>= m.index.shifts[depth]
	depth++

	subEntry := treeEntry.subEntries[childIndex]
	if subEntry == nil {
		if depth == len(m.index.entries) {
			subEntry = newInMemLeafEntry()
		} else {
			subEntry = newInMemTreeEntry(m.index.entries[depth])
		}
		treeEntry.subEntries[childIndex] = subEntry
	}

	m.addEdgeToOneTile(subEntry, edgeId, depth, keyPart)
}

func idxOfKeyPart(keyPart uint64, bitmask uint64) int {
	return int(keyPart & bitmask)
}

// store packs the tree depth first into the flat store, starting at the given int
// offset, and returns the next free int offset.
//
// An internal node occupies one cell per child slot, each holding the start offset of
// the child's subtree or 0 for an empty child. A leaf with one edge ID x occupies one
// cell holding -(x+1). A leaf with n >= 2 IDs occupies n+1 cells: the IDs at offsets
// p+1..p+n and the exclusive end offset p+n+1 in the header cell at p.
func (m *inMemConstructionIndex) store(entry inMemEntry, intPointer int) (int, error) {
	pointer := intPointer << 2

	if entry.isLeaf() {
		leaf := entry.(*inMemLeafEntry)
		length := len(leaf.ids)
		if length == 0 {
			return intPointer, nil
		}

		m.size += length
		m.leafs++
		intPointer++
		m.index.dataStore.EnsureCapacity((intPointer + length + 1) << 2)

		if length == 1 {
			// single entries fit into the header cell itself
			m.index.dataStore.SetInt(pointer, -leaf.ids[0]-1)
		} else {
			for _, id := range leaf.ids {
				m.index.dataStore.SetInt(intPointer<<2, id)
				intPointer++
			}
			m.index.dataStore.SetInt(pointer, int32(intPointer))
		}
		return intPointer, nil
	}

	treeEntry := entry.(*inMemTreeEntry)
	length := len(treeEntry.subEntries)
	intPointer += length

	for subCounter := 0; subCounter < length; subCounter++ {
		subEntry := treeEntry.subEntries[subCounter]
		if subEntry == nil {
			continue
		}

		m.index.dataStore.EnsureCapacity((intPointer + 1) << 2)
		prevIntPointer := intPointer
		var err error
		intPointer, err = m.store(subEntry, prevIntPointer)
		if err != nil {
			return 0, err
		}

		if intPointer == prevIntPointer {
			m.index.dataStore.SetInt(pointer+(subCounter<<2), 0)
		} else {
			m.index.dataStore.SetInt(pointer+(subCounter<<2), int32(prevIntPointer))
		}
	}

	return intPointer, nil
}
