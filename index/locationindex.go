package index

import (
	"math"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"roadsnap/geo"
	"roadsnap/geokey"
	"roadsnap/graph"
	"roadsnap/store"
)

// StoreFileName is the name of the flat store file inside an index folder.
const StoreFileName = "location_index"

const (
	// magicInt identifies the on-disk index format in header slot 0.
	magicInt = math.MaxInt32 / 22317

	// startPointer is the int offset of the root subtree. Offset 0 stays unused so that a
	// zero child slot always means "empty subtree".
	startPointer = 1

	headerSlotMagic      = 0
	headerSlotChecksum   = 1
	headerSlotResolution = 2

	initSizeLeafEntries = 4
)

var (
	ErrInvalidConfiguration = errors.New("invalid location index configuration")
	ErrInvalidGraphBounds   = errors.New("graph is empty or has invalid bounds")
	ErrKeySpaceOverflow     = errors.New("spatial key does not fit into 64 bits, use a coarser resolution")
	ErrVersionMismatch      = errors.New("location index has an incompatible version")
	ErrChecksumMismatch     = errors.New("location index was created for a different graph")
	ErrLifecycleViolation   = errors.New("location index lifecycle violation")
	ErrIndexClosed          = errors.New("location index is closed")
)

// LocationIndex finds the closest edge of a road graph for a coordinate. It stores the
// graph's edges in a tree of fixed-resolution tiles, persisted as a flat array of sign
// encoded int32 cells (see inMemConstructionIndex.store for the cell layout).
//
// An index is either built from its graph with PrepareIndex or read back with
// LoadExisting. Afterwards it is effectively immutable, so concurrent FindClosest and
// Query calls are safe. Close releases the underlying store and is terminal.
type LocationIndex struct {
	graph     graph.Graph
	dataStore *store.FlatStore

	distCalc        geo.DistanceCalc
	preciseDistCalc geo.DistanceCalc

	keyAlgo *geokey.SpatialKeyAlgo

	minResolutionInMeter int
	maxRegionSearch      int

	entries  []int
	shifts   []uint
	bitmasks []uint64
	deltaLat float64
	deltaLon float64

	// a normed distance below this value counts as 'identical', the search can stop
	equalNormedDelta float64

	initialized bool
}

// NewLocationIndex creates an unbuilt index for the given graph, persisting into the
// given store.
func NewLocationIndex(g graph.Graph, dataStore *store.FlatStore) *LocationIndex {
	return &LocationIndex{
		graph:                g,
		dataStore:            dataStore,
		distCalc:             geo.DistPlane,
		preciseDistCalc:      geo.DistEarth,
		minResolutionInMeter: 300,
		maxRegionSearch:      4,
	}
}

// SetResolution sets the minimum width of one tile in meter. Lower values speed up
// queries but grow the index.
func (idx *LocationIndex) SetResolution(minResolutionInMeter int) error {
	if minResolutionInMeter <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "resolution must be positive but was %d", minResolutionInMeter)
	}
	idx.minResolutionInMeter = minResolutionInMeter
	return nil
}

// SetMaxRegionSearch sets how many tile rings around the query are searched at most. Odd
// values are raised by one, since the early-exit test only runs after odd ring numbers.
func (idx *LocationIndex) SetMaxRegionSearch(numTiles int) error {
	if numTiles < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "region search must be at least 1 but was %d", numTiles)
	}
	if numTiles%2 == 1 {
		numTiles++
	}
	idx.maxRegionSearch = numTiles
	return nil
}

// SetApproximation chooses between the fast equirectangular distance calculation
// (default) and the precise spherical one for queries.
func (idx *LocationIndex) SetApproximation(approx bool) {
	if approx {
		idx.distCalc = geo.DistPlane
	} else {
		idx.distCalc = geo.DistEarth
	}
}

// SetSegmentSize forwards the growth granularity to the underlying store.
func (idx *LocationIndex) SetSegmentSize(bytes int) {
	idx.dataStore.SetSegmentSize(bytes)
}

// Create is not supported, an index is always built through PrepareIndex.
func (idx *LocationIndex) Create(size int) error {
	return errors.Wrap(ErrLifecycleViolation, "Create is not supported, use PrepareIndex")
}

// prepareAlgo derives the depth schedule, the per-level shifts and masks, the tile size
// and the spatial key encoder from the graph bounds and the configured resolution.
func (idx *LocationIndex) prepareAlgo() error {
	// 0.1 meter counts as 'equal'
	idx.equalNormedDelta = idx.distCalc.NormalizeDist(0.1)

	if idx.graph.Nodes() == 0 {
		return errors.Wrap(ErrInvalidGraphBounds, "cannot create location index of empty graph")
	}
	bounds := idx.graph.Bounds()
	if !boundsValid(bounds) {
		return errors.Wrapf(ErrInvalidGraphBounds, "cannot create location index for bounds %v", bounds)
	}

	lat := math.Min(math.Abs(bounds.Max.Lat()), math.Abs(bounds.Min.Lat()))
	maxDistInMeter := math.Max(
		(bounds.Max.Lat()-bounds.Min.Lat())/360*geo.EarthCircumference,
		(bounds.Max.Lon()-bounds.Min.Lon())/360*idx.preciseDistCalc.CalcCircumference(lat))

	tmp := maxDistInMeter / float64(idx.minResolutionInMeter)
	tmp = tmp * tmp

	// the last level always has 4 entries to keep sparse leaves cheap
	tmp /= 4
	var tmpEntries []int
	for tmp > 1 {
		var entry int
		if tmp >= 16 {
			entry = 16
		} else if tmp >= 4 {
			entry = 4
		} else {
			break
		}
		tmpEntries = append(tmpEntries, entry)
		tmp /= float64(entry)
	}
	tmpEntries = append(tmpEntries, 4)

	if err := idx.initEntries(tmpEntries); err != nil {
		return err
	}

	shiftSum := 0
	parts := 1.0
	for i := range idx.shifts {
		shiftSum += int(idx.shifts[i])
		parts *= float64(idx.entries[i])
	}
	if shiftSum > 64 {
		return errors.Wrapf(ErrKeySpaceOverflow, "sum of all shifts is %d", shiftSum)
	}

	keyAlgo, err := geokey.NewSpatialKeyAlgo(shiftSum, bounds)
	if err != nil {
		return err
	}
	idx.keyAlgo = keyAlgo

	parts = math.Round(math.Sqrt(parts))
	idx.deltaLat = (bounds.Max.Lat() - bounds.Min.Lat()) / parts
	idx.deltaLon = (bounds.Max.Lon() - bounds.Min.Lon()) / parts

	return nil
}

func (idx *LocationIndex) initEntries(entries []int) error {
	if len(entries) < 1 {
		return errors.Errorf("depth needs to be at least 1")
	}

	idx.entries = entries
	idx.shifts = make([]uint, len(entries))
	idx.bitmasks = make([]uint64, len(entries))

	lastEntry := entries[0]
	for i, entry := range entries {
		if lastEntry < entry {
			return errors.Errorf("entries should decrease or stay but were %v", entries)
		}
		lastEntry = entry

		shift := uint(math.Round(math.Log2(float64(entry))))
		if shift == 0 {
			return errors.Errorf("invalid shift %d for entry %d", shift, entry)
		}
		idx.shifts[i] = shift
		idx.bitmasks[i] = (uint64(1) << shift) - 1
	}
	return nil
}

func boundsValid(bounds orb.Bound) bool {
	for _, value := range []float64{bounds.Min.Lat(), bounds.Min.Lon(), bounds.Max.Lat(), bounds.Max.Lon()} {
		if math.IsInf(value, 0) || math.IsNaN(value) {
			return false
		}
	}
	return bounds.Min.Lat() <= bounds.Max.Lat() && bounds.Min.Lon() <= bounds.Max.Lon()
}

// PrepareIndex rasterizes every accepted edge into the in-memory construction tree and
// serializes it into the flat store. It must be called exactly once on a fresh index.
func (idx *LocationIndex) PrepareIndex(edgeFilter graph.EdgeFilter) error {
	if idx.initialized {
		return errors.Wrap(ErrLifecycleViolation, "call PrepareIndex or LoadExisting only once")
	}
	if idx.dataStore.IsClosed() {
		return ErrIndexClosed
	}

	prepareStartTime := time.Now()

	if err := idx.prepareAlgo(); err != nil {
		return err
	}

	inMem := newInMemConstructionIndex(idx)
	if err := inMem.prepare(edgeFilter); err != nil {
		return err
	}

	idx.dataStore.Create(64 * 1024)
	if _, err := inMem.store(inMem.root, startPointer); err != nil {
		return errors.Wrap(err, "Problem while storing location index")
	}
	if err := idx.Flush(); err != nil {
		return err
	}

	entriesPerLeaf := float64(0)
	if inMem.leafs > 0 {
		entriesPerLeaf = float64(inMem.size) / float64(inMem.leafs)
	}
	idx.initialized = true
	sigolo.Infof("Location index created in %s, size:%d, leafs:%d, precision:%d, depth:%d, checksum:%d, entries:%v, entriesPerLeaf:%.2f",
		time.Since(prepareStartTime), inMem.size, inMem.leafs, idx.minResolutionInMeter,
		len(idx.entries), idx.calcChecksum(), idx.entries, entriesPerLeaf)

	return nil
}

// LoadExisting reads a previously flushed index back from the store. It returns false
// without an error if no store file exists yet.
func (idx *LocationIndex) LoadExisting() (bool, error) {
	if idx.initialized {
		return false, errors.Wrap(ErrLifecycleViolation, "call PrepareIndex or LoadExisting only once")
	}
	if idx.dataStore.IsClosed() {
		return false, ErrIndexClosed
	}

	found, err := idx.dataStore.LoadExisting()
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if idx.dataStore.GetHeader(headerSlotMagic) != magicInt {
		return false, errors.Wrapf(ErrVersionMismatch, "expected %d but found %d", magicInt, idx.dataStore.GetHeader(headerSlotMagic))
	}
	if idx.dataStore.GetHeader(headerSlotChecksum) != idx.calcChecksum() {
		return false, errors.Wrapf(ErrChecksumMismatch, "stored %d vs. graph %d", idx.dataStore.GetHeader(headerSlotChecksum), idx.calcChecksum())
	}

	idx.minResolutionInMeter = int(idx.dataStore.GetHeader(headerSlotResolution))
	if err = idx.prepareAlgo(); err != nil {
		return false, err
	}

	idx.initialized = true
	return true, nil
}

// Flush writes header and payload to disk.
func (idx *LocationIndex) Flush() error {
	idx.dataStore.SetHeader(headerSlotMagic, magicInt)
	idx.dataStore.SetHeader(headerSlotChecksum, idx.calcChecksum())
	idx.dataStore.SetHeader(headerSlotResolution, int32(idx.minResolutionInMeter))
	return idx.dataStore.Flush()
}

// calcChecksum ties an index file to its graph.
func (idx *LocationIndex) calcChecksum() int32 {
	return int32(idx.graph.Nodes()) ^ int32(idx.graph.Edges())
}

// Close releases the store. All later operations fail.
func (idx *LocationIndex) Close() {
	idx.dataStore.Close()
}

func (idx *LocationIndex) IsClosed() bool {
	return idx.dataStore.IsClosed()
}

// Capacity returns the payload size of the underlying store in bytes.
func (idx *LocationIndex) Capacity() int {
	return idx.dataStore.Capacity()
}

// DeltaLat returns the height of one leaf tile in degree.
func (idx *LocationIndex) DeltaLat() float64 {
	return idx.deltaLat
}

// DeltaLon returns the width of one leaf tile in degree.
func (idx *LocationIndex) DeltaLon() float64 {
	return idx.deltaLon
}

// createReverseKey encodes the coordinate and reverses the key, so that the coarsest
// level's bits end up lowest and traversal can mask and shift per level.
func (idx *LocationIndex) createReverseKey(lat, lon float64) uint64 {
	return geokey.ReverseKey(idx.keyAlgo.Encode(lat, lon), idx.keyAlgo.Bits())
}

// calculateRMin returns the distance from the query coordinate to the closest border of
// the rectangle of (2*paddingTiles+1)^2 leaf tiles centered on the query's tile. No edge
// outside that rectangle can be closer than this.
func (idx *LocationIndex) calculateRMin(queryLat, queryLon float64, paddingTiles int) float64 {
	key := idx.keyAlgo.Encode(queryLat, queryLon)
	centerLat, centerLon := idx.keyAlgo.Decode(key)

	minLat := centerLat - (0.5+float64(paddingTiles))*idx.deltaLat
	maxLat := centerLat + (0.5+float64(paddingTiles))*idx.deltaLat
	minLon := centerLon - (0.5+float64(paddingTiles))*idx.deltaLon
	maxLon := centerLon + (0.5+float64(paddingTiles))*idx.deltaLon

	dSouthernLat := queryLat - minLat
	dNorthernLat := maxLat - queryLat
	dWesternLon := queryLon - minLon
	dEasternLon := maxLon - queryLon

	var dMinLat, dMinLon float64
	if dSouthernLat < dNorthernLat {
		dMinLat = idx.distCalc.CalcDist(queryLat, queryLon, minLat, queryLon)
	} else {
		dMinLat = idx.distCalc.CalcDist(queryLat, queryLon, maxLat, queryLon)
	}
	if dWesternLon < dEasternLon {
		dMinLon = idx.distCalc.CalcDist(queryLat, queryLon, queryLat, minLon)
	} else {
		dMinLon = idx.distCalc.CalcDist(queryLat, queryLon, queryLat, maxLon)
	}

	return math.Min(dMinLat, dMinLon)
}
