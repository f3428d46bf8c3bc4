package geokey

import (
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// SpatialKeyAlgo turns a coordinate into a z-order key ("Morton code") relative to a fixed
// bounding box. The key interleaves one latitude bit and one longitude bit per bisection
// round, latitude first, so the most significant bit splits the box into a southern and a
// northern half. Two coordinates close to each other usually share a long key prefix.
type SpatialKeyAlgo struct {
	bounds  orb.Bound
	allBits int
}

// NewSpatialKeyAlgo creates an encoder producing keys of the given even bit width within
// the given bounds.
func NewSpatialKeyAlgo(allBits int, bounds orb.Bound) (*SpatialKeyAlgo, error) {
	if allBits <= 0 || allBits > 64 {
		return nil, errors.Errorf("Bit width of spatial keys must be in (0, 64] but was %d", allBits)
	}
	if allBits%2 != 0 {
		return nil, errors.Errorf("Bit width of spatial keys must be even but was %d", allBits)
	}

	return &SpatialKeyAlgo{
		bounds:  bounds,
		allBits: allBits,
	}, nil
}

// Bits returns the key width in bits.
func (a *SpatialKeyAlgo) Bits() int {
	return a.allBits
}

// Bounds returns the bounding box the keys are relative to.
func (a *SpatialKeyAlgo) Bounds() orb.Bound {
	return a.bounds
}

// Encode bisects the bounding box once per bit, alternating between the latitude and the
// longitude axis, and records which half contains the coordinate.
func (a *SpatialKeyAlgo) Encode(lat, lon float64) uint64 {
	var hash uint64

	minLat := a.bounds.Min.Lat()
	maxLat := a.bounds.Max.Lat()
	minLon := a.bounds.Min.Lon()
	maxLon := a.bounds.Max.Lon()

	i := 0
	for {
		if minLat < maxLat {
			midLat := (minLat + maxLat) / 2
			if lat < midLat {
				maxLat = midLat
			} else {
				hash |= 1
				minLat = midLat
			}
		}
		i++
		if i >= a.allBits {
			break
		}
		hash <<= 1

		if minLon < maxLon {
			midLon := (minLon + maxLon) / 2
			if lon < midLon {
				maxLon = midLon
			} else {
				hash |= 1
				minLon = midLon
			}
		}
		i++
		if i >= a.allBits {
			break
		}
		hash <<= 1
	}

	return hash
}

// Decode returns the center of the cell the key describes.
func (a *SpatialKeyAlgo) Decode(key uint64) (lat, lon float64) {
	deltaLat := (a.bounds.Max.Lat() - a.bounds.Min.Lat()) / 2
	deltaLon := (a.bounds.Max.Lon() - a.bounds.Min.Lon()) / 2
	lat = a.bounds.Min.Lat()
	lon = a.bounds.Min.Lon()

	bit := uint64(1) << (a.allBits - 1)
	for {
		if key&bit != 0 {
			lat += deltaLat
		}
		deltaLat /= 2
		bit >>= 1

		if key&bit != 0 {
			lon += deltaLon
		}
		deltaLon /= 2

		if bit > 1 {
			bit >>= 1
		} else {
			break
		}
	}

	// middle of the smallest cell
	lat += deltaLat
	lon += deltaLon
	return lat, lon
}

// ReverseKey reverses the lowest bits of the key, so that the bit pair of the coarsest
// bisection ends up in the lowest two bits. Tree traversal then becomes a plain
// mask-and-shift per level.
func ReverseKey(key uint64, bits int) uint64 {
	var res uint64
	for ; bits > 0; bits-- {
		res <<= 1
		res |= key & 1
		key >>= 1
	}
	return res
}
