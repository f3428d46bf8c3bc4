package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadius is the mean earth radius in meter.
	EarthRadius = 6371000.0
	// EarthCircumference is the circumference of the earth at the equator in meter.
	EarthCircumference = 40075016.686
)

// DistanceCalc computes distances between WGS84 coordinates. All distances used during a
// search are kept in the normalized representation of the calculator, which preserves
// ordering and equality but avoids expensive square roots. Only the final result gets
// denormalized into meter.
type DistanceCalc interface {
	CalcDist(fromLat, fromLon, toLat, toLon float64) float64
	CalcNormalizedDist(fromLat, fromLon, toLat, toLon float64) float64
	// NormalizeDist turns a distance in meter into the normalized representation.
	NormalizeDist(dist float64) float64
	// DenormalizeDist is the inverse of NormalizeDist.
	DenormalizeDist(normedDist float64) float64
	// CalcNormalizedEdgeDistance returns the normalized distance from the point r to the
	// projection of r onto the segment a-b.
	CalcNormalizedEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) float64
	// ValidEdgeDistance reports whether the foot of the perpendicular from r lies within
	// the segment a-b.
	ValidEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) bool
	// CalcCrossingPointToEdge returns the projection of r onto the segment a-b.
	CalcCrossingPointToEdge(rLat, rLon, aLat, aLon, bLat, bLon float64) orb.Point
	// IsCrossBoundary reports whether the segment between the two longitudes crosses the
	// antimeridian.
	IsCrossBoundary(lon1, lon2 float64) bool
	CalcCircumference(lat float64) float64
}

// DistanceEarth calculates distances on a spherical earth model using the haversine
// formula. The normalized representation is the squared sine of half the central angle.
type DistanceEarth struct{}

// DistancePlane approximates distances with an equirectangular projection. Inaccurate for
// long distances, but much faster than DistanceEarth and precise enough to compare snap
// candidates within a few tiles. The normalized representation is the squared projected
// distance in radians.
type DistancePlane struct{}

var (
	DistEarth = DistanceEarth{}
	DistPlane = DistancePlane{}
)

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func (e DistanceEarth) CalcDist(fromLat, fromLon, toLat, toLon float64) float64 {
	return e.DenormalizeDist(e.CalcNormalizedDist(fromLat, fromLon, toLat, toLon))
}

func (DistanceEarth) CalcNormalizedDist(fromLat, fromLon, toLat, toLon float64) float64 {
	sinDeltaLat := math.Sin(toRadians(toLat-fromLat) / 2)
	sinDeltaLon := math.Sin(toRadians(toLon-fromLon) / 2)
	return sinDeltaLat*sinDeltaLat +
		sinDeltaLon*sinDeltaLon*math.Cos(toRadians(fromLat))*math.Cos(toRadians(toLat))
}

func (DistanceEarth) NormalizeDist(dist float64) float64 {
	sin := math.Sin(dist / 2 / EarthRadius)
	return sin * sin
}

func (DistanceEarth) DenormalizeDist(normedDist float64) float64 {
	return EarthRadius * 2 * math.Asin(math.Sqrt(normedDist))
}

func (e DistanceEarth) CalcNormalizedEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) float64 {
	return calcNormalizedEdgeDistance(e, rLat, rLon, aLat, aLon, bLat, bLon)
}

func (e DistanceEarth) ValidEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) bool {
	return validEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon)
}

func (e DistanceEarth) CalcCrossingPointToEdge(rLat, rLon, aLat, aLon, bLat, bLon float64) orb.Point {
	return calcCrossingPointToEdge(rLat, rLon, aLat, aLon, bLat, bLon)
}

func (DistanceEarth) IsCrossBoundary(lon1, lon2 float64) bool {
	return math.Abs(lon1-lon2) > 300
}

func (DistanceEarth) CalcCircumference(lat float64) float64 {
	return 2 * math.Pi * EarthRadius * math.Cos(toRadians(lat))
}

func (p DistancePlane) CalcDist(fromLat, fromLon, toLat, toLon float64) float64 {
	return EarthRadius * math.Sqrt(p.CalcNormalizedDist(fromLat, fromLon, toLat, toLon))
}

func (DistancePlane) CalcNormalizedDist(fromLat, fromLon, toLat, toLon float64) float64 {
	dLat := toRadians(toLat - fromLat)
	dLon := toRadians(toLon - fromLon)
	left := math.Cos(toRadians((fromLat+toLat)/2)) * dLon
	return dLat*dLat + left*left
}

func (DistancePlane) NormalizeDist(dist float64) float64 {
	tmp := dist / EarthRadius
	return tmp * tmp
}

func (DistancePlane) DenormalizeDist(normedDist float64) float64 {
	return EarthRadius * math.Sqrt(normedDist)
}

func (p DistancePlane) CalcNormalizedEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) float64 {
	return calcNormalizedEdgeDistance(p, rLat, rLon, aLat, aLon, bLat, bLon)
}

func (p DistancePlane) ValidEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon float64) bool {
	return validEdgeDistance(rLat, rLon, aLat, aLon, bLat, bLon)
}

func (p DistancePlane) CalcCrossingPointToEdge(rLat, rLon, aLat, aLon, bLat, bLon float64) orb.Point {
	return calcCrossingPointToEdge(rLat, rLon, aLat, aLon, bLat, bLon)
}

func (DistancePlane) IsCrossBoundary(lon1, lon2 float64) bool {
	return math.Abs(lon1-lon2) > 300
}

func (DistancePlane) CalcCircumference(lat float64) float64 {
	return 2 * math.Pi * EarthRadius * math.Cos(toRadians(lat))
}

// The longitude axis shrinks towards the poles, so before projecting a point onto a
// segment all longitudes are scaled by the cosine of the mean segment latitude.
func calcShrinkFactor(aLat, bLat float64) float64 {
	return math.Cos(toRadians((aLat + bLat) / 2))
}

func calcNormalizedEdgeDistance(calc DistanceCalc, rLatDeg, rLonDeg, aLatDeg, aLonDeg, bLatDeg, bLonDeg float64) float64 {
	shrinkFactor := calcShrinkFactor(aLatDeg, bLatDeg)
	aLat := aLatDeg
	aLon := aLonDeg * shrinkFactor
	bLat := bLatDeg
	bLon := bLonDeg * shrinkFactor
	rLat := rLatDeg
	rLon := rLonDeg * shrinkFactor

	deltaLon := bLon - aLon
	deltaLat := bLat - aLat

	if deltaLat == 0 {
		// horizontal edge
		return calc.CalcNormalizedDist(aLatDeg, rLonDeg, rLatDeg, rLonDeg)
	}
	if deltaLon == 0 {
		// vertical edge
		return calc.CalcNormalizedDist(rLatDeg, aLonDeg, rLatDeg, rLonDeg)
	}

	norm := deltaLon*deltaLon + deltaLat*deltaLat
	factor := ((rLon-aLon)*deltaLon + (rLat-aLat)*deltaLat) / norm

	cLon := aLon + factor*deltaLon
	cLat := aLat + factor*deltaLat

	return calc.CalcNormalizedDist(cLat, cLon/shrinkFactor, rLatDeg, rLonDeg)
}

func validEdgeDistance(rLatDeg, rLonDeg, aLatDeg, aLonDeg, bLatDeg, bLonDeg float64) bool {
	shrinkFactor := calcShrinkFactor(aLatDeg, bLatDeg)
	aLat := aLatDeg
	aLon := aLonDeg * shrinkFactor
	bLat := bLatDeg
	bLon := bLonDeg * shrinkFactor
	rLat := rLatDeg
	rLon := rLonDeg * shrinkFactor

	arX := rLon - aLon
	arY := rLat - aLat
	abX := bLon - aLon
	abY := bLat - aLat
	abAr := arX*abX + arY*abY

	rbX := bLon - rLon
	rbY := bLat - rLat
	abRb := rbX*abX + rbY*abY

	// both dot products positive => r lies between the perpendiculars through a and b
	return abAr > 0 && abRb > 0
}

func calcCrossingPointToEdge(rLatDeg, rLonDeg, aLatDeg, aLonDeg, bLatDeg, bLonDeg float64) orb.Point {
	shrinkFactor := calcShrinkFactor(aLatDeg, bLatDeg)
	aLat := aLatDeg
	aLon := aLonDeg * shrinkFactor
	bLat := bLatDeg
	bLon := bLonDeg * shrinkFactor
	rLat := rLatDeg
	rLon := rLonDeg * shrinkFactor

	deltaLon := bLon - aLon
	deltaLat := bLat - aLat

	if deltaLat == 0 {
		return orb.Point{rLonDeg, aLatDeg}
	}
	if deltaLon == 0 {
		return orb.Point{aLonDeg, rLatDeg}
	}

	norm := deltaLon*deltaLon + deltaLat*deltaLat
	factor := ((rLon-aLon)*deltaLon + (rLat-aLat)*deltaLat) / norm

	cLon := aLon + factor*deltaLon
	cLat := aLat + factor*deltaLat

	return orb.Point{cLon / shrinkFactor, cLat}
}
