package geo

import (
	"roadsnap/util"
	"testing"
)

func TestDistanceEarth_calcDist(t *testing.T) {
	// Hamburg city hall to Hamburg Dammtor station, roughly 1.18km.
	dist := DistEarth.CalcDist(53.5502, 9.9920, 53.5607, 9.9898)
	util.AssertApprox(t, 1176.0, dist, 5.0)

	util.AssertApprox(t, 0.0, DistEarth.CalcDist(12.34, 56.78, 12.34, 56.78), 0.0001)
}

func TestDistanceEarth_normalizationRoundTrip(t *testing.T) {
	for _, dist := range []float64{0.1, 1, 250, 10000, 250000} {
		normed := DistEarth.NormalizeDist(dist)
		util.AssertApprox(t, dist, DistEarth.DenormalizeDist(normed), 0.0001)
	}
}

func TestDistancePlane_normalizationRoundTrip(t *testing.T) {
	for _, dist := range []float64{0.1, 1, 250, 10000, 250000} {
		normed := DistPlane.NormalizeDist(dist)
		util.AssertApprox(t, dist, DistPlane.DenormalizeDist(normed), 0.0001)
	}
}

func TestDistancePlane_matchesEarthForShortDistances(t *testing.T) {
	earth := DistEarth.CalcDist(53.55, 9.99, 53.56, 10.01)
	plane := DistPlane.CalcDist(53.55, 9.99, 53.56, 10.01)

	// Less than 0.1% deviation over ~1.7km.
	util.AssertApprox(t, earth, plane, earth*0.001)
}

func TestDistanceCalc_normalizedPreservesOrdering(t *testing.T) {
	near := DistPlane.CalcNormalizedDist(53.55, 9.99, 53.551, 9.991)
	far := DistPlane.CalcNormalizedDist(53.55, 9.99, 53.56, 10.01)

	util.AssertTrue(t, near < far)
}

func TestDistanceCalc_validEdgeDistance(t *testing.T) {
	// Horizontal segment from (53.55, 9.99) to (53.55, 10.01).
	util.AssertTrue(t, DistPlane.ValidEdgeDistance(53.56, 10.00, 53.55, 9.99, 53.55, 10.01))
	util.AssertFalse(t, DistPlane.ValidEdgeDistance(53.56, 9.97, 53.55, 9.99, 53.55, 10.01))
	util.AssertFalse(t, DistPlane.ValidEdgeDistance(53.56, 10.03, 53.55, 9.99, 53.55, 10.01))
}

func TestDistanceCalc_calcNormalizedEdgeDistance(t *testing.T) {
	// Query 0.01 degree north of a horizontal segment.
	normed := DistPlane.CalcNormalizedEdgeDistance(53.56, 10.00, 53.55, 9.99, 53.55, 10.01)
	expected := DistPlane.CalcNormalizedDist(53.56, 10.00, 53.55, 10.00)

	util.AssertApprox(t, expected, normed, expected*0.0001)
}

func TestDistanceCalc_calcCrossingPointToEdge(t *testing.T) {
	point := DistPlane.CalcCrossingPointToEdge(53.56, 10.00, 53.55, 9.99, 53.55, 10.01)

	util.AssertApprox(t, 10.00, point.Lon(), 0.0000001)
	util.AssertApprox(t, 53.55, point.Lat(), 0.0000001)

	// Diagonal segment, query exactly on the segment center.
	point = DistPlane.CalcCrossingPointToEdge(0.0005, 0.0005, 0.0, 0.0, 0.001, 0.001)
	util.AssertApprox(t, 0.0005, point.Lon(), 0.0000001)
	util.AssertApprox(t, 0.0005, point.Lat(), 0.0000001)
}

func TestDistanceCalc_isCrossBoundary(t *testing.T) {
	util.AssertTrue(t, DistEarth.IsCrossBoundary(179.9, -179.9))
	util.AssertFalse(t, DistEarth.IsCrossBoundary(9.99, 10.01))
}

func TestDistanceCalc_calcCircumference(t *testing.T) {
	util.AssertApprox(t, 2*3.14159265*EarthRadius, DistEarth.CalcCircumference(0), 1000)
	util.AssertTrue(t, DistEarth.CalcCircumference(60) < DistEarth.CalcCircumference(10))
}
