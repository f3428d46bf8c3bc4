package index

import (
	"roadsnap/util"
	"testing"
)

func TestSnap_invalidByDefault(t *testing.T) {
	snap := newSnap(1.0, 2.0)

	util.AssertFalse(t, snap.IsValid())
	util.AssertEqual(t, 2.0, snap.QueryPoint().Lon())
	util.AssertEqual(t, 1.0, snap.QueryPoint().Lat())
}

func TestPosition_String(t *testing.T) {
	util.AssertEqual(t, "tower", Tower.String())
	util.AssertEqual(t, "pillar", Pillar.String())
	util.AssertEqual(t, "edge", Edge.String())
}

func TestSortByQueryDistance(t *testing.T) {
	near := newSnap(0, 0)
	near.queryDistance = 1.5
	far := newSnap(0, 0)
	far.queryDistance = 27.0
	middle := newSnap(0, 0)
	middle.queryDistance = 3.0

	snaps := []*Snap{far, near, middle}
	SortByQueryDistance(snaps)

	util.AssertEqual(t, []*Snap{near, middle, far}, snaps)
}
