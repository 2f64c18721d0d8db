package metrics

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// InnerCells returns the indexes of the cell centers that lie inside the
// perimeter and at least buffer away from it, which is the same set an
// inward buffer of the perimeter polygon would clip to.
func InnerCells(centers []orb.Point, perimeter orb.Ring, buffer float64) []int {
	ring := closeRing(perimeter)
	if len(ring) < 4 {
		return nil
	}

	polygon := orb.Polygon{ring}
	boundary := orb.LineString(ring)

	inner := make([]int, 0, len(centers))

	for i, p := range centers {
		if !planar.PolygonContains(polygon, p) {
			continue
		}

		if planar.DistanceFrom(boundary, p) < buffer {
			continue
		}

		inner = append(inner, i)
	}

	return inner
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}

	closed := make(orb.Ring, 0, len(r)+1)
	closed = append(closed, r...)

	return append(closed, r[0])
}
