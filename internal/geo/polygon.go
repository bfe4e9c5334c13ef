package geo

import "math"

// edge tolerance for the on-boundary test; coordinates are degrees, so
// 1e-12 is far below any meaningful zone resolution.
const eps = 1e-12

// Polygon is a single polygon in GeoJSON ring convention: the first ring
// is the outer boundary, any further rings are holes. Each ring is a
// closed or open loop of vertices (a trailing vertex equal to the first
// is tolerated).
type Polygon struct {
	Rings [][]Point
	BBox  BBox
}

// Boundary is the geometry of one tax zone: one or more polygons.
type Boundary struct {
	Polygons []Polygon
	BBox     BBox
}

// NewBoundary builds a boundary from polygon rings, computing bounding
// boxes and dropping degenerate rings (fewer than 3 distinct vertices).
// Returns nil when nothing usable remains.
func NewBoundary(polygons [][][]Point) *Boundary {
	b := &Boundary{BBox: emptyBBox()}
	for _, rings := range polygons {
		poly := Polygon{BBox: emptyBBox()}
		for _, ring := range rings {
			ring = dropClosingVertex(ring)
			if len(ring) < 3 {
				continue
			}
			poly.Rings = append(poly.Rings, ring)
		}
		if len(poly.Rings) == 0 {
			continue
		}
		// bbox over the outer ring only; holes never extend it
		for _, v := range poly.Rings[0] {
			poly.BBox = poly.BBox.Extend(BBox{v.Lon, v.Lat, v.Lon, v.Lat})
		}
		b.Polygons = append(b.Polygons, poly)
		b.BBox = b.BBox.Extend(poly.BBox)
	}
	if len(b.Polygons) == 0 {
		return nil
	}
	return b
}

func dropClosingVertex(ring []Point) []Point {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

// Contains reports whether the point is inside the boundary under the
// boundary-inclusive policy.
func (b *Boundary) Contains(pt Point) bool {
	if b == nil || !b.BBox.Contains(pt) {
		return false
	}
	for _, poly := range b.Polygons {
		if poly.contains(pt) {
			return true
		}
	}
	return false
}

func (p Polygon) contains(pt Point) bool {
	if !p.BBox.Contains(pt) {
		return false
	}
	inside, onEdge := pointInRing(pt, p.Rings[0])
	if onEdge {
		return true
	}
	if !inside {
		return false
	}
	for _, hole := range p.Rings[1:] {
		hin, hedge := pointInRing(pt, hole)
		if hedge {
			// hole boundary is shared with the zone interior
			return true
		}
		if hin {
			return false
		}
	}
	return true
}

// pointInRing runs even-odd ray casting against one ring. onEdge is
// reported separately so the caller can apply the inclusive policy to
// both outer rings and holes.
func pointInRing(pt Point, ring []Point) (inside, onEdge bool) {
	n := len(ring)
	x, y := pt.Lon, pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if onSegment(pt, a, b) {
			return false, true
		}
		if (a.Lat > y) != (b.Lat > y) {
			xCross := (b.Lon-a.Lon)*(y-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside, false
}

func onSegment(pt, a, b Point) bool {
	cross := (b.Lon-a.Lon)*(pt.Lat-a.Lat) - (b.Lat-a.Lat)*(pt.Lon-a.Lon)
	if math.Abs(cross) > eps {
		return false
	}
	return pt.Lon >= math.Min(a.Lon, b.Lon)-eps && pt.Lon <= math.Max(a.Lon, b.Lon)+eps &&
		pt.Lat >= math.Min(a.Lat, b.Lat)-eps && pt.Lat <= math.Max(a.Lat, b.Lat)+eps
}

// Area returns the planar shoelace area of the boundary in square
// degrees: outer rings minus holes, summed across polygons. It is used
// only to rank overlapping zones by specificity, so the unit does not
// matter.
func (b *Boundary) Area() float64 {
	if b == nil {
		return 0
	}
	var total float64
	for _, poly := range b.Polygons {
		for i, ring := range poly.Rings {
			a := ringArea(ring)
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	if total < 0 {
		total = 0
	}
	return total
}

func ringArea(ring []Point) float64 {
	var sum float64
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += ring[j].Lon*ring[i].Lat - ring[i].Lon*ring[j].Lat
	}
	return math.Abs(sum) / 2
}
