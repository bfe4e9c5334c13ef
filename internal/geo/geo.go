// Package geo implements the planar geometry primitives used for tax zone
// boundary matching: points, polygons with holes, bounding boxes and
// point-in-polygon containment.
//
// Containment policy: boundary-inclusive. A point lying exactly on a ring
// edge or vertex is contained, so adjacent zones sharing an edge both match
// and no gap opens between them. Callers needing a single winner apply
// their own deterministic tie-break on the matched set.
//
// Coordinates are WGS84 longitude/latitude treated as planar. Boundaries
// crossing the antimeridian must be pre-split into two polygons by the
// zone feed; the ray casting here does not wrap at ±180.
package geo

import (
	"errors"
	"fmt"
)

// ErrInvalidLocation indicates coordinates outside the valid
// longitude/latitude ranges.
var ErrInvalidLocation = errors.New("invalid location")

// Point is a WGS84 longitude/latitude pair.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// Validate checks that the point lies within [-180,180]x[-90,90].
func (p Point) Validate() error {
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidLocation, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidLocation, p.Lat)
	}
	return nil
}

// BBox is an axis-aligned bounding box: MinLon, MinLat, MaxLon, MaxLat.
type BBox [4]float64

// Contains reports whether the point lies inside or on the box.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b[0] && p.Lat >= b[1] && p.Lon <= b[2] && p.Lat <= b[3]
}

// Extend grows the box to cover the other box.
func (b BBox) Extend(o BBox) BBox {
	if o[0] < b[0] {
		b[0] = o[0]
	}
	if o[1] < b[1] {
		b[1] = o[1]
	}
	if o[2] > b[2] {
		b[2] = o[2]
	}
	if o[3] > b[3] {
		b[3] = o[3]
	}
	return b
}

func emptyBBox() BBox {
	return BBox{180, 90, -180, -90}
}
