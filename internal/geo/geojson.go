package geo

import (
	"encoding/json"
	"fmt"
)

// geoJSONGeometry is the subset of GeoJSON geometry the zone feed uses.
type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseGeoJSON decodes a GeoJSON Polygon or MultiPolygon geometry into a
// Boundary. A null geometry yields a nil boundary without error (zones
// without a boundary are excluded from spatial matching).
func ParseGeoJSON(raw json.RawMessage) (*Boundary, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g geoJSONGeometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	switch g.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("invalid Polygon coordinates: %w", err)
		}
		return NewBoundary([][][]Point{toRings(coords)}), nil
	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("invalid MultiPolygon coordinates: %w", err)
		}
		polys := make([][][]Point, 0, len(coords))
		for _, poly := range coords {
			polys = append(polys, toRings(poly))
		}
		return NewBoundary(polys), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func toRings(coords [][][]float64) [][]Point {
	rings := make([][]Point, 0, len(coords))
	for _, ring := range coords {
		pts := make([]Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			pts = append(pts, Point{Lon: pos[0], Lat: pos[1]})
		}
		rings = append(rings, pts)
	}
	return rings
}
