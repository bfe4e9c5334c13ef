package tax

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/surveysystem/tax-api/internal/geo"
)

// The administrative zone feed is a GeoJSON FeatureCollection. Each
// feature carries the zone attributes in its properties and the boundary
// as a Polygon or MultiPolygon geometry (null allowed):
//
//	{"type": "Feature",
//	 "properties": {"id": 1, "name": "California", "level": "state",
//	                "state_rate": "0.0600"},
//	 "geometry": {"type": "Polygon", "coordinates": [...]}}
//
// Rates are decimal fraction strings; omitted rates default to zero.

type feedCollection struct {
	Type     string        `json:"type"`
	Features []feedFeature `json:"features"`
}

type feedFeature struct {
	Properties feedProperties  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type feedProperties struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Level       string `json:"level"`
	StateRate   string `json:"state_rate"`
	CountyRate  string `json:"county_rate"`
	CityRate    string `json:"city_rate"`
	SpecialRate string `json:"special_rate"`
}

// ParseFeed decodes a zone feed into validated zones.
func ParseFeed(r io.Reader) ([]Zone, error) {
	var fc feedCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, errors.Wrap(err, "decoding zone feed")
	}
	if fc.Type != "FeatureCollection" {
		return nil, errors.Errorf("zone feed is %q, want FeatureCollection", fc.Type)
	}

	zones := make([]Zone, 0, len(fc.Features))
	seen := make(map[int64]bool, len(fc.Features))
	for i, f := range fc.Features {
		z := Zone{
			ID:    f.Properties.ID,
			Name:  f.Properties.Name,
			Level: Level(f.Properties.Level),
		}
		if seen[z.ID] {
			return nil, errors.Errorf("zone feed feature %d: duplicate zone id %d", i, z.ID)
		}
		seen[z.ID] = true

		var err error
		if z.StateRateMicros, err = feedRate(f.Properties.StateRate); err != nil {
			return nil, errors.Wrapf(err, "zone %d state_rate", z.ID)
		}
		if z.CountyRateMicros, err = feedRate(f.Properties.CountyRate); err != nil {
			return nil, errors.Wrapf(err, "zone %d county_rate", z.ID)
		}
		if z.CityRateMicros, err = feedRate(f.Properties.CityRate); err != nil {
			return nil, errors.Wrapf(err, "zone %d city_rate", z.ID)
		}
		if z.SpecialRateMicros, err = feedRate(f.Properties.SpecialRate); err != nil {
			return nil, errors.Wrapf(err, "zone %d special_rate", z.ID)
		}

		if z.Boundary, err = geo.ParseGeoJSON(f.Geometry); err != nil {
			return nil, errors.Wrapf(err, "zone %d boundary", z.ID)
		}
		if z.Boundary != nil {
			z.Geometry = f.Geometry
		}
		if err = z.Validate(); err != nil {
			return nil, errors.Wrapf(err, "zone feed feature %d", i)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func feedRate(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return ParseRateMicros(s)
}
