// Package tax implements the tax jurisdiction core: the spatial zone
// index, the jurisdiction resolver and the fixed-point tax calculator.
package tax

import (
	"encoding/json"
	"fmt"

	"github.com/surveysystem/tax-api/internal/geo"
)

// Level identifies the jurisdiction level of a tax zone.
type Level string

const (
	LevelState   Level = "state"
	LevelCounty  Level = "county"
	LevelCity    Level = "city"
	LevelSpecial Level = "special"
)

// singleLevels are the levels where at most one zone may be active at a
// point; special districts may overlap freely.
var singleLevels = []Level{LevelState, LevelCounty, LevelCity}

// Zone is one tax jurisdiction: a rate schedule plus an optional
// geographic boundary. Zones are immutable once loaded into the index.
type Zone struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level Level  `json:"level"`

	StateRateMicros   int64 `json:"state_rate_micros"`
	CountyRateMicros  int64 `json:"county_rate_micros"`
	CityRateMicros    int64 `json:"city_rate_micros"`
	SpecialRateMicros int64 `json:"special_rate_micros"`

	Boundary *geo.Boundary `json:"-"`
	// Geometry keeps the raw GeoJSON the boundary was parsed from, so
	// zones can round-trip through storage without re-encoding.
	Geometry json.RawMessage `json:"-"`
}

// RateMicros returns the rate the zone contributes at its own level.
func (z *Zone) RateMicros() int64 {
	switch z.Level {
	case LevelState:
		return z.StateRateMicros
	case LevelCounty:
		return z.CountyRateMicros
	case LevelCity:
		return z.CityRateMicros
	case LevelSpecial:
		return z.SpecialRateMicros
	}
	return 0
}

// Validate enforces the zone invariants: a known level and non-negative
// rates.
func (z *Zone) Validate() error {
	switch z.Level {
	case LevelState, LevelCounty, LevelCity, LevelSpecial:
	default:
		return fmt.Errorf("zone %d: unknown level %q", z.ID, z.Level)
	}
	for _, rate := range []int64{z.StateRateMicros, z.CountyRateMicros, z.CityRateMicros, z.SpecialRateMicros} {
		if rate < 0 {
			return fmt.Errorf("zone %d: negative rate", z.ID)
		}
	}
	return nil
}
