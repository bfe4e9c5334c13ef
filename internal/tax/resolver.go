package tax

import (
	"fmt"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/metrics"
	"go.uber.org/zap"
)

// Resolver turns a geographic point into the set of applicable tax
// jurisdictions and their composite rate.
type Resolver struct {
	index  *ZoneIndex
	logger *zap.Logger
}

// NewResolver creates a resolver over the given zone index.
func NewResolver(index *ZoneIndex) *Resolver {
	return &Resolver{
		index:  index,
		logger: logger.Log,
	}
}

// Resolution is the outcome of resolving one point: the composite rate,
// the matched zones in fixed jurisdiction order (state, county, city,
// then special districts ascending by id) and any data-quality warnings
// recorded along the way.
type Resolution struct {
	RateMicros    int64
	Jurisdictions []string
	Zones         []*Zone
	Warnings      []string
}

// Resolve queries the zone index and composes the matched zones into a
// composite rate.
//
// At most one zone is expected per state/county/city level. When the
// zone data violates that, the zone with the smaller boundary area wins
// as the more specific match (lower id on equal area) and a warning is
// recorded instead of failing: upstream data errors must not block tax
// computation. Special districts all apply and are rate-summed. No match
// at all is a valid zero-rate outcome.
func (r *Resolver) Resolve(pt geo.Point) (*Resolution, error) {
	matched, err := r.index.Query(pt)
	if err != nil {
		return nil, err
	}
	metrics.ResolveRequestsTotal.Inc()
	if len(matched) == 0 {
		metrics.ResolveNoMatchTotal.Inc()
	}

	res := &Resolution{}
	byLevel := make(map[Level][]*Zone, 4)
	for _, z := range matched {
		byLevel[z.Level] = append(byLevel[z.Level], z)
	}

	for _, level := range singleLevels {
		zones := byLevel[level]
		if len(zones) == 0 {
			continue
		}
		winner := zones[0]
		if len(zones) > 1 {
			// query results are id-ascending, so a strict comparison
			// keeps the lower id on equal areas
			for _, z := range zones[1:] {
				if z.Boundary.Area() < winner.Boundary.Area() {
					winner = z
				}
			}
			warning := fmt.Sprintf("%d overlapping %s zones at (%v, %v); picked zone %d",
				len(zones), level, pt.Lon, pt.Lat, winner.ID)
			res.Warnings = append(res.Warnings, warning)
			r.logger.Warn("Overlapping same-level tax zones",
				zap.String("level", string(level)),
				zap.Float64("longitude", pt.Lon),
				zap.Float64("latitude", pt.Lat),
				zap.Int64("picked_zone_id", winner.ID))
		}
		res.Zones = append(res.Zones, winner)
		res.Jurisdictions = append(res.Jurisdictions, winner.Name)
		res.RateMicros += winner.RateMicros()
	}

	// specials arrive id-ascending from the index and all contribute
	for _, z := range byLevel[LevelSpecial] {
		res.Zones = append(res.Zones, z)
		res.Jurisdictions = append(res.Jurisdictions, z.Name)
		res.RateMicros += z.RateMicros()
	}

	return res, nil
}

// Ready reports whether the underlying index has been loaded.
func (r *Resolver) Ready() bool {
	return r.index.Loaded()
}
