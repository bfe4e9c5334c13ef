package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/tax"
)

// ReplaceZones swaps the persisted zone set for the given one in a
// single transaction, so a partially written feed never becomes visible.
func (s *PostgresStore) ReplaceZones(ctx context.Context, zones []tax.Zone) error {
	txn, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning zone replace")
	}
	defer txn.Rollback(ctx)

	if _, err := txn.Exec(ctx, `DELETE FROM tax_zones`); err != nil {
		return errors.Wrap(err, "clearing tax zones")
	}
	for _, z := range zones {
		var boundary interface{}
		if len(z.Geometry) > 0 {
			boundary = z.Geometry
		}
		_, err := txn.Exec(ctx,
			`INSERT INTO tax_zones (id, name, level, state_rate_micros,
				county_rate_micros, city_rate_micros, special_rate_micros, boundary)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			z.ID, z.Name, string(z.Level), z.StateRateMicros,
			z.CountyRateMicros, z.CityRateMicros, z.SpecialRateMicros, boundary)
		if err != nil {
			return errors.Wrapf(err, "inserting zone %d", z.ID)
		}
	}
	return errors.Wrap(txn.Commit(ctx), "committing zone replace")
}

// ListZones reads the persisted zone set, parsing boundaries back into
// geometry.
func (s *PostgresStore) ListZones(ctx context.Context) ([]tax.Zone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, level, state_rate_micros, county_rate_micros,
			city_rate_micros, special_rate_micros, boundary
		 FROM tax_zones ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "listing tax zones")
	}
	defer rows.Close()

	var zones []tax.Zone
	for rows.Next() {
		var z tax.Zone
		var level string
		var boundary []byte
		if err := rows.Scan(&z.ID, &z.Name, &level, &z.StateRateMicros,
			&z.CountyRateMicros, &z.CityRateMicros, &z.SpecialRateMicros, &boundary); err != nil {
			return nil, errors.Wrap(err, "scanning tax zone")
		}
		z.Level = tax.Level(level)
		if len(boundary) > 0 {
			z.Geometry = json.RawMessage(boundary)
			if z.Boundary, err = geo.ParseGeoJSON(z.Geometry); err != nil {
				return nil, errors.Wrapf(err, "zone %d boundary", z.ID)
			}
		}
		zones = append(zones, z)
	}
	return zones, errors.Wrap(rows.Err(), "listing tax zones")
}
