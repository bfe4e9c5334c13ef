// Package store provides OrderStore implementations: a pgx-backed
// Postgres store for deployments and an in-memory store for tests and
// local runs. The schema lives in scripts/schema.sql.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/surveysystem/tax-api/internal/orders"
)

// PostgresStore persists orders and tax zones in Postgres through a
// pgxpool connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect parses the connection string, configures the pool and opens it.
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database connection string")
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const orderColumns = `id, longitude, latitude, ts, subtotal_cents,
	composite_rate_micros, tax_cents, total_cents, jurisdictions,
	created_at, updated_at`

func (s *PostgresStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking order existence")
	}
	return exists, nil
}

func (s *PostgresStore) Save(ctx context.Context, o *orders.Order) error {
	now := time.Now().UTC()
	if o.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO orders (longitude, latitude, ts, subtotal_cents,
				composite_rate_micros, tax_cents, total_cents, jurisdictions,
				created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			 RETURNING id`,
			o.Longitude, o.Latitude, o.Timestamp, o.SubtotalCents,
			o.RateMicros, o.TaxCents, o.TotalCents, o.Jurisdictions, now,
		).Scan(&o.ID)
		if err != nil {
			return errors.Wrap(err, "inserting order")
		}
	} else {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO orders (id, longitude, latitude, ts, subtotal_cents,
				composite_rate_micros, tax_cents, total_cents, jurisdictions,
				created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			 ON CONFLICT (id) DO NOTHING`,
			o.ID, o.Longitude, o.Latitude, o.Timestamp, o.SubtotalCents,
			o.RateMicros, o.TaxCents, o.TotalCents, o.Jurisdictions, now)
		if err != nil {
			return errors.Wrap(err, "inserting order")
		}
		if tag.RowsAffected() == 0 {
			return orders.ErrDuplicateID
		}
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*orders.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetching order")
	}
	return o, nil
}

func (s *PostgresStore) Update(ctx context.Context, o *orders.Order) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET composite_rate_micros = $2, tax_cents = $3, total_cents = $4,
		     jurisdictions = $5, updated_at = $6
		 WHERE id = $1`,
		o.ID, o.RateMicros, o.TaxCents, o.TotalCents, o.Jurisdictions, now)
	if err != nil {
		return errors.Wrap(err, "updating order")
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	o.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, f orders.OrderFilter) (*orders.OrderPage, error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.From != nil {
		conds = append(conds, "ts >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "ts <= "+arg(*f.To))
	}
	if f.MinTotalCents != nil {
		conds = append(conds, "total_cents >= "+arg(*f.MinTotalCents))
	}
	if f.MaxTotalCents != nil {
		conds = append(conds, "total_cents <= "+arg(*f.MaxTotalCents))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "counting orders")
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY ts DESC, id ASC LIMIT ` + arg(pageSize) + ` OFFSET ` + arg((page-1)*pageSize)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}
	defer rows.Close()

	result := &orders.OrderPage{Total: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning order")
		}
		result.Orders = append(result.Orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}
	return result, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.Longitude, &o.Latitude, &o.Timestamp,
		&o.SubtotalCents, &o.RateMicros, &o.TaxCents, &o.TotalCents,
		&o.Jurisdictions, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
