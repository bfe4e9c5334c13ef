// Package orders implements the order entity, the batch ingestion
// pipeline and the storage contract the pipeline persists through.
package orders

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the order id does not exist in the store.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateID indicates an insert with an id already persisted.
	ErrDuplicateID = errors.New("duplicate order id")
)

// Order is one computed order: the caller-supplied location, subtotal
// and timestamp plus the tax breakdown derived from them. Computed
// fields change only through an explicit recalculation.
type Order struct {
	ID            int64     `json:"id"`
	Longitude     float64   `json:"longitude"`
	Latitude      float64   `json:"latitude"`
	Timestamp     time.Time `json:"timestamp"`
	SubtotalCents int64     `json:"subtotal_cents"`

	RateMicros    int64    `json:"composite_rate_micros"`
	TaxCents      int64    `json:"tax_amount_cents"`
	TotalCents    int64    `json:"total_amount_cents"`
	Jurisdictions []string `json:"jurisdictions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderFilter narrows and pages an order listing. Nil bounds are open.
type OrderFilter struct {
	From          *time.Time
	To            *time.Time
	MinTotalCents *int64
	MaxTotalCents *int64
	Page          int
	PageSize      int
}

// OrderPage is one page of a filtered listing.
type OrderPage struct {
	Orders   []Order `json:"orders"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// OrderStore is the narrow persistence contract the pipeline and
// handlers depend on; the storage technology behind it is up to the
// implementation.
type OrderStore interface {
	// Exists reports whether an order with the id is persisted.
	Exists(ctx context.Context, id int64) (bool, error)
	// Save inserts the order, assigning ID when it is zero. Returns
	// ErrDuplicateID when the id is already persisted.
	Save(ctx context.Context, o *Order) error
	// Get fetches one order or ErrNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
	// Update rewrites the computed fields of an existing order.
	Update(ctx context.Context, o *Order) error
	// Query returns a page of orders matching the filter, newest first.
	Query(ctx context.Context, f OrderFilter) (*OrderPage, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
