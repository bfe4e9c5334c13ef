package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveysystem/tax-api/internal/orders"
)

func orderAt(id int64, ts time.Time, totalCents int64) *orders.Order {
	return &orders.Order{
		ID:         id,
		Longitude:  -122.4,
		Latitude:   37.7,
		Timestamp:  ts,
		TotalCents: totalCents,
	}
}

func TestMemoryStoreSave(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("assigns id when zero", func(t *testing.T) {
		o := orderAt(0, time.Now(), 100)
		require.NoError(t, s.Save(ctx, o))
		assert.Positive(t, o.ID)
		assert.False(t, o.CreatedAt.IsZero())
	})

	t.Run("keeps explicit id", func(t *testing.T) {
		o := orderAt(42, time.Now(), 100)
		require.NoError(t, s.Save(ctx, o))
		assert.Equal(t, int64(42), o.ID)

		exists, err := s.Exists(ctx, 42)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := s.Save(ctx, orderAt(42, time.Now(), 100))
		assert.ErrorIs(t, err, orders.ErrDuplicateID)
	})

	t.Run("assigned ids skip past explicit ones", func(t *testing.T) {
		o := orderAt(0, time.Now(), 100)
		require.NoError(t, s.Save(ctx, o))
		assert.Greater(t, o.ID, int64(42))
	})
}

func TestMemoryStoreGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	o := orderAt(1, time.Now(), 100)
	o.SubtotalCents = 90
	require.NoError(t, s.Save(ctx, o))

	o.RateMicros = 70000
	o.TaxCents = 6
	o.TotalCents = 96
	o.Jurisdictions = []string{"Westland"}
	require.NoError(t, s.Update(ctx, o))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), got.RateMicros)
	assert.Equal(t, int64(96), got.TotalCents)
	assert.Equal(t, int64(90), got.SubtotalCents, "input fields untouched by update")
	assert.Equal(t, []string{"Westland"}, got.Jurisdictions)

	err = s.Update(ctx, orderAt(99, time.Now(), 1))
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Save(ctx, orderAt(i, base.Add(time.Duration(i)*time.Hour), i*100)))
	}

	t.Run("newest first", func(t *testing.T) {
		page, err := s.Query(ctx, orders.OrderFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		require.Len(t, page.Orders, 5)
		assert.Equal(t, int64(5), page.Orders[0].ID)
		assert.Equal(t, int64(1), page.Orders[4].ID)
	})

	t.Run("time window", func(t *testing.T) {
		from := base.Add(2 * time.Hour)
		to := base.Add(4 * time.Hour)
		page, err := s.Query(ctx, orders.OrderFilter{From: &from, To: &to})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
	})

	t.Run("total bounds", func(t *testing.T) {
		min, max := int64(200), int64(400)
		page, err := s.Query(ctx, orders.OrderFilter{MinTotalCents: &min, MaxTotalCents: &max})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := s.Query(ctx, orders.OrderFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		require.Len(t, page.Orders, 2)
		assert.Equal(t, int64(3), page.Orders[0].ID)

		page, err = s.Query(ctx, orders.OrderFilter{Page: 4, PageSize: 2})
		require.NoError(t, err)
		assert.Empty(t, page.Orders)
	})

	t.Run("defaults for bad paging", func(t *testing.T) {
		page, err := s.Query(ctx, orders.OrderFilter{Page: -1, PageSize: 0})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.PageSize)
	})
}
