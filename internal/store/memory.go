package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/surveysystem/tax-api/internal/orders"
)

// MemoryStore is an in-memory OrderStore used by tests and local runs
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[int64]orders.Order
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]orders.Order), nextID: 1}
}

func (s *MemoryStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *MemoryStore) Save(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.nextID
	} else if _, ok := s.byID[o.ID]; ok {
		return orders.ErrDuplicateID
	}
	if o.ID >= s.nextID {
		s.nextID = o.ID + 1
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.byID[o.ID] = *o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) Update(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[o.ID]
	if !ok {
		return orders.ErrNotFound
	}
	cur.RateMicros = o.RateMicros
	cur.TaxCents = o.TaxCents
	cur.TotalCents = o.TotalCents
	cur.Jurisdictions = o.Jurisdictions
	cur.UpdatedAt = time.Now().UTC()
	s.byID[o.ID] = cur
	*o = cur
	return nil
}

func (s *MemoryStore) Query(_ context.Context, f orders.OrderFilter) (*orders.OrderPage, error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)

	s.mu.RLock()
	matched := make([]orders.Order, 0, len(s.byID))
	for _, o := range s.byID {
		if f.From != nil && o.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && o.Timestamp.After(*f.To) {
			continue
		}
		if f.MinTotalCents != nil && o.TotalCents < *f.MinTotalCents {
			continue
		}
		if f.MaxTotalCents != nil && o.TotalCents > *f.MaxTotalCents {
			continue
		}
		matched = append(matched, o)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	lo := (page - 1) * pageSize
	if lo > len(matched) {
		lo = len(matched)
	}
	hi := lo + pageSize
	if hi > len(matched) {
		hi = len(matched)
	}
	return &orders.OrderPage{
		Orders:   matched[lo:hi],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of persisted orders.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
