package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/tax"
)

func init() {
	logger.InitLogger()
}

// fakeStore is an in-memory OrderStore with error injection.
type fakeStore struct {
	mu      sync.Mutex
	byID    map[int64]Order
	nextID  int64
	saveErr error
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[int64]Order), nextID: 1}
}

func (s *fakeStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *fakeStore) Save(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if o.ID == 0 {
		o.ID = s.nextID
	} else if _, ok := s.byID[o.ID]; ok {
		return ErrDuplicateID
	}
	if o.ID >= s.nextID {
		s.nextID = o.ID + 1
	}
	s.byID[o.ID] = *o
	return nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *fakeStore) Update(_ context.Context, o *Order) error { return nil }

func (s *fakeStore) Query(_ context.Context, f OrderFilter) (*OrderPage, error) {
	return &OrderPage{}, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// testResolver builds a resolver over one 7% state zone covering
// longitude [-130,-100], latitude [30,50].
func testResolver(t *testing.T) *tax.Resolver {
	t.Helper()
	ix := tax.NewZoneIndex()
	boundary := geo.NewBoundary([][][]geo.Point{{{
		{Lon: -130, Lat: 30},
		{Lon: -100, Lat: 30},
		{Lon: -100, Lat: 50},
		{Lon: -130, Lat: 50},
	}}})
	require.NoError(t, ix.Load([]tax.Zone{
		{ID: 1, Name: "Westland", Level: tax.LevelState, StateRateMicros: 70000, Boundary: boundary},
	}))
	return tax.NewResolver(ix)
}

func newTestPipeline(t *testing.T, store OrderStore) *Pipeline {
	t.Helper()
	return NewPipeline(testResolver(t), tax.NewCalculator(), store, PipelineConfig{Workers: 4})
}

func importCSV(t *testing.T, p *Pipeline, csv string) (*ImportReport, error) {
	t.Helper()
	src, err := NewCSVSource(strings.NewReader(csv))
	require.NoError(t, err)
	return p.ImportBatch(context.Background(), src)
}

func statusByRow(report *ImportReport) map[int]RecordStatus {
	m := make(map[int]RecordStatus, len(report.Records))
	for _, rec := range report.Records {
		m[rec.Row] = rec.Status
	}
	return m
}

func TestImportBatchAccepted(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	report, err := importCSV(t, p,
		"id,longitude,latitude,timestamp,subtotal\n"+
			"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n"+
			"2,-110.0,40.0,2024-03-01T11:00:00Z,19.99\n")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accepted)
	assert.Zero(t, report.Rejected)
	assert.Zero(t, report.Duplicates)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", report.BatchID.String())
	assert.Equal(t, 2, store.len())

	o, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), o.SubtotalCents)
	assert.Equal(t, int64(70000), o.RateMicros)
	assert.Equal(t, int64(700), o.TaxCents)
	assert.Equal(t, int64(10700), o.TotalCents)
	assert.Equal(t, []string{"Westland"}, o.Jurisdictions)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), o.Timestamp)
}

func TestImportBatchOutsideAnyZone(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	// valid coordinates matching no zone: zero tax, still accepted
	report, err := importCSV(t, p,
		"id,longitude,latitude,timestamp,subtotal\n"+
			"1,0.0,0.0,2024-03-01T10:00:00Z,50.00\n")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)

	o, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, o.RateMicros)
	assert.Zero(t, o.TaxCents)
	assert.Equal(t, int64(5000), o.TotalCents)
	assert.Empty(t, o.Jurisdictions)
}

func TestImportBatchRejections(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	report, err := importCSV(t, p,
		"id,longitude,latitude,timestamp,subtotal\n"+
			"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n"+ // accepted
			"abc,-122.4,37.7,2024-03-01T10:00:00Z,10.00\n"+ // malformed id
			"3,-122.4,37.7,2024-03-01T10:00:00Z,\n"+ // missing subtotal
			"4,-122.4,137.7,2024-03-01T10:00:00Z,10.00\n"+ // latitude out of range
			"5,-122.4,37.7,2024-03-01T10:00:00Z,-4.00\n"+ // negative subtotal
			"-6,-122.4,37.7,2024-03-01T10:00:00Z,10.00\n"+ // non-positive id
			"7,-122.4,37.7,yesterday,10.00\n"+ // bad timestamp
			"8,not-a-number,37.7,2024-03-01T10:00:00Z,10.00\n") // bad longitude
	require.NoError(t, err)

	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 7, report.Rejected)
	assert.Zero(t, report.Duplicates)
	assert.Equal(t, 1, store.len())

	byRow := statusByRow(report)
	assert.Equal(t, StatusAccepted, byRow[1])
	assert.Equal(t, StatusMalformed, byRow[2])
	assert.Equal(t, StatusMalformed, byRow[3])
	assert.Equal(t, StatusInvalid, byRow[4])
	assert.Equal(t, StatusInvalid, byRow[5])
	assert.Equal(t, StatusInvalid, byRow[6])
	assert.Equal(t, StatusInvalid, byRow[7])
	assert.Equal(t, StatusMalformed, byRow[8])

	// records come back in row order despite concurrent workers
	for i, rec := range report.Records {
		assert.Equal(t, i+1, rec.Row)
	}
}

func TestImportBatchDuplicates(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	t.Run("first occurrence wins within a batch", func(t *testing.T) {
		report, err := importCSV(t, p,
			"id,longitude,latitude,timestamp,subtotal\n"+
				"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n"+
				"1,-110.0,40.0,2024-03-01T11:00:00Z,999.00\n")
		require.NoError(t, err)
		assert.Equal(t, 1, report.Accepted)
		assert.Equal(t, 1, report.Duplicates)

		byRow := statusByRow(report)
		assert.Equal(t, StatusAccepted, byRow[1])
		assert.Equal(t, StatusDuplicate, byRow[2])

		o, err := store.Get(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), o.SubtotalCents, "row 1 content persisted")
	})

	t.Run("re-importing the same file is all duplicates", func(t *testing.T) {
		report, err := importCSV(t, p,
			"id,longitude,latitude,timestamp,subtotal\n"+
				"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n")
		require.NoError(t, err)
		assert.Zero(t, report.Accepted)
		assert.Equal(t, 1, report.Duplicates)
		assert.Equal(t, 1, store.len())
	})
}

func TestImportBatchMissingIDAssigned(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	report, err := importCSV(t, p,
		"longitude,latitude,timestamp,subtotal\n"+
			"-122.4,37.7,2024-03-01T10:00:00Z,100.00\n"+
			"-110.0,40.0,2024-03-01T11:00:00Z,20.00\n")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, store.len())
	for _, rec := range report.Records {
		require.NotNil(t, rec.OrderID)
		assert.Positive(t, *rec.OrderID)
	}
}

func TestImportBatchStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk on fire")
	p := newTestPipeline(t, store)

	report, err := importCSV(t, p,
		"id,longitude,latitude,timestamp,subtotal\n"+
			"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n")
	require.NoError(t, err, "a failing record does not fail the batch")
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, StatusFailed, report.Records[0].Status)
	assert.Contains(t, report.Records[0].Reason, "persist")
}

func TestImportBatchFatalPreconditions(t *testing.T) {
	t.Run("index never loaded", func(t *testing.T) {
		ix := tax.NewZoneIndex()
		p := NewPipeline(tax.NewResolver(ix), tax.NewCalculator(), newFakeStore(), PipelineConfig{})
		src, err := NewCSVSource(strings.NewReader("id,longitude,latitude,timestamp,subtotal\n"))
		require.NoError(t, err)
		report, err := p.ImportBatch(context.Background(), src)
		assert.ErrorIs(t, err, tax.ErrIndexNotLoaded)
		assert.Nil(t, report)
	})

	t.Run("store unreachable", func(t *testing.T) {
		store := newFakeStore()
		store.pingErr = errors.New("connection refused")
		p := newTestPipeline(t, store)
		src, err := NewCSVSource(strings.NewReader("id,longitude,latitude,timestamp,subtotal\n"))
		require.NoError(t, err)
		report, err := p.ImportBatch(context.Background(), src)
		assert.Error(t, err)
		assert.Nil(t, report)
	})
}

func TestImportBatchBrokenRow(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	report, err := importCSV(t, p,
		"id,longitude,latitude,timestamp,subtotal\n"+
			"1,-122.4,37.7,2024-03-01T10:00:00Z,100.00\n"+
			"2,\"unterminated,37.7,,5.00\n")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, StatusMalformed, statusByRow(report)[2])
}

// endlessSource yields unique valid rows forever; only cancellation can
// stop a batch reading from it.
type endlessSource struct{ row int }

func (s *endlessSource) Next() (*RawRecord, error) {
	s.row++
	return &RawRecord{Row: s.row, Fields: map[string]string{
		"id":        strconv.Itoa(s.row),
		"longitude": "-122.4",
		"latitude":  "37.7",
		"subtotal":  "1.00",
	}}, nil
}

func TestImportBatchCancellation(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(testResolver(t), tax.NewCalculator(), store, PipelineConfig{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.ImportBatch(ctx, &endlessSource{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "partial report still returned")
	// dispatched records ran to completion on detached store contexts
	assert.Equal(t, report.Accepted, store.len())
}

func TestParseRecordTimestampLayouts(t *testing.T) {
	for _, ts := range []string{
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00",
		"2024-03-01 10:00:00",
		"2024-03-01",
	} {
		rec := &RawRecord{Row: 1, Fields: map[string]string{
			"longitude": "-122.4", "latitude": "37.7", "subtotal": "1.00", "timestamp": ts,
		}}
		o, status, reason := parseRecord(rec)
		require.Empty(t, status, "layout %q: %s", ts, reason)
		assert.Equal(t, 2024, o.Timestamp.Year())
	}
}

func TestParseRecordDefaultsTimestamp(t *testing.T) {
	rec := &RawRecord{Row: 1, Fields: map[string]string{
		"longitude": "-122.4", "latitude": "37.7", "subtotal": "1.00",
	}}
	before := time.Now().UTC()
	o, status, _ := parseRecord(rec)
	require.Empty(t, status)
	assert.False(t, o.Timestamp.Before(before.Add(-time.Second)))
}
