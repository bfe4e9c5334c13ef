package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/surveysystem/tax-api/internal/geo"
	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/metrics"
	"github.com/surveysystem/tax-api/internal/tax"
	"go.uber.org/zap"
)

const (
	defaultWorkers        = 8
	defaultPersistTimeout = 5 * time.Second
)

// Pipeline ingests batches of raw order records: it validates,
// deduplicates, computes the tax breakdown and persists each record
// independently, reporting a per-row outcome. One bad record never
// aborts a batch; partial success is the designed outcome.
type Pipeline struct {
	resolver       *tax.Resolver
	calc           *tax.Calculator
	store          OrderStore
	workers        int
	persistTimeout time.Duration
	logger         *zap.Logger
}

// PipelineConfig tunes the ingestion worker pool.
type PipelineConfig struct {
	// Workers bounds concurrent record processing within one batch.
	Workers int
	// PersistTimeout bounds each store call so no record is left in limbo.
	PersistTimeout time.Duration
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(resolver *tax.Resolver, calc *tax.Calculator, store OrderStore, cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	return &Pipeline{
		resolver:       resolver,
		calc:           calc,
		store:          store,
		workers:        cfg.Workers,
		persistTimeout: cfg.PersistTimeout,
		logger:         logger.Log,
	}
}

// idSet is the shared in-batch duplicate set. Claims happen in dispatch
// order so the first occurrence of an id in the file always wins,
// regardless of worker scheduling.
type idSet struct {
	mu  sync.Mutex
	ids map[int64]bool
}

func (s *idSet) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		return false
	}
	s.ids[id] = true
	return true
}

// ImportBatch processes the batch source to exhaustion and returns the
// report.
//
// Fatal preconditions (zone index never loaded, store unreachable) fail
// the whole call; every per-record problem becomes a reported outcome
// instead. Cancelling ctx stops dispatching new records; in-flight
// records finish against detached store contexts and are reported, and
// the context error is returned alongside the partial report.
func (p *Pipeline) ImportBatch(ctx context.Context, src BatchSource) (*ImportReport, error) {
	if !p.resolver.Ready() {
		return nil, tax.ErrIndexNotLoaded
	}
	if err := p.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("order store unreachable: %w", err)
	}

	start := time.Now()
	acc := newReportAccumulator()
	seen := &idSet{ids: make(map[int64]bool)}
	tasks := make(chan *RawRecord)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range tasks {
				outcome := p.processRecord(ctx, rec, seen)
				acc.add(outcome)
				metrics.ImportRecordsTotal.WithLabelValues(string(outcome.Status)).Inc()
			}
		}()
	}

	var batchErr error
dispatch:
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			batchErr = fmt.Errorf("reading batch source: %w", err)
			break
		}
		if out, dup := p.claimInDispatchOrder(rec, seen); dup {
			acc.add(out)
			metrics.ImportRecordsTotal.WithLabelValues(string(StatusDuplicate)).Inc()
			continue
		}
		select {
		case tasks <- rec:
		case <-ctx.Done():
			batchErr = ctx.Err()
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	report := acc.finish()
	metrics.ImportBatchesTotal.Inc()
	metrics.ImportBatchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	p.logger.Info("Import batch finished",
		zap.String("batch_id", report.BatchID.String()),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.Rejected),
		zap.Int("duplicates", report.Duplicates),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(batchErr))
	return report, batchErr
}

// claimInDispatchOrder claims the record's id in the shared set before
// the record is handed to a worker, in source row order. A failed claim
// is an in-batch duplicate.
func (p *Pipeline) claimInDispatchOrder(rec *RawRecord, seen *idSet) (RecordOutcome, bool) {
	if rec.Err != nil {
		return RecordOutcome{}, false
	}
	idStr, ok := rec.Fields["id"]
	if !ok {
		return RecordOutcome{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return RecordOutcome{}, false // the worker reports it malformed
	}
	if seen.claim(id) {
		return RecordOutcome{}, false
	}
	return RecordOutcome{
		Row:     rec.Row,
		OrderID: &id,
		Status:  StatusDuplicate,
		Reason:  "duplicate id within batch",
	}, true
}

// processRecord runs the per-record stages: parse, validate,
// deduplicate against the store, resolve+compute, persist. Store calls
// run on a context detached from batch cancellation, bounded by the
// persist timeout, so an in-flight record always finishes one way or
// the other.
func (p *Pipeline) processRecord(ctx context.Context, rec *RawRecord, seen *idSet) RecordOutcome {
	if rec.Err != nil {
		return RecordOutcome{Row: rec.Row, Status: StatusMalformed, Reason: rec.Err.Error()}
	}

	cand, status, reason := parseRecord(rec)
	if status != "" {
		out := RecordOutcome{Row: rec.Row, Status: status, Reason: reason}
		if cand != nil && cand.ID != 0 {
			out.OrderID = &cand.ID
		}
		return out
	}

	opCtx := context.WithoutCancel(ctx)
	if cand.ID != 0 {
		checkCtx, cancel := context.WithTimeout(opCtx, p.persistTimeout)
		exists, err := p.store.Exists(checkCtx, cand.ID)
		cancel()
		if err != nil {
			return RecordOutcome{Row: rec.Row, OrderID: &cand.ID, Status: StatusFailed,
				Reason: fmt.Sprintf("duplicate check: %v", err)}
		}
		if exists {
			return RecordOutcome{Row: rec.Row, OrderID: &cand.ID, Status: StatusDuplicate,
				Reason: "id already persisted"}
		}
	}

	res, err := p.resolver.Resolve(geo.Point{Lon: cand.Longitude, Lat: cand.Latitude})
	if err != nil {
		return RecordOutcome{Row: rec.Row, OrderID: orderIDPtr(cand), Status: StatusFailed,
			Reason: fmt.Sprintf("jurisdiction resolution: %v", err)}
	}
	taxCents, totalCents, err := p.calc.Compute(cand.SubtotalCents, res.RateMicros)
	if err != nil {
		return RecordOutcome{Row: rec.Row, OrderID: orderIDPtr(cand), Status: StatusFailed,
			Reason: fmt.Sprintf("tax computation: %v", err)}
	}
	cand.RateMicros = res.RateMicros
	cand.TaxCents = taxCents
	cand.TotalCents = totalCents
	cand.Jurisdictions = res.Jurisdictions

	saveCtx, cancel := context.WithTimeout(opCtx, p.persistTimeout)
	defer cancel()
	if err := p.store.Save(saveCtx, cand); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return RecordOutcome{Row: rec.Row, OrderID: &cand.ID, Status: StatusDuplicate,
				Reason: "id already persisted"}
		}
		return RecordOutcome{Row: rec.Row, OrderID: orderIDPtr(cand), Status: StatusFailed,
			Reason: fmt.Sprintf("persist: %v", err)}
	}

	return RecordOutcome{Row: rec.Row, OrderID: &cand.ID, Status: StatusAccepted}
}

// timestampLayouts are accepted in addition to RFC3339; export tooling
// upstream is not consistent about it.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRecord maps raw fields to a candidate order. Missing required
// fields or unparseable types are malformed; parseable values that
// violate ranges are invalid. A missing id means the store assigns one;
// a missing timestamp defaults to the import time.
func parseRecord(rec *RawRecord) (*Order, RecordStatus, string) {
	f := rec.Fields
	o := &Order{}

	if idStr, ok := f["id"]; ok {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, StatusMalformed, fmt.Sprintf("unparseable id %q", idStr)
		}
		if id <= 0 {
			return nil, StatusInvalid, fmt.Sprintf("non-positive id %d", id)
		}
		o.ID = id
	}

	lonStr, ok := f["longitude"]
	if !ok {
		return o, StatusMalformed, "missing longitude"
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return o, StatusMalformed, fmt.Sprintf("unparseable longitude %q", lonStr)
	}
	latStr, ok := f["latitude"]
	if !ok {
		return o, StatusMalformed, "missing latitude"
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return o, StatusMalformed, fmt.Sprintf("unparseable latitude %q", latStr)
	}
	o.Longitude, o.Latitude = lon, lat

	subStr, ok := f["subtotal"]
	if !ok {
		return o, StatusMalformed, "missing subtotal"
	}
	cents, err := tax.ParseCents(subStr)
	if err != nil {
		return o, StatusMalformed, fmt.Sprintf("unparseable subtotal %q", subStr)
	}
	o.SubtotalCents = cents

	// validation
	if err := (geo.Point{Lon: lon, Lat: lat}).Validate(); err != nil {
		return o, StatusInvalid, err.Error()
	}
	if cents < 0 {
		return o, StatusInvalid, fmt.Sprintf("negative subtotal %s", subStr)
	}
	if tsStr, ok := f["timestamp"]; ok {
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			return o, StatusInvalid, fmt.Sprintf("malformed timestamp %q", tsStr)
		}
		o.Timestamp = ts
	} else {
		o.Timestamp = time.Now().UTC()
	}

	return o, "", ""
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func orderIDPtr(o *Order) *int64 {
	if o == nil || o.ID == 0 {
		return nil
	}
	return &o.ID
}
