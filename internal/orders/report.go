package orders

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the per-record outcome of a batch import.
type RecordStatus string

const (
	// StatusAccepted: computed and persisted.
	StatusAccepted RecordStatus = "accepted"
	// StatusMalformed: the row could not be parsed into a candidate order.
	StatusMalformed RecordStatus = "malformed"
	// StatusInvalid: parsed but failed validation.
	StatusInvalid RecordStatus = "invalid"
	// StatusDuplicate: id already seen in this batch or in the store.
	StatusDuplicate RecordStatus = "duplicate"
	// StatusFailed: resolution, computation or persistence failed.
	StatusFailed RecordStatus = "failed"
)

// RecordOutcome is the reported result for one source row. Row is the
// original row index in the batch source, so outcomes stay traceable
// even though workers finish out of order.
type RecordOutcome struct {
	Row     int          `json:"row"`
	OrderID *int64       `json:"order_id,omitempty"`
	Status  RecordStatus `json:"status"`
	Reason  string       `json:"reason,omitempty"`
}

// ImportReport summarizes one batch ingestion run.
type ImportReport struct {
	BatchID    uuid.UUID       `json:"batch_id"`
	Accepted   int             `json:"accepted"`
	Rejected   int             `json:"rejected"`
	Duplicates int             `json:"duplicates"`
	Records    []RecordOutcome `json:"records"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// reportAccumulator collects outcomes from concurrent workers.
// Append-only behind a mutex; finish sorts by row for readable reports.
type reportAccumulator struct {
	mu     sync.Mutex
	report ImportReport
}

func newReportAccumulator() *reportAccumulator {
	return &reportAccumulator{
		report: ImportReport{
			BatchID:   uuid.New(),
			StartedAt: time.Now().UTC(),
		},
	}
}

func (a *reportAccumulator) add(o RecordOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch o.Status {
	case StatusAccepted:
		a.report.Accepted++
	case StatusDuplicate:
		a.report.Duplicates++
	default:
		a.report.Rejected++
	}
	a.report.Records = append(a.report.Records, o)
}

func (a *reportAccumulator) finish() *ImportReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	sort.Slice(a.report.Records, func(i, j int) bool {
		return a.report.Records[i].Row < a.report.Records[j].Row
	})
	a.report.FinishedAt = time.Now().UTC()
	report := a.report
	return &report
}
