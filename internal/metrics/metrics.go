package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ImportBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxapi_import_batches_total",
		Help: "Total number of batch import runs",
	})
	ImportRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxapi_import_records_total",
		Help: "Total batch records by outcome status",
	}, []string{"status"})
	ImportBatchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxapi_import_batch_duration_ms",
		Help:    "Batch import duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	})
	ResolveRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxapi_resolve_requests_total",
		Help: "Total jurisdiction resolution requests",
	})
	ResolveNoMatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxapi_resolve_no_match_total",
		Help: "Total resolutions matching no tax zone",
	})
	ZoneReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taxapi_zone_reloads_total",
		Help: "Total zone feed reloads installed into the index",
	})
)

func init() {
	prometheus.MustRegister(
		ImportBatchesTotal,
		ImportRecordsTotal,
		ImportBatchDurationMs,
		ResolveRequestsTotal,
		ResolveNoMatchTotal,
		ZoneReloadsTotal,
	)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
