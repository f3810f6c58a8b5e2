package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// QueryFetchesTotal counts settled query fetches
	QueryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_query_fetches_total",
			Help: "Total number of query fetches settled",
		},
		[]string{"status"}, // status: success, error
	)

	// QueryFetchDuration measures query fetch duration in seconds
	QueryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castwave_query_fetch_duration_seconds",
			Help:    "Query fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"status"},
	)

	// QueryFetchesDeduplicated counts fetch requests that joined an in-flight fetch
	QueryFetchesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castwave_query_fetches_deduplicated_total",
			Help: "Total number of fetch requests served by an in-flight fetch",
		},
	)

	// QueryInvalidations counts invalidated keys
	QueryInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_query_invalidations_total",
			Help: "Total number of invalidated query keys",
		},
		[]string{"refetch"}, // refetch: true, false
	)

	// QueryRecords tracks the number of records held by the store
	QueryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "castwave_query_records",
			Help: "Number of records held by the query store",
		},
	)

	// QueryEvictions counts evicted records
	QueryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castwave_query_evictions_total",
			Help: "Total number of evicted query records",
		},
	)

	// QuerySetData counts local writes
	QuerySetData = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "castwave_query_set_data_total",
			Help: "Total number of local writes to the query store",
		},
	)

	// PagesFetched counts pages appended to paginated queries
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_pages_fetched_total",
			Help: "Total number of pages fetched for paginated queries",
		},
		[]string{"status"},
	)

	// MutationsTotal counts mutations
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_mutations_total",
			Help: "Total number of mutations sent",
		},
		[]string{"method", "status"}, // status: success, failure
	)

	// MutationDuration measures mutation round trip time in seconds
	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castwave_mutation_duration_seconds",
			Help:    "Mutation round trip time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method"},
	)

	// RefreshRuns counts scheduled refresh runs
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_refresh_runs_total",
			Help: "Total number of scheduled refresh runs",
		},
		[]string{"schedule"},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castwave_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordFetch records a settled query fetch
func RecordFetch(status string, duration float64) {
	QueryFetchesTotal.WithLabelValues(status).Inc()
	QueryFetchDuration.WithLabelValues(status).Observe(duration)
}

// RecordFetchDeduplicated records a fetch request joining an in-flight fetch
func RecordFetchDeduplicated() {
	QueryFetchesDeduplicated.Inc()
}

// RecordInvalidation records an invalidated key
func RecordInvalidation(refetch bool) {
	if refetch {
		QueryInvalidations.WithLabelValues("true").Inc()
		return
	}

	QueryInvalidations.WithLabelValues("false").Inc()
}

// SetRecordCount sets the number of records held by the store
func SetRecordCount(n int) {
	QueryRecords.Set(float64(n))
}

// RecordEvictions records evicted records
func RecordEvictions(n int) {
	QueryEvictions.Add(float64(n))
}

// RecordSetData records a local write
func RecordSetData() {
	QuerySetData.Inc()
}

// RecordPage records a page fetch
func RecordPage(status string) {
	PagesFetched.WithLabelValues(status).Inc()
}

// RecordMutation records a completed mutation
func RecordMutation(method, status string, duration float64) {
	MutationsTotal.WithLabelValues(method, status).Inc()
	MutationDuration.WithLabelValues(method).Observe(duration)
}

// RecordRefresh records a scheduled refresh run
func RecordRefresh(schedule string) {
	RefreshRuns.WithLabelValues(schedule).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
