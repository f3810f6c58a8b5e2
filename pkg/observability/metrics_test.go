package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	fetches := testutil.ToFloat64(QueryFetchesTotal.WithLabelValues("success"))
	RecordFetch("success", 0.01)
	assert.InDelta(t, fetches+1, testutil.ToFloat64(QueryFetchesTotal.WithLabelValues("success")), 0.001)

	refetched := testutil.ToFloat64(QueryInvalidations.WithLabelValues("true"))
	idle := testutil.ToFloat64(QueryInvalidations.WithLabelValues("false"))
	RecordInvalidation(true)
	RecordInvalidation(false)
	RecordInvalidation(false)
	assert.InDelta(t, refetched+1, testutil.ToFloat64(QueryInvalidations.WithLabelValues("true")), 0.001)
	assert.InDelta(t, idle+2, testutil.ToFloat64(QueryInvalidations.WithLabelValues("false")), 0.001)

	SetRecordCount(7)
	assert.InDelta(t, 7, testutil.ToFloat64(QueryRecords), 0.001)

	evictions := testutil.ToFloat64(QueryEvictions)
	RecordEvictions(3)
	assert.InDelta(t, evictions+3, testutil.ToFloat64(QueryEvictions), 0.001)

	mutations := testutil.ToFloat64(MutationsTotal.WithLabelValues("POST", "failure"))
	RecordMutation("POST", "failure", 0.2)
	assert.InDelta(t, mutations+1, testutil.ToFloat64(MutationsTotal.WithLabelValues("POST", "failure")), 0.001)
}

func TestMetricsServerEmptyAddr(t *testing.T) {
	StartMetricsServer("")
	require.NoError(t, StopMetricsServer(context.Background()))
}
