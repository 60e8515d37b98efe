package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveNodeProcessing(t *testing.T) {
	before := testutil.ToFloat64(NodeMessagesTotal.WithLabelValues("p-metrics", "A", "ok"))
	ObserveNodeProcessing("p-metrics", "A", "ok", 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(NodeMessagesTotal.WithLabelValues("p-metrics", "A", "ok")))
}

func TestDirectoryHelpers(t *testing.T) {
	SetDirectoryEntries("PIPELINE", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(DirectoryEntries.WithLabelValues("PIPELINE")))

	RecordDirectoryOperation("register", "PIPELINE", "DUPLICATE_ID")
	assert.Equal(t, float64(1), testutil.ToFloat64(DirectoryOperationsTotal.WithLabelValues("register", "PIPELINE", "DUPLICATE_ID")))
}

func TestAddDispatchCacheHits(t *testing.T) {
	AddDispatchCacheHits("r-metrics", 2)
	AddDispatchCacheHits("r-metrics", 0)
	assert.Equal(t, float64(2), testutil.ToFloat64(DispatchCacheHitsTotal.WithLabelValues("r-metrics")))
}
