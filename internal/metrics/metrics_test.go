package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordGatekeeperAndLayers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordGatekeeper("chat_topic", "u1", time.Second, nil)
	m.RecordGatekeeper("chat_topic", "u1", time.Second, errors.New("boom"))
	m.RecordLayer("context", "chat_topic", "u1", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatekeeperCalls.WithLabelValues("chat_topic", StatusSuccess, "u1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatekeeperCalls.WithLabelValues("chat_topic", StatusError, "u1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayerCalls.WithLabelValues("context", "chat_topic", StatusSuccess, "u1")))
}

func TestMetrics_RecordReembedRow(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordReembedRow("contexts", "succeeded")
	m.RecordReembedRow("contexts", "succeeded")
	m.RecordReembedRow("contexts", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReembedRows.WithLabelValues("contexts", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReembedRows.WithLabelValues("contexts", "failed")))
}

func TestMetrics_RegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordSource("chat_topic", "u1", SourceCompleted, time.Second)
	m.RecordLayerEntries("identity", "chat_topic", "u1", 2)
	m.RecordHTTP("GET", "/health/live", "200", time.Millisecond)

	count, err := testutil.GatherAndCount(reg,
		"memory_processed_sources_total",
		"memory_layer_entries",
		"memory_http_requests_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Panics(t, func() { New(reg) }, "registering twice must fail")
}
