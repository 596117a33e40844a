package promadapters_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entitykit/entity-lifecycle-go/eventlog/promadapters"
)

func Test_RecordDuration_ObservesSeconds_OnHistogram(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)
	labels := map[string]string{"operation": "read", "status": "success"}

	// act
	collector.RecordDuration("eventlog_read_duration_seconds", 250*time.Millisecond, labels)
	collector.RecordDuration("eventlog_read_duration_seconds", 750*time.Millisecond, labels)

	// assert
	count, err := testutil.GatherAndCount(registry, "eventlog_read_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_IncrementCounter_CountsPerLabelSet(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.IncrementCounter("eventlog_events_appended_total", map[string]string{"operation": "append"})
	collector.IncrementCounter("eventlog_events_appended_total", map[string]string{"operation": "append"})

	// assert
	gathered, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, gathered, 1)
	assert.Equal(t, "eventlog_events_appended_total", gathered[0].GetName())
	require.Len(t, gathered[0].GetMetric(), 1)
	assert.Equal(t, float64(2), gathered[0].GetMetric()[0].GetCounter().GetValue())
}

func Test_RecordValue_SetsGauge(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := promadapters.NewMetricsCollector(registry)

	// act
	collector.RecordValue("controller_live_instances", 3, map[string]string{"entity_type": "CustomerProfile"})
	collector.RecordValue("controller_live_instances", 5, map[string]string{"entity_type": "CustomerProfile"})

	// assert
	gathered, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, gathered, 1)
	require.Len(t, gathered[0].GetMetric(), 1)
	assert.Equal(t, float64(5), gathered[0].GetMetric()[0].GetGauge().GetValue())
}

func Test_Collector_SkipsMetric_WhenRegistrationConflicts(t *testing.T) {
	// arrange - a metric with the same name but a different shape is already registered
	registry := prometheus.NewRegistry()
	preexisting := prometheus.NewCounter(prometheus.CounterOpts{Name: "eventlog_errors_total"})
	require.NoError(t, registry.Register(preexisting))

	collector := promadapters.NewMetricsCollector(registry)

	// act + assert - observation is dropped, no panic
	collector.IncrementCounter("eventlog_errors_total", map[string]string{"operation": "append"})
}
