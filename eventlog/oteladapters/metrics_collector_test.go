package oteladapters_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/entitykit/entity-lifecycle-go/eventlog/oteladapters"
)

func Test_IncrementCounter_AccumulatesCount(t *testing.T) {
	// arrange
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	collector := oteladapters.NewMetricsCollector(meter)
	labels := map[string]string{"operation": "append", "status": "success"}

	// act
	collector.IncrementCounter("eventlog_append_total", labels)
	collector.IncrementCounter("eventlog_append_total", labels)

	// assert
	assert.Equal(t, int64(2), counterSum(t, reader, "eventlog_append_total"))
}

func Test_RecordMetrics_AreSafe_WhenCalledConcurrently(t *testing.T) {
	// arrange
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	collector := oteladapters.NewMetricsCollector(meter)

	const workers = 8
	const incrementsPerWorker = 100

	// act
	// Each worker also records under a worker-specific name so new
	// instruments are created while other workers are recording.
	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			durationMetric := fmt.Sprintf("eventlog_worker_%d_duration_seconds", worker)
			gaugeMetric := fmt.Sprintf("eventlog_worker_%d_batch_size", worker)

			for i := 0; i < incrementsPerWorker; i++ {
				collector.IncrementCounter("eventlog_append_total", map[string]string{"status": "success"})
				collector.RecordDuration(durationMetric, time.Millisecond, nil)
				collector.RecordValue(gaugeMetric, 3, nil)
			}
		}(worker)
	}
	wg.Wait()

	// assert
	assert.Equal(t, int64(workers*incrementsPerWorker), counterSum(t, reader, "eventlog_append_total"))
}

func counterSum(t *testing.T, reader *sdkmetric.ManualReader, metricName string) int64 {
	t.Helper()

	var collected metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &collected))

	var total int64
	for _, scope := range collected.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != metricName {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}

	return total
}
