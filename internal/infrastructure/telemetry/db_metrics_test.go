package telemetry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDBPoolMetrics_ObservesStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	stats := sql.DBStats{
		MaxOpenConnections: 25,
		InUse:              3,
		Idle:               2,
		WaitCount:          7,
		WaitDuration:       1500 * time.Millisecond,
	}
	m, err := NewDBPoolMetrics(provider.Meter("ledger-test"), func() sql.DBStats { return stats })
	require.NoError(t, err)

	metrics := collect(t, reader)

	conns, ok := metrics["db_pool_connections"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	byState := map[string]int64{}
	for _, dp := range conns.DataPoints {
		state, _ := dp.Attributes.Value(AttrPoolState)
		byState[state.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"in_use": 3, "idle": 2}, byState)

	maxOpen, ok := metrics["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(25), maxOpen.DataPoints[0].Value)

	waits, ok := metrics["db_pool_wait_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(7), waits.DataPoints[0].Value)

	waitTime, ok := metrics["db_pool_wait_seconds_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	assert.InDelta(t, 1.5, waitTime.DataPoints[0].Value, 0.0001)

	require.NoError(t, m.Stop())
}

func TestNewDBPoolMetrics_NilMeter(t *testing.T) {
	_, err := NewDBPoolMetrics(nil, func() sql.DBStats { return sql.DBStats{} })
	assert.ErrorIs(t, err, ErrMeterNil)

	var m *DBPoolMetrics
	assert.NoError(t, m.Stop())
}
