package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("ledger"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func newManualMeter(t *testing.T) (*sdkmetric.ManualReader, *LedgerMetrics) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewLedgerMetrics(provider.Meter("ledger-test"))
	require.NoError(t, err)
	return reader, m
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestLedgerMetrics_Record(t *testing.T) {
	reader, m := newManualMeter(t)
	ctx := context.Background()

	m.RecordPosted(ctx, "invoice")
	m.RecordPosted(ctx, "invoice")
	m.RecordCancelled(ctx, "credit_note")
	m.RecordApplied(ctx, "fifo", "EUR", "customer_advance", decimal.RequireFromString("1190.00"))
	m.RecordWriteoff(ctx, "overpayment", "EUR", decimal.RequireFromString("0.05"))
	m.RecordLockWait(ctx, "local", "post", 20*time.Millisecond, false)
	m.RecordLockWait(ctx, "local", "post", 5*time.Second, true)

	metrics := collect(t, reader)

	posted, ok := metrics["ledger_documents_posted_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, posted.DataPoints, 1)
	assert.Equal(t, int64(2), posted.DataPoints[0].Value)

	allocated, ok := metrics["ledger_amount_allocated_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	assert.InDelta(t, 1190.0, allocated.DataPoints[0].Value, 0.001)

	timeouts, ok := metrics["ledger_scope_lock_timeouts_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), timeouts.DataPoints[0].Value)

	wait, ok := metrics["ledger_scope_lock_wait_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(2), wait.DataPoints[0].Count)
}

func TestLedgerMetrics_NilIsNoop(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.RecordPosted(context.Background(), "invoice")
		m.RecordLockWait(context.Background(), "redis", "apply", time.Second, true)
	})
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	_, err := NewLedgerMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}
