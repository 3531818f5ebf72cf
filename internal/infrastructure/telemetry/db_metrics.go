package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AttrPoolState labels db_pool_connections by in_use or idle.
var AttrPoolState = attribute.Key("state")

// DBPoolMetrics exports database/sql pool statistics as observable
// instruments. Values are read on each collection; nothing is polled.
type DBPoolMetrics struct {
	registration metric.Registration
}

// NewDBPoolMetrics registers pool instruments on meter, reading stats
// from the given source at collection time.
func NewDBPoolMetrics(meter metric.Meter, stats func() sql.DBStats) (*DBPoolMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge db_pool_connections: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge db_pool_connections_max: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connection requests that had to wait"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter db_pool_wait_total: %w", err)
	}
	waitTime, err := meter.Float64ObservableCounter("db_pool_wait_seconds_total",
		metric.WithDescription("Total time spent waiting for a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter db_pool_wait_seconds_total: %w", err)
	}

	inUse := metric.WithAttributes(AttrPoolState.String("in_use"))
	idle := metric.WithAttributes(AttrPoolState.String("idle"))

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(connections, int64(s.InUse), inUse)
		o.ObserveInt64(connections, int64(s.Idle), idle)
		o.ObserveInt64(maxOpen, int64(s.MaxOpenConnections))
		o.ObserveInt64(waits, s.WaitCount)
		o.ObserveFloat64(waitTime, s.WaitDuration.Seconds())
		return nil
	}, connections, maxOpen, waits, waitTime)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool metrics callback: %w", err)
	}
	return &DBPoolMetrics{registration: reg}, nil
}

// Stop unregisters the callback.
func (m *DBPoolMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
