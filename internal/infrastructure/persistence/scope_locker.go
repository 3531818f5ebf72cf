package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// slowLockWait is the wait above which an acquired lock is logged
const slowLockWait = 500 * time.Millisecond

// ErrNoTransaction is returned when a transaction-scoped lock is requested
// outside a transaction
var ErrNoTransaction = errors.New("scope lock requires a transaction in context")

func lockOperation(scope string) string {
	if i := strings.IndexByte(scope, ':'); i > 0 {
		return scope[:i]
	}
	return scope
}

// ObserveLockWait records a lock wait and logs timeouts and slow acquisitions
func ObserveLockWait(ctx context.Context, metrics *telemetry.LedgerMetrics, backend, scope string, wait time.Duration, timedOut bool) {
	metrics.RecordLockWait(ctx, backend, lockOperation(scope), wait, timedOut)
	switch {
	case timedOut:
		logger.L(ctx).Warn("Timed out waiting for scope lock",
			zap.String("scope", scope), zap.String("backend", backend), zap.Duration("wait", wait))
	case wait > slowLockWait:
		logger.L(ctx).Warn("Slow scope lock acquisition",
			zap.String("scope", scope), zap.String("backend", backend), zap.Duration("wait", wait))
	}
}

// AdvisoryScopeLocker serialises scopes with PostgreSQL transaction-level
// advisory locks. The lock is released by commit or rollback; the returned
// release func is a no-op. Waits are bounded by the transaction's lock_timeout.
type AdvisoryScopeLocker struct {
	db      *gorm.DB
	metrics *telemetry.LedgerMetrics
}

// NewAdvisoryScopeLocker creates an AdvisoryScopeLocker
func NewAdvisoryScopeLocker(db *gorm.DB, metrics *telemetry.LedgerMetrics) *AdvisoryScopeLocker {
	return &AdvisoryScopeLocker{db: db, metrics: metrics}
}

// Acquire blocks until the advisory lock for scope is held by the current transaction
func (l *AdvisoryScopeLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	if !InTransaction(ctx) {
		return nil, ErrNoTransaction
	}
	start := time.Now()
	err := Conn(ctx, l.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", scope).Error
	wait := time.Since(start)
	if err != nil {
		mapped := MapError(err)
		ObserveLockWait(ctx, l.metrics, config.LockBackendPostgres, scope, wait, shared.IsRetryable(mapped))
		return nil, fmt.Errorf("failed to lock %s: %w", scope, mapped)
	}
	ObserveLockWait(ctx, l.metrics, config.LockBackendPostgres, scope, wait, false)
	return func() {}, nil
}

// LocalScopeLocker serialises scopes with in-process mutexes. It only
// protects a single process and is meant for SQLite and tests.
type LocalScopeLocker struct {
	mu      sync.Mutex
	locks   map[string]*localLock
	timeout time.Duration
	metrics *telemetry.LedgerMetrics
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalScopeLocker creates a LocalScopeLocker. A positive timeout bounds
// how long Acquire waits.
func NewLocalScopeLocker(timeout time.Duration, metrics *telemetry.LedgerMetrics) *LocalScopeLocker {
	return &LocalScopeLocker{
		locks:   make(map[string]*localLock),
		timeout: timeout,
		metrics: metrics,
	}
}

// Acquire blocks until scope is free, ctx is done or the timeout passes
func (l *LocalScopeLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[scope]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[scope] = lk
	}
	lk.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	start := time.Now()
	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(scope, lk)
		return nil, ctx.Err()
	case <-timeout:
		l.unref(scope, lk)
		ObserveLockWait(ctx, l.metrics, config.LockBackendLocal, scope, time.Since(start), true)
		return nil, fmt.Errorf("failed to lock %s: %w", scope, shared.ErrLockTimeout)
	}
	ObserveLockWait(ctx, l.metrics, config.LockBackendLocal, scope, time.Since(start), false)

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.unref(scope, lk)
		})
	}, nil
}

func (l *LocalScopeLocker) unref(scope string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, scope)
	}
}

// held returns the number of scopes with holders or waiters
func (l *LocalScopeLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var (
	_ shared.ScopeLocker = (*AdvisoryScopeLocker)(nil)
	_ shared.ScopeLocker = (*LocalScopeLocker)(nil)
)
