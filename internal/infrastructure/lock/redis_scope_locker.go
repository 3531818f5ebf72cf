// Package lock provides a ScopeLocker shared by several ledger instances
// through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultKeyPrefix namespaces scope keys in a shared Redis
	DefaultKeyPrefix = "ledger:scope:"
	defaultRetryStep = 25 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// RedisScopeLocker serialises scopes across processes with bsm/redislock.
// Unlike the advisory lock it is not tied to the transaction: the owner must
// call release after commit or rollback, and the TTL has to outlive the
// transaction or the scope opens early.
type RedisScopeLocker struct {
	client    *redislock.Client
	ttl       time.Duration
	timeout   time.Duration
	retryStep time.Duration
	keyPrefix string
	metrics   *telemetry.LedgerMetrics
}

// Option configures a RedisScopeLocker
type Option func(*RedisScopeLocker)

// WithKeyPrefix overrides DefaultKeyPrefix
func WithKeyPrefix(prefix string) Option {
	return func(l *RedisScopeLocker) { l.keyPrefix = prefix }
}

// WithRetryStep sets the pause between attempts while the scope is taken
func WithRetryStep(step time.Duration) Option {
	return func(l *RedisScopeLocker) {
		if step > 0 {
			l.retryStep = step
		}
	}
}

// NewRedisScopeLocker creates a locker using LockTTL and LockTimeout from cfg
func NewRedisScopeLocker(client redislock.RedisClient, cfg config.LedgerConfig, metrics *telemetry.LedgerMetrics, opts ...Option) *RedisScopeLocker {
	l := &RedisScopeLocker{
		client:    redislock.New(client),
		ttl:       cfg.LockTTL,
		timeout:   cfg.LockTimeout,
		retryStep: defaultRetryStep,
		keyPrefix: DefaultKeyPrefix,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains the scope, retrying until LockTimeout. Contention past the
// timeout is reported as shared.ErrLockTimeout.
func (l *RedisScopeLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	obtainCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		obtainCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	lk, err := l.client.Obtain(obtainCtx, l.keyPrefix+scope, l.ttl, &redislock.Options{
		RetryStrategy: l.retryStrategy(),
	})
	wait := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isContention(obtainCtx, err) {
			persistence.ObserveLockWait(ctx, l.metrics, config.LockBackendRedis, scope, wait, true)
			return nil, fmt.Errorf("failed to lock %s: %w", scope, shared.ErrLockTimeout)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", scope, err)
	}
	persistence.ObserveLockWait(ctx, l.metrics, config.LockBackendRedis, scope, wait, false)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(ctx, scope, lk) })
	}, nil
}

func (l *RedisScopeLocker) release(ctx context.Context, scope string, lk *redislock.Lock) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	switch err := lk.Release(rctx); {
	case err == nil:
	case errors.Is(err, redislock.ErrLockNotHeld):
		logger.L(ctx).Warn("Scope lock expired before release", zap.String("scope", scope), zap.Duration("ttl", l.ttl))
	default:
		// the key expires with its TTL
		logger.L(ctx).Error("Failed to release scope lock", zap.String("scope", scope), zap.Error(err))
	}
}

// retryStrategy polls every retryStep; the obtain deadline bounds the total wait
func (l *RedisScopeLocker) retryStrategy() redislock.RetryStrategy {
	if l.timeout <= 0 {
		return redislock.NoRetry()
	}
	return redislock.LinearBackoff(l.retryStep)
}

// isContention reports whether err means the scope stayed taken until the
// obtain deadline. Network failures match context.DeadlineExceeded on dial
// timeouts and are passed through instead.
func isContention(obtainCtx context.Context, err error) bool {
	if errors.Is(err, redislock.ErrNotObtained) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return false
	}
	return obtainCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded)
}

var _ shared.ScopeLocker = (*RedisScopeLocker)(nil)
