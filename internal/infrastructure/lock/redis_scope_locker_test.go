package lock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisTestClient connects to LEDGER_TEST_REDIS_HOST or skips
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	host := os.Getenv("LEDGER_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("LEDGER_TEST_REDIS_HOST not set")
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:6379", host), DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testLedgerConfig(timeout time.Duration) config.LedgerConfig {
	return config.LedgerConfig{LockTimeout: timeout, LockTTL: 10 * time.Second}
}

func TestRedisScopeLocker_RetryStrategy(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	noWait := NewRedisScopeLocker(client, testLedgerConfig(0), nil)
	assert.Equal(t, time.Duration(0), noWait.retryStrategy().NextBackoff())

	waiting := NewRedisScopeLocker(client, testLedgerConfig(time.Second), nil, WithRetryStep(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, waiting.retryStrategy().NextBackoff())
}

func TestIsContention(t *testing.T) {
	live := context.Background()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	dialTimeout := &net.OpError{Op: "dial", Net: "tcp", Err: context.DeadlineExceeded}

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"not obtained", live, redislock.ErrNotObtained, true},
		{"deadline hit while waiting", expired, fmt.Errorf("obtain: %w", context.DeadlineExceeded), true},
		{"deadline error before the obtain deadline", live, context.DeadlineExceeded, false},
		{"dial timeout", live, dialTimeout, false},
		{"dial timeout after the obtain deadline", expired, fmt.Errorf("obtain: %w", dialTimeout), false},
		{"connection refused", live, errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isContention(tt.ctx, tt.err))
		})
	}
}

func TestRedisScopeLocker_ConnectionErrorIsNotATimeout(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisScopeLocker(client, testLedgerConfig(0), nil)

	_, err := locker.Acquire(context.Background(), "chain:t:c:invoice")
	require.Error(t, err)
	assert.False(t, shared.IsRetryable(err))
}

func TestRedisScopeLocker_SerialisesScope(t *testing.T) {
	client := redisTestClient(t)
	locker := NewRedisScopeLocker(client, testLedgerConfig(5*time.Second), nil,
		WithKeyPrefix("ledger:test:"+uuid.NewString()+":"), WithRetryStep(5*time.Millisecond))

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "chain:t:c:invoice")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisScopeLocker_TimesOut(t *testing.T) {
	client := redisTestClient(t)
	prefix := WithKeyPrefix("ledger:test:" + uuid.NewString() + ":")
	holder := NewRedisScopeLocker(client, testLedgerConfig(time.Second), nil, prefix)
	waiter := NewRedisScopeLocker(client, testLedgerConfig(50*time.Millisecond), nil, prefix)

	release, err := holder.Acquire(context.Background(), "partner:t:p")
	require.NoError(t, err)
	defer release()

	_, err = waiter.Acquire(context.Background(), "partner:t:p")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrLockTimeout)

	other, err := waiter.Acquire(context.Background(), "partner:t:q")
	require.NoError(t, err, "different scopes never block each other")
	other()
}

func TestRedisScopeLocker_ReleaseIsIdempotent(t *testing.T) {
	client := redisTestClient(t)
	locker := NewRedisScopeLocker(client, testLedgerConfig(time.Second), nil, WithKeyPrefix("ledger:test:"+uuid.NewString()+":"))

	release, err := locker.Acquire(context.Background(), "chain:x")
	require.NoError(t, err)
	release()
	release()

	again, err := locker.Acquire(context.Background(), "chain:x")
	require.NoError(t, err)
	again()
}
