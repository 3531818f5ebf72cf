package cache

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the store configured by event.idempotency_store.
// The redis backend needs a client; a nil client is a configuration error
// rather than a silent fallback, since in-memory records are not shared.
func NewIdempotencyStore(cfg config.EventConfig, client *redis.Client, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.IdempotencyStore {
	case config.IdempotencyStoreRedis:
		if client == nil {
			return nil, fmt.Errorf("event.idempotency_store=redis requires a Redis client")
		}
		logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), nil
	case config.IdempotencyStoreMemory, "":
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", cfg.IdempotencyStore)
	}
}
