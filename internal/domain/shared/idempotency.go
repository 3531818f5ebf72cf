package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which event deliveries were already handled.
// The outbox relay delivers at least once; consumers use this to act once.
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL and reports whether it was new
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Forget drops key so the next delivery is handled again
	Forget(ctx context.Context, key string) error
	Close() error
}
