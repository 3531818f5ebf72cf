package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxService exposes outbox maintenance to operators
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		repo:   repo,
		logger: logger,
	}
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dead    int64 `json:"dead"`
	Total   int64 `json:"total"`
}

// Backlog is the number of entries still waiting for delivery
func (s OutboxStatsDTO) Backlog() int64 {
	return s.Pending + s.Failed
}

// GetStats returns outbox statistics across tenants
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, fmt.Errorf("failed to get outbox stats: %w", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending: counts[shared.OutboxStatusPending],
		Sent:    counts[shared.OutboxStatusSent],
		Failed:  counts[shared.OutboxStatusFailed],
		Dead:    counts[shared.OutboxStatusDead],
		Total:   total,
	}, nil
}

// RequeueDeadEntries gives every dead letter entry a fresh retry budget
func (s *OutboxService) RequeueDeadEntries(ctx context.Context) (int64, error) {
	count, err := s.repo.RequeueDead(ctx)
	if err != nil {
		s.logger.Error("Failed to requeue dead letter entries", zap.Error(err))
		return 0, fmt.Errorf("failed to requeue dead letter entries: %w", err)
	}

	s.logger.Info("Requeued dead letter entries", zap.Int64("count", count))
	return count, nil
}

// PurgeDelivered deletes entries delivered longer than retention ago
func (s *OutboxService) PurgeDelivered(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}
	cutoff := time.Now().Add(-retention)
	count, err := s.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to purge delivered outbox entries", zap.Error(err))
		return 0, fmt.Errorf("failed to purge outbox: %w", err)
	}

	s.logger.Info("Purged delivered outbox entries",
		zap.Int64("count", count),
		zap.Time("cutoff", cutoff),
	)
	return count, nil
}
