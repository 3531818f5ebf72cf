package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository stores outbox entries through GORM. Writes join the
// transaction carried by ctx. Relay reads span all tenants.
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save inserts the entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.OutboxEntryModelFromDomain(e))
	}
	if err := persistence.Conn(ctx, r.db).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save outbox entries: %w", err)
	}
	return nil
}

// FindDeliverable returns pending and failed entries of every tenant, oldest
// first. On PostgreSQL the rows are claimed with FOR UPDATE SKIP LOCKED so
// concurrent relays split the backlog.
func (r *GormOutboxRepository) FindDeliverable(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := tenant.CrossTenant(persistence.Conn(ctx, r.db)).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status IN ?", []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find deliverable outbox entries: %w", err)
	}

	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Update persists delivery state
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	result := persistence.Conn(ctx, r.db).
		Model(&models.OutboxEntryModel{}).
		Where("tenant_id = ? AND id = ?", entry.TenantID, entry.ID).
		Updates(map[string]any{
			"status":       entry.Status,
			"retry_count":  entry.RetryCount,
			"last_error":   entry.LastError,
			"processed_at": entry.ProcessedAt,
			"updated_at":   entry.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update outbox entry %s: %w", entry.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("OUTBOX_ENTRY", entry.ID)
	}
	return nil
}

// DeleteSentBefore purges delivered entries processed before the cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := tenant.CrossTenant(persistence.Conn(ctx, r.db)).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RequeueDead resets dead entries of every tenant for another delivery round
func (r *GormOutboxRepository) RequeueDead(ctx context.Context) (int64, error) {
	result := tenant.CrossTenant(persistence.Conn(ctx, r.db)).
		Model(&models.OutboxEntryModel{}).
		Where("status = ?", shared.OutboxStatusDead).
		Updates(map[string]any{
			"status":      shared.OutboxStatusPending,
			"retry_count": 0,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue dead outbox entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByStatus returns the number of entries per status across tenants
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := tenant.CrossTenant(persistence.Conn(ctx, r.db)).
		Model(&models.OutboxEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, c := range results {
		counts[c.Status] = c.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
