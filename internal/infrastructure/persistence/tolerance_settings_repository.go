package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormToleranceSettingsRepository stores tenant tolerance overrides
type GormToleranceSettingsRepository struct {
	db *gorm.DB
}

// NewGormToleranceSettingsRepository creates a new GormToleranceSettingsRepository
func NewGormToleranceSettingsRepository(db *gorm.DB) *GormToleranceSettingsRepository {
	return &GormToleranceSettingsRepository{db: db}
}

// FindByTenant returns the tenant's settings, or nil when it uses the defaults
func (r *GormToleranceSettingsRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*payment.ToleranceSettings, error) {
	var model models.TenantLedgerSettingsModel
	if err := Conn(ctx, r.db).Where("tenant_id = ?", tenantID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tolerance settings: %w", err)
	}
	return model.ToDomain(), nil
}

// Save upserts the tenant's settings
func (r *GormToleranceSettingsRepository) Save(ctx context.Context, settings *payment.ToleranceSettings) error {
	var model models.TenantLedgerSettingsModel
	model.FromDomain(settings)
	if err := Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tolerance_percentage", "tolerance_max_amount", "updated_at"}),
		}).
		Create(&model).Error; err != nil {
		return fmt.Errorf("failed to save tolerance settings: %w", err)
	}
	return nil
}

var _ payment.ToleranceSettingsRepository = (*GormToleranceSettingsRepository)(nil)
