package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantLedgerSettingsModel stores a tenant's override of the payment tolerance
type TenantLedgerSettingsModel struct {
	TenantID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	TolerancePercentage decimal.Decimal `gorm:"type:decimal(9,6);not null"`
	ToleranceMaxAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UpdatedAt           time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantLedgerSettingsModel) TableName() string {
	return "tenant_ledger_settings"
}

// ToDomain converts the persistence model to domain ToleranceSettings
func (m *TenantLedgerSettingsModel) ToDomain() *payment.ToleranceSettings {
	return &payment.ToleranceSettings{
		TenantID:   m.TenantID,
		Percentage: m.TolerancePercentage.Round(6),
		MaxAmount:  stored(m.ToleranceMaxAmount),
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from domain ToleranceSettings
func (m *TenantLedgerSettingsModel) FromDomain(s *payment.ToleranceSettings) {
	m.TenantID = s.TenantID
	m.TolerancePercentage = s.Percentage
	m.ToleranceMaxAmount = s.MaxAmount
	m.UpdatedAt = s.UpdatedAt
}
