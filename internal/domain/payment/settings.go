package payment

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ToleranceSettings is a tenant's override of the system tolerance defaults
type ToleranceSettings struct {
	TenantID   uuid.UUID
	Percentage decimal.Decimal
	MaxAmount  decimal.Decimal
	UpdatedAt  time.Time
}

// NewToleranceSettings validates and creates tenant tolerance settings
func NewToleranceSettings(tenantID uuid.UUID, percentage, maxAmount decimal.Decimal) (*ToleranceSettings, error) {
	policy := strategy.TolerancePolicy{Percentage: percentage, MaxAmount: maxAmount}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &ToleranceSettings{
		TenantID:   tenantID,
		Percentage: percentage,
		MaxAmount:  maxAmount,
		UpdatedAt:  time.Now(),
	}, nil
}

// Policy converts the settings into a tolerance policy
func (s *ToleranceSettings) Policy() strategy.TolerancePolicy {
	return strategy.TolerancePolicy{Percentage: s.Percentage, MaxAmount: s.MaxAmount}
}
