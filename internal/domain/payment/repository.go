package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByIDForTenant returns nil, nil when the payment does not exist
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// FindByIDForUpdate is FindByIDForTenant with a row lock held until commit
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// Create inserts a new payment
	Create(ctx context.Context, p *Payment) error

	// SaveWithLock updates a payment guarded by its version and bumps the version
	SaveWithLock(ctx context.Context, p *Payment) error

	// CreateAllocations inserts allocation rows
	CreateAllocations(ctx context.Context, allocations []*PaymentAllocation) error

	// FindAllocationsByPayment lists a payment's allocations
	FindAllocationsByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]*PaymentAllocation, error)

	// FindAllocationsByDocument lists the allocations made to a document
	FindAllocationsByDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*PaymentAllocation, error)

	// SumAllocatedToDocument sums amount + underpayment write-offs over a document's allocations
	SumAllocatedToDocument(ctx context.Context, tenantID, documentID uuid.UUID) (decimal.Decimal, error)
}

// ToleranceSettingsRepository supplies tenant-level tolerance configuration
type ToleranceSettingsRepository interface {
	// FindByTenant returns nil, nil when the tenant has no override
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ToleranceSettings, error)
	Save(ctx context.Context, settings *ToleranceSettings) error
}

// PartnerLockKey returns the name used to serialise allocations for one partner
func PartnerLockKey(tenantID, partnerID uuid.UUID) string {
	return "alloc:" + tenantID.String() + ":" + partnerID.String()
}
