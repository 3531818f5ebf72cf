package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) findOne(db *gorm.DB, tenantID, id uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", id, MapError(err))
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a payment by ID for a specific tenant
func (r *GormPaymentRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return r.findOne(Conn(ctx, r.db), tenantID, id)
}

// FindByIDForUpdate finds a payment and locks its row until commit
func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return r.findOne(Conn(ctx, r.db).Clauses(forUpdate), tenantID, id)
}

// Create inserts a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if err := Conn(ctx, r.db).Create(models.PaymentModelFromDomain(p)).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", MapError(err))
	}
	return nil
}

// SaveWithLock saves a payment guarded by its version
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, p *payment.Payment) error {
	currentVersion := p.Version
	p.Version++

	result := Conn(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", p.TenantID, p.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(models.PaymentModelFromDomain(p))
	if result.Error != nil {
		p.Version = currentVersion
		return fmt.Errorf("failed to save payment %s: %w", p.ID, MapError(result.Error))
	}
	if result.RowsAffected == 0 {
		p.Version = currentVersion
		return shared.NewConcurrencyError("CONCURRENT_MODIFICATION", "The payment has been modified by another process")
	}
	return nil
}

// CreateAllocations inserts allocation rows
func (r *GormPaymentRepository) CreateAllocations(ctx context.Context, allocations []*payment.PaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	rows := make([]*models.PaymentAllocationModel, len(allocations))
	for i, a := range allocations {
		rows[i] = models.PaymentAllocationModelFromDomain(a)
	}
	if err := Conn(ctx, r.db).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to create allocations: %w", MapError(err))
	}
	return nil
}

func (r *GormPaymentRepository) findAllocations(ctx context.Context, column string, tenantID, id uuid.UUID) ([]*payment.PaymentAllocation, error) {
	var rows []models.PaymentAllocationModel
	if err := Conn(ctx, r.db).
		Where(clause.Eq{Column: clause.Column{Name: "tenant_id"}, Value: tenantID}).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: id}).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	out := make([]*payment.PaymentAllocation, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindAllocationsByPayment lists a payment's allocations
func (r *GormPaymentRepository) FindAllocationsByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]*payment.PaymentAllocation, error) {
	return r.findAllocations(ctx, "payment_id", tenantID, paymentID)
}

// FindAllocationsByDocument lists the allocations made to a document
func (r *GormPaymentRepository) FindAllocationsByDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*payment.PaymentAllocation, error) {
	return r.findAllocations(ctx, "document_id", tenantID, documentID)
}

// SumAllocatedToDocument sums what the allocations settled on a document
func (r *GormPaymentRepository) SumAllocatedToDocument(ctx context.Context, tenantID, documentID uuid.UUID) (decimal.Decimal, error) {
	allocations, err := r.FindAllocationsByDocument(ctx, tenantID, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.SettledAmount())
	}
	return sum, nil
}

var _ payment.PaymentRepository = (*GormPaymentRepository)(nil)
