package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for the Payment aggregate root
type PaymentModel struct {
	CompanyAggregateModel
	PartnerID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	PaymentMethodID uuid.UUID             `gorm:"type:uuid;not null"`
	RepositoryID    uuid.UUID             `gorm:"type:uuid;not null"`
	Amount          decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Currency        string                `gorm:"type:varchar(3);not null"`
	PaymentDate     time.Time             `gorm:"type:date;not null"`
	Status          payment.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	PaymentType     payment.PaymentType   `gorm:"type:varchar(20);not null"`
	Reference       string                `gorm:"type:varchar(100)"`
	AllocatedAt     *time.Time
	VoidedAt        *time.Time
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		CompanyAggregateRoot: m.ToDomainCompanyAggregateRoot(),
		PartnerID:            m.PartnerID,
		PaymentMethodID:      m.PaymentMethodID,
		RepositoryID:         m.RepositoryID,
		Amount:               stored(m.Amount),
		Currency:             m.Currency,
		PaymentDate:          m.PaymentDate,
		Status:               m.Status,
		PaymentType:          m.PaymentType,
		Reference:            m.Reference,
		AllocatedAt:          m.AllocatedAt,
		VoidedAt:             m.VoidedAt,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *payment.Payment) {
	m.FromDomainCompanyAggregateRoot(p.CompanyAggregateRoot)
	m.PartnerID = p.PartnerID
	m.PaymentMethodID = p.PaymentMethodID
	m.RepositoryID = p.RepositoryID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.PaymentDate = p.PaymentDate
	m.Status = p.Status
	m.PaymentType = p.PaymentType
	m.Reference = p.Reference
	m.AllocatedAt = p.AllocatedAt
	m.VoidedAt = p.VoidedAt
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// PaymentAllocationModel is the persistence model for a payment allocation.
// Allocation rows are append-only.
type PaymentAllocationModel struct {
	ID                uuid.UUID            `gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID            `gorm:"type:uuid;not null;index"`
	PaymentID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	DocumentID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	ToleranceWriteoff decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	WriteoffKind      payment.WriteoffKind `gorm:"type:varchar(20);not null"`
	CreatedAt         time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain PaymentAllocation
func (m *PaymentAllocationModel) ToDomain() *payment.PaymentAllocation {
	return &payment.PaymentAllocation{
		ID:                m.ID,
		TenantID:          m.TenantID,
		PaymentID:         m.PaymentID,
		DocumentID:        m.DocumentID,
		Amount:            stored(m.Amount),
		ToleranceWriteoff: stored(m.ToleranceWriteoff),
		WriteoffKind:      m.WriteoffKind,
		CreatedAt:         m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain PaymentAllocation
func (m *PaymentAllocationModel) FromDomain(a *payment.PaymentAllocation) {
	m.ID = a.ID
	m.TenantID = a.TenantID
	m.PaymentID = a.PaymentID
	m.DocumentID = a.DocumentID
	m.Amount = a.Amount
	m.ToleranceWriteoff = a.ToleranceWriteoff
	m.WriteoffKind = a.WriteoffKind
	m.CreatedAt = a.CreatedAt
}

// PaymentAllocationModelFromDomain creates a new persistence model from a domain PaymentAllocation
func PaymentAllocationModelFromDomain(a *payment.PaymentAllocation) *PaymentAllocationModel {
	m := &PaymentAllocationModel{}
	m.FromDomain(a)
	return m
}
