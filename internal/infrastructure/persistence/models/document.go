package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// storedPlaces is the scale of every decimal column
const storedPlaces int32 = 4

func stored(d decimal.Decimal) decimal.Decimal {
	return d.Round(storedPlaces)
}

// DocumentModel is the persistence model for the Document aggregate root.
// The (tenant, company, type, chain_sequence) unique index backs the
// gap-free chain: two postings can never claim the same sequence.
type DocumentModel struct {
	AggregateModel
	TenantID         uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_tenant_number,priority:1;uniqueIndex:idx_document_chain,priority:1"`
	CompanyID        uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chain,priority:2"`
	Type             ledger.DocumentType   `gorm:"type:varchar(30);not null;index;uniqueIndex:idx_document_chain,priority:3"`
	Status           ledger.DocumentStatus `gorm:"type:varchar(20);not null;index"`
	PartnerID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	DocumentNumber   string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_document_tenant_number,priority:2"`
	DocumentDate     time.Time             `gorm:"type:date;not null"`
	DueDate          *time.Time            `gorm:"type:date"`
	Currency         string                `gorm:"type:varchar(3);not null"`
	Subtotal         decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	TaxAmount        decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Total            decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	BalanceDue       decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	SourceDocumentID *uuid.UUID            `gorm:"type:uuid;index"`
	CreditNoteReason string                `gorm:"type:varchar(500)"`
	FiscalHash       *string               `gorm:"type:varchar(64)"`
	PreviousHash     *string               `gorm:"type:varchar(64)"`
	ChainSequence    *int64                `gorm:"uniqueIndex:idx_document_chain,priority:4"`
	PostedAt         *time.Time
	CancelledAt      *time.Time
	Lines            []DocumentLineModel   `gorm:"foreignKey:DocumentID;references:ID"`
	AdditionalCosts  []AdditionalCostModel `gorm:"foreignKey:DocumentID;references:ID"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// ToDomain converts the persistence model to a domain Document
func (m *DocumentModel) ToDomain() *ledger.Document {
	d := &ledger.Document{
		CompanyAggregateRoot: shared.CompanyAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: m.BaseModel.ToDomain(),
				Version:    m.Version,
			},
			TenantID:  m.TenantID,
			CompanyID: m.CompanyID,
		},
		Type:                 m.Type,
		Status:               m.Status,
		PartnerID:            m.PartnerID,
		DocumentNumber:       m.DocumentNumber,
		DocumentDate:         m.DocumentDate,
		DueDate:              m.DueDate,
		Currency:             m.Currency,
		Subtotal:             stored(m.Subtotal),
		TaxAmount:            stored(m.TaxAmount),
		Total:                stored(m.Total),
		BalanceDue:           stored(m.BalanceDue),
		SourceDocumentID:     m.SourceDocumentID,
		CreditNoteReason:     m.CreditNoteReason,
		FiscalHash:           m.FiscalHash,
		PreviousHash:         m.PreviousHash,
		ChainSequence:        m.ChainSequence,
		PostedAt:             m.PostedAt,
		CancelledAt:          m.CancelledAt,
		Lines:                make([]ledger.DocumentLine, 0, len(m.Lines)),
		AdditionalCosts:      make([]ledger.AdditionalCost, 0, len(m.AdditionalCosts)),
	}
	for i := range m.Lines {
		d.Lines = append(d.Lines, m.Lines[i].ToDomain())
	}
	for i := range m.AdditionalCosts {
		d.AdditionalCosts = append(d.AdditionalCosts, m.AdditionalCosts[i].ToDomain())
	}
	return d
}

// FromDomain populates the persistence model from a domain Document
func (m *DocumentModel) FromDomain(d *ledger.Document) {
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.TenantID = d.TenantID
	m.CompanyID = d.CompanyID
	m.Type = d.Type
	m.Status = d.Status
	m.PartnerID = d.PartnerID
	m.DocumentNumber = d.DocumentNumber
	m.DocumentDate = d.DocumentDate
	m.DueDate = d.DueDate
	m.Currency = d.Currency
	m.Subtotal = d.Subtotal
	m.TaxAmount = d.TaxAmount
	m.Total = d.Total
	m.BalanceDue = d.BalanceDue
	m.SourceDocumentID = d.SourceDocumentID
	m.CreditNoteReason = d.CreditNoteReason
	m.FiscalHash = d.FiscalHash
	m.PreviousHash = d.PreviousHash
	m.ChainSequence = d.ChainSequence
	m.PostedAt = d.PostedAt
	m.CancelledAt = d.CancelledAt

	m.Lines = make([]DocumentLineModel, 0, len(d.Lines))
	for i := range d.Lines {
		var lm DocumentLineModel
		lm.FromDomain(d.ID, &d.Lines[i])
		m.Lines = append(m.Lines, lm)
	}
	m.AdditionalCosts = make([]AdditionalCostModel, 0, len(d.AdditionalCosts))
	for i := range d.AdditionalCosts {
		var cm AdditionalCostModel
		cm.FromDomain(d.ID, &d.AdditionalCosts[i])
		m.AdditionalCosts = append(m.AdditionalCosts, cm)
	}
}

// DocumentModelFromDomain creates a new persistence model from a domain Document
func DocumentModelFromDomain(d *ledger.Document) *DocumentModel {
	m := &DocumentModel{}
	m.FromDomain(d)
	return m
}

// DocumentLineModel is the persistence model for a document line
type DocumentLineModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber  int             `gorm:"not null"`
	Description string          `gorm:"type:varchar(500);not null"`
	ProductID   *uuid.UUID      `gorm:"type:uuid"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (DocumentLineModel) TableName() string {
	return "document_lines"
}

// ToDomain converts the persistence model to a domain DocumentLine
func (m *DocumentLineModel) ToDomain() ledger.DocumentLine {
	return ledger.DocumentLine{
		ID:          m.ID,
		DocumentID:  m.DocumentID,
		LineNumber:  m.LineNumber,
		Description: m.Description,
		ProductID:   m.ProductID,
		Quantity:    stored(m.Quantity),
		UnitPrice:   stored(m.UnitPrice),
		TaxRate:     stored(m.TaxRate),
		LineTotal:   stored(m.LineTotal),
		TaxAmount:   stored(m.TaxAmount),
	}
}

// FromDomain populates the persistence model from a domain DocumentLine
func (m *DocumentLineModel) FromDomain(documentID uuid.UUID, l *ledger.DocumentLine) {
	m.ID = l.ID
	m.DocumentID = documentID
	m.LineNumber = l.LineNumber
	m.Description = l.Description
	m.ProductID = l.ProductID
	m.Quantity = l.Quantity
	m.UnitPrice = l.UnitPrice
	m.TaxRate = l.TaxRate
	m.LineTotal = l.LineTotal
	m.TaxAmount = l.TaxAmount
}

// AdditionalCostModel is the persistence model for a landed cost
type AdditionalCostModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	CostType    ledger.CostType `gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Description string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (AdditionalCostModel) TableName() string {
	return "document_additional_costs"
}

// ToDomain converts the persistence model to a domain AdditionalCost
func (m *AdditionalCostModel) ToDomain() ledger.AdditionalCost {
	return ledger.AdditionalCost{
		ID:          m.ID,
		DocumentID:  m.DocumentID,
		CostType:    m.CostType,
		Amount:      stored(m.Amount),
		Description: m.Description,
	}
}

// FromDomain populates the persistence model from a domain AdditionalCost
func (m *AdditionalCostModel) FromDomain(documentID uuid.UUID, c *ledger.AdditionalCost) {
	m.ID = c.ID
	m.DocumentID = documentID
	m.CostType = c.CostType
	m.Amount = c.Amount
	m.Description = c.Description
}
