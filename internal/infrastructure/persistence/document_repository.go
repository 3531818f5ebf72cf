package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDocumentRepository implements DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("line_number ASC") }).
		Preload("AdditionalCosts")
}

func (r *GormDocumentRepository) findOne(db *gorm.DB, tenantID, id uuid.UUID) (*ledger.Document, error) {
	var model models.DocumentModel
	if err := withChildren(db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load document %s: %w", id, MapError(err))
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a document by ID for a specific tenant
func (r *GormDocumentRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Document, error) {
	return r.findOne(Conn(ctx, r.db), tenantID, id)
}

// FindByIDForUpdate finds a document and locks its row until commit
func (r *GormDocumentRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Document, error) {
	return r.findOne(Conn(ctx, r.db).Clauses(forUpdate), tenantID, id)
}

// FindByIDsForUpdate locks documents in ascending id order so concurrent
// callers never deadlock on each other's rows
func (r *GormDocumentRepository) FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.Document, error) {
	if len(ids) == 0 {
		return []*ledger.Document{}, nil
	}
	var rows []models.DocumentModel
	if err := withChildren(Conn(ctx, r.db).Clauses(forUpdate)).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock documents: %w", MapError(err))
	}
	return toDomainDocuments(rows), nil
}

// ExistsByDocumentNumber checks if a document number is taken within the tenant
func (r *GormDocumentRepository) ExistsByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (bool, error) {
	var count int64
	if err := Conn(ctx, r.db).
		Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND document_number = ?", tenantID, documentNumber).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check document number: %w", err)
	}
	return count > 0, nil
}

// Create inserts a document with its lines and additional costs
func (r *GormDocumentRepository) Create(ctx context.Context, doc *ledger.Document) error {
	model := models.DocumentModelFromDomain(doc)
	if err := Conn(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.DocumentNumber, MapError(err))
	}
	return nil
}

// SaveWithLock saves a document guarded by its version. Lines and costs are
// rewritten while the document can still change them.
func (r *GormDocumentRepository) SaveWithLock(ctx context.Context, doc *ledger.Document) error {
	db := Conn(ctx, r.db)
	currentVersion := doc.Version
	doc.Version++

	model := models.DocumentModelFromDomain(doc)
	result := db.
		Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", doc.TenantID, doc.ID, currentVersion).
		Select("*").
		Omit(clause.Associations, "id", "created_at").
		Updates(model)
	if result.Error != nil {
		doc.Version = currentVersion
		return fmt.Errorf("failed to save document %s: %w", doc.DocumentNumber, MapError(result.Error))
	}
	if result.RowsAffected == 0 {
		doc.Version = currentVersion
		return shared.NewConcurrencyError("CONCURRENT_MODIFICATION", "The document has been modified by another process")
	}

	if !doc.Status.CanDiscard() {
		return nil
	}
	return r.replaceChildren(db, model)
}

func (r *GormDocumentRepository) replaceChildren(db *gorm.DB, model *models.DocumentModel) error {
	if err := db.Where("document_id = ?", model.ID).Delete(&models.DocumentLineModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear document lines: %w", err)
	}
	if err := db.Where("document_id = ?", model.ID).Delete(&models.AdditionalCostModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear additional costs: %w", err)
	}
	if len(model.Lines) > 0 {
		if err := db.Create(&model.Lines).Error; err != nil {
			return fmt.Errorf("failed to write document lines: %w", err)
		}
	}
	if len(model.AdditionalCosts) > 0 {
		if err := db.Create(&model.AdditionalCosts).Error; err != nil {
			return fmt.Errorf("failed to write additional costs: %w", err)
		}
	}
	return nil
}

// FindChainHeadForUpdate returns the highest chained document of scope and
// locks its row, or nil when no document of scope was posted yet
func (r *GormDocumentRepository) FindChainHeadForUpdate(ctx context.Context, scope ledger.ChainScope) (*ledger.ChainHead, error) {
	var model models.DocumentModel
	err := Conn(ctx, r.db).
		Clauses(forUpdate).
		Select("id", "chain_sequence", "fiscal_hash").
		Where("tenant_id = ? AND company_id = ? AND type = ? AND chain_sequence IS NOT NULL",
			scope.TenantID, scope.CompanyID, scope.Type).
		Order("chain_sequence DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chain head: %w", MapError(err))
	}
	if model.ChainSequence == nil || model.FiscalHash == nil {
		return nil, fmt.Errorf("chain head %s has no hash", model.ID)
	}
	return &ledger.ChainHead{
		DocumentID: model.ID,
		Sequence:   *model.ChainSequence,
		FiscalHash: *model.FiscalHash,
	}, nil
}

// ListChain returns every chained document of scope by ascending sequence
func (r *GormDocumentRepository) ListChain(ctx context.Context, scope ledger.ChainScope) ([]*ledger.Document, error) {
	var rows []models.DocumentModel
	if err := Conn(ctx, r.db).
		Where("tenant_id = ? AND company_id = ? AND type = ? AND chain_sequence IS NOT NULL",
			scope.TenantID, scope.CompanyID, scope.Type).
		Order("chain_sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list chain: %w", err)
	}
	return toDomainDocuments(rows), nil
}

// SumActiveCreditNotes sums the totals of non-cancelled credit notes against an invoice
func (r *GormDocumentRepository) SumActiveCreditNotes(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var totals []decimal.Decimal
	if err := Conn(ctx, r.db).
		Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND source_document_id = ? AND type = ? AND status <> ?",
			tenantID, invoiceID, ledger.DocumentTypeCreditNote, ledger.DocumentStatusCancelled).
		Pluck("total", &totals).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum credit notes: %w", err)
	}
	return sumStored(totals), nil
}

// FindOpenInvoices returns posted invoices of a partner with a positive balance.
// Lines are not loaded.
func (r *GormDocumentRepository) FindOpenInvoices(ctx context.Context, filter ledger.OpenInvoiceFilter) ([]*ledger.Document, error) {
	var rows []models.DocumentModel
	if err := Conn(ctx, r.db).
		Where("tenant_id = ? AND company_id = ? AND partner_id = ? AND currency = ? AND type = ? AND status = ? AND balance_due > 0",
			filter.TenantID, filter.CompanyID, filter.PartnerID, filter.Currency,
			ledger.DocumentTypeInvoice, ledger.DocumentStatusPosted).
		Order("document_date ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find open invoices: %w", err)
	}
	return toDomainDocuments(rows), nil
}

func toDomainDocuments(rows []models.DocumentModel) []*ledger.Document {
	docs := make([]*ledger.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].ToDomain()
	}
	return docs
}

// sumStored adds decimals read from the database in Go, so drivers that
// aggregate in floating point never leak into ledger amounts
func sumStored(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v.Round(4))
	}
	return sum
}

var _ ledger.DocumentRepository = (*GormDocumentRepository)(nil)
