package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChainHead is the latest entry of one (company, type) hash chain
type ChainHead struct {
	DocumentID uuid.UUID
	Sequence   int64
	FiscalHash string
}

// ChainScope identifies one independent hash chain
type ChainScope struct {
	TenantID  uuid.UUID
	CompanyID uuid.UUID
	Type      DocumentType
}

// LockKey returns the name used to serialise postings on this chain
func (s ChainScope) LockKey() string {
	return "chain:" + s.TenantID.String() + ":" + s.CompanyID.String() + ":" + string(s.Type)
}

// OpenInvoiceFilter selects the invoices a payment may settle
type OpenInvoiceFilter struct {
	TenantID  uuid.UUID
	CompanyID uuid.UUID
	PartnerID uuid.UUID
	Currency  string
}

// DocumentRepository defines the interface for document persistence.
// Every method is scoped by tenant; methods run inside the transaction
// carried by ctx when there is one.
type DocumentRepository interface {
	// FindByIDForTenant returns nil, nil when the document does not exist
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)

	// FindByIDForUpdate is FindByIDForTenant with a row lock held until commit
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)

	// FindByIDsForUpdate locks the given documents in ascending id order
	FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*Document, error)

	// ExistsByDocumentNumber checks tenant-wide document number uniqueness
	ExistsByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (bool, error)

	// Create inserts a new document with its lines and costs
	Create(ctx context.Context, doc *Document) error

	// SaveWithLock updates a document guarded by its version and bumps the version
	SaveWithLock(ctx context.Context, doc *Document) error

	// FindChainHeadForUpdate returns the highest chain entry of scope with a
	// locking read, or nil when the chain is empty
	FindChainHeadForUpdate(ctx context.Context, scope ChainScope) (*ChainHead, error)

	// ListChain returns every chained document of scope ordered by sequence
	ListChain(ctx context.Context, scope ChainScope) ([]*Document, error)

	// SumActiveCreditNotes sums the totals of non-cancelled credit notes against an invoice
	SumActiveCreditNotes(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error)

	// FindOpenInvoices returns posted invoices with a positive balance
	FindOpenInvoices(ctx context.Context, filter OpenInvoiceFilter) ([]*Document, error)
}
