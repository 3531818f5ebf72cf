package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormDocumentRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	doc := f.confirmed(t, ledger.DocumentTypeInvoice, "1000.00")
	_, err := doc.AddAdditionalCost(ledger.CostTypeShipping, decimal.RequireFromString("25.00"), "Freight")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, doc))

	t.Run("finds document with lines and costs", func(t *testing.T) {
		found, err := repo.FindByIDForTenant(ctx, f.tenantID, doc.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, ledger.DocumentStatusConfirmed, found.Status)
		assert.True(t, found.Total.Equal(decimal.RequireFromString("1190")))
		require.Len(t, found.Lines, 1)
		assert.Equal(t, 1, found.Lines[0].LineNumber)
		require.Len(t, found.AdditionalCosts, 1)
		assert.True(t, found.AdditionalCostTotal().Equal(decimal.NewFromInt(25)))
	})

	t.Run("returns nil for another tenant", func(t *testing.T) {
		found, err := repo.FindByIDForTenant(ctx, uuid.New(), doc.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("locking read works on sqlite", func(t *testing.T) {
		found, err := repo.FindByIDForUpdate(ctx, f.tenantID, doc.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
	})

	t.Run("document number is unique per tenant", func(t *testing.T) {
		exists, err := repo.ExistsByDocumentNumber(ctx, f.tenantID, doc.DocumentNumber)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByDocumentNumber(ctx, uuid.New(), doc.DocumentNumber)
		require.NoError(t, err)
		assert.False(t, exists)

		dup, err := ledger.NewDocument(f.tenantID, f.companyID, f.partnerID, ledger.DocumentTypeQuote,
			doc.DocumentNumber, doc.DocumentDate, "EUR")
		require.NoError(t, err)
		err = repo.Create(ctx, dup)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateDocumentNumber)
	})
}

func TestGormDocumentRepository_SaveWithLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	doc := f.confirmed(t, ledger.DocumentTypeOrder, "100.00")
	require.NoError(t, repo.Create(ctx, doc))

	t.Run("bumps the version", func(t *testing.T) {
		require.NoError(t, doc.MarkPosted(doc.DocumentDate, nil))
		require.NoError(t, repo.SaveWithLock(ctx, doc))
		assert.Equal(t, 2, doc.Version)

		found, err := repo.FindByIDForTenant(ctx, f.tenantID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.DocumentStatusPosted, found.Status)
		assert.Equal(t, 2, found.Version)
		assert.Len(t, found.Lines, 1)
	})

	t.Run("rejects a stale copy", func(t *testing.T) {
		stale, err := repo.FindByIDForTenant(ctx, f.tenantID, doc.ID)
		require.NoError(t, err)

		require.NoError(t, doc.Cancel())
		require.NoError(t, repo.SaveWithLock(ctx, doc))

		require.NoError(t, stale.Cancel())
		err = repo.SaveWithLock(ctx, stale)
		require.Error(t, err)
		assert.True(t, shared.IsRetryable(err))
		assert.Equal(t, 2, stale.Version)
	})
}

func TestGormDocumentRepository_SaveWithLock_RewritesDraftLines(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	doc, err := ledger.NewDocument(f.tenantID, f.companyID, f.partnerID, ledger.DocumentTypeQuote, "Q-1",
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), "EUR")
	require.NoError(t, err)
	first, err := doc.AddLine(ledger.LineInput{Description: "A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	firstID := first.ID
	_, err = doc.AddLine(ledger.LineInput{Description: "B", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.NoError(t, doc.Recalculate())
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, doc.RemoveLine(firstID))
	require.NoError(t, doc.Recalculate())
	require.NoError(t, repo.SaveWithLock(ctx, doc))

	found, err := repo.FindByIDForTenant(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, "B", found.Lines[0].Description)
	assert.Equal(t, 1, found.Lines[0].LineNumber)
	assert.True(t, found.Subtotal.Equal(decimal.NewFromInt(10)))
}

func TestGormDocumentRepository_Chain(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()
	scope := ledger.ChainScope{TenantID: f.tenantID, CompanyID: f.companyID, Type: ledger.DocumentTypeInvoice}

	head, err := repo.FindChainHeadForUpdate(ctx, scope)
	require.NoError(t, err)
	assert.Nil(t, head)

	inv1 := f.posted(t, ledger.DocumentTypeInvoice, "100.00", 1, nil)
	require.NoError(t, repo.Create(ctx, inv1))
	inv2 := f.posted(t, ledger.DocumentTypeInvoice, "200.00", 2, inv1.FiscalHash)
	require.NoError(t, repo.Create(ctx, inv2))
	// A credit note is a separate chain
	cn := f.posted(t, ledger.DocumentTypeCreditNote, "10.00", 1, nil)
	require.NoError(t, repo.Create(ctx, cn))
	// Unposted invoices are not part of the chain
	require.NoError(t, repo.Create(ctx, f.confirmed(t, ledger.DocumentTypeInvoice, "5.00")))

	head, err = repo.FindChainHeadForUpdate(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, inv2.ID, head.DocumentID)
	assert.Equal(t, int64(2), head.Sequence)
	assert.Equal(t, *inv2.FiscalHash, head.FiscalHash)

	chain, err := repo.ListChain(ctx, scope)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, inv1.ID, chain[0].ID)
	assert.Equal(t, inv2.ID, chain[1].ID)
	assert.Equal(t, *inv1.FiscalHash, *chain[1].PreviousHash)

	t.Run("a second claim on a sequence is a chain conflict", func(t *testing.T) {
		clash := f.posted(t, ledger.DocumentTypeInvoice, "300.00", 2, inv1.FiscalHash)
		err := repo.Create(ctx, clash)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrChainConflict)
		assert.True(t, shared.IsRetryable(err))
	})
}

func TestGormDocumentRepository_SumActiveCreditNotes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	invoice := f.posted(t, ledger.DocumentTypeInvoice, "1000.00", 1, nil)
	require.NoError(t, repo.Create(ctx, invoice))

	calc := ledger.NewCreditNoteCalculator()
	issue := func(number, amount string) *ledger.Document {
		amounts, err := calc.Compute(invoice, decimal.Zero, decimal.RequireFromString(amount))
		require.NoError(t, err)
		cn, err := ledger.NewCreditNote(invoice, number, invoice.DocumentDate, "Damaged goods", amounts)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, cn))
		return cn
	}
	issue("CN-1", "100.10")
	issue("CN-2", "200.20")
	cancelled := issue("CN-3", "50.00")
	require.NoError(t, cancelled.Discard())
	require.NoError(t, repo.SaveWithLock(ctx, cancelled))

	sum, err := repo.SumActiveCreditNotes(ctx, f.tenantID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.30", sum.StringFixed(2))
	assert.True(t, sum.Equal(decimal.RequireFromString("300.30")))

	sum, err = repo.SumActiveCreditNotes(ctx, uuid.New(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestGormDocumentRepository_FindOpenInvoices(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	open1 := f.posted(t, ledger.DocumentTypeInvoice, "100.00", 1, nil)
	open2 := f.posted(t, ledger.DocumentTypeInvoice, "200.00", 2, open1.FiscalHash)
	paid := f.posted(t, ledger.DocumentTypeInvoice, "50.00", 3, open2.FiscalHash)
	require.NoError(t, paid.ApplyPayment(paid.BalanceDue, decimal.Zero))
	draft := f.confirmed(t, ledger.DocumentTypeInvoice, "70.00")
	order := f.posted(t, ledger.DocumentTypeOrder, "80.00", 0, nil)
	for _, d := range []*ledger.Document{open2, open1, paid, draft, order} {
		require.NoError(t, repo.Create(ctx, d))
	}
	other := newDocFixture()
	require.NoError(t, repo.Create(ctx, other.posted(t, ledger.DocumentTypeInvoice, "10.00", 1, nil)))

	invoices, err := repo.FindOpenInvoices(ctx, ledger.OpenInvoiceFilter{
		TenantID: f.tenantID, CompanyID: f.companyID, PartnerID: f.partnerID, Currency: "EUR",
	})
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, open1.ID, invoices[0].ID)
	assert.Equal(t, open2.ID, invoices[1].ID)

	invoices, err = repo.FindOpenInvoices(ctx, ledger.OpenInvoiceFilter{
		TenantID: f.tenantID, CompanyID: f.companyID, PartnerID: f.partnerID, Currency: "USD",
	})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestGormDocumentRepository_FindByIDsForUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDocumentRepository(db)
	ctx := context.Background()
	f := newDocFixture()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		d := f.confirmed(t, ledger.DocumentTypeOrder, "10.00")
		require.NoError(t, repo.Create(ctx, d))
		ids = append(ids, d.ID)
	}

	docs, err := repo.FindByIDsForUpdate(ctx, f.tenantID, ids)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1].ID.String(), docs[i].ID.String())
	}

	docs, err = repo.FindByIDsForUpdate(ctx, f.tenantID, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
