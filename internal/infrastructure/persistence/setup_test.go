package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens a guarded in-memory SQLite database with the ledger schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, tenant.NewGuard("tenant_id").Register(db))
	return db
}

type docFixture struct {
	tenantID  uuid.UUID
	companyID uuid.UUID
	partnerID uuid.UUID
	seq       int
}

func newDocFixture() *docFixture {
	return &docFixture{tenantID: uuid.New(), companyID: uuid.New(), partnerID: uuid.New()}
}

// confirmed builds a confirmed document of docType worth net + 19% tax.
// Credit notes fully credit an in-memory posted invoice of the same value.
func (f *docFixture) confirmed(t *testing.T, docType ledger.DocumentType, net string) *ledger.Document {
	t.Helper()
	if docType == ledger.DocumentTypeCreditNote {
		return f.creditNote(t, net)
	}
	f.seq++
	doc, err := ledger.NewDocument(f.tenantID, f.companyID, f.partnerID, docType,
		fmt.Sprintf("%s-%03d", docType, f.seq), time.Date(2024, 3, f.seq, 0, 0, 0, 0, time.UTC), valueobject.EUR)
	require.NoError(t, err)
	_, err = doc.AddLine(ledger.LineInput{
		Description: "Service",
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.RequireFromString(net),
		TaxRate:     decimal.NewFromInt(19),
	})
	require.NoError(t, err)
	require.NoError(t, doc.Recalculate())
	require.NoError(t, doc.Confirm())
	return doc
}

func (f *docFixture) creditNote(t *testing.T, net string) *ledger.Document {
	t.Helper()
	source := f.posted(t, ledger.DocumentTypeInvoice, net, 1, nil)
	amounts, err := ledger.NewCreditNoteCalculator().Compute(source, decimal.Zero, source.Total)
	require.NoError(t, err)
	f.seq++
	cn, err := ledger.NewCreditNote(source, fmt.Sprintf("%s-%03d", ledger.DocumentTypeCreditNote, f.seq),
		time.Date(2024, 3, f.seq, 0, 0, 0, 0, time.UTC), "Returned goods", amounts)
	require.NoError(t, err)
	require.NoError(t, cn.Confirm())
	return cn
}

// posted builds a posted invoice; fiscal documents get the given chain position
func (f *docFixture) posted(t *testing.T, docType ledger.DocumentType, net string, seq int64, prev *string) *ledger.Document {
	t.Helper()
	doc := f.confirmed(t, docType, net)
	var link *ledger.ChainLink
	if docType.IsFiscal() {
		link = &ledger.ChainLink{PreviousHash: prev, Sequence: seq, Hash: fmt.Sprintf("%064d", seq)}
	}
	require.NoError(t, doc.MarkPosted(time.Now(), link))
	doc.ClearDomainEvents()
	return doc
}

func (f *docFixture) payment(t *testing.T, amount string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(f.tenantID, f.companyID, f.partnerID, uuid.New(), uuid.New(),
		valueobject.MustMoney(amount, valueobject.EUR), time.Now(), "REF")
	require.NoError(t, err)
	p.ClearDomainEvents()
	return p
}
