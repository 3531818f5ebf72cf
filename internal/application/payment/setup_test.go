package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/accounting"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/erp/ledger/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	docs        *persistence.GormDocumentRepository
	payments    *persistence.GormPaymentRepository
	settings    *persistence.GormToleranceSettingsRepository
	journal     *accounting.GormJournalSink
	documents   *appledger.DocumentService
	posting     *appledger.PostingService
	allocations *AllocationService
	paymentSvc  *PaymentService

	tenantID  uuid.UUID
	companyID uuid.UUID
	partnerID uuid.UUID
	seq       int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, tenant.NewGuard("tenant_id").Register(db))

	return newEnv(t, db, config.DriverSQLite, persistence.NewLocalScopeLocker(10*time.Second, nil))
}

// newEnv wires the services over a prepared database
func newEnv(t *testing.T, db *gorm.DB, driver string, locker shared.ScopeLocker) *testEnv {
	t.Helper()
	registry, err := strategy.NewRegistryWithDefaults()
	require.NoError(t, err)

	txm := persistence.NewTxManager(db, driver, 0)
	dispatcher := appevent.NewDispatcher(
		event.NewOutboxPublisher(db, event.NewLedgerEventSerializer(), 0),
		event.NewInMemoryEventBus(zap.NewNop()))

	docs := persistence.NewGormDocumentRepository(db)
	payments := persistence.NewGormPaymentRepository(db)
	settings := persistence.NewGormToleranceSettingsRepository(db)
	journal := accounting.NewGormJournalSink(db)

	return &testEnv{
		docs:      docs,
		payments:  payments,
		settings:  settings,
		journal:   journal,
		documents: appledger.NewDocumentService(docs, txm),
		posting:   appledger.NewPostingService(docs, txm, locker, dispatcher, nil),
		allocations: NewAllocationService(AllocationServiceDeps{
			Documents:  docs,
			Payments:   payments,
			Settings:   settings,
			Strategies: registry,
			TxManager:  txm,
			Locker:     locker,
			Journal:    journal,
			Dispatcher: dispatcher,
		}),
		paymentSvc: NewPaymentService(payments, txm, dispatcher),
		tenantID:   uuid.New(),
		companyID:  uuid.New(),
		partnerID:  uuid.New(),
	}
}

// invoice posts an invoice of one line; gross = net × (1 + taxRate/100)
func (e *testEnv) invoice(t *testing.T, net, taxRate string, date time.Time) *ledger.Document {
	t.Helper()
	ctx := context.Background()
	e.seq++
	doc, err := e.documents.CreateDraft(ctx, appledger.CreateDraftRequest{
		TenantID:       e.tenantID,
		CompanyID:      e.companyID,
		PartnerID:      e.partnerID,
		Type:           ledger.DocumentTypeInvoice,
		DocumentNumber: fmt.Sprintf("INV-%03d", e.seq),
		DocumentDate:   date,
		Currency:       "EUR",
		Lines: []appledger.LineRequest{{
			Description: "Goods",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString(net),
			TaxRate:     decimal.RequireFromString(taxRate),
		}},
	})
	require.NoError(t, err)
	_, err = e.documents.Confirm(ctx, e.tenantID, doc.ID)
	require.NoError(t, err)
	_, err = e.posting.Post(ctx, e.tenantID, doc.ID)
	require.NoError(t, err)
	return e.reload(t, doc.ID)
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *ledger.Document {
	t.Helper()
	doc, err := e.docs.FindByIDForTenant(context.Background(), e.tenantID, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func (e *testEnv) record(t *testing.T, amount string) *payment.Payment {
	t.Helper()
	p, err := e.paymentSvc.Record(context.Background(), RecordPaymentRequest{
		TenantID:    e.tenantID,
		CompanyID:   e.companyID,
		PartnerID:   e.partnerID,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "EUR",
		PaymentDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Reference:   "BANK-" + amount,
	})
	require.NoError(t, err)
	return p
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
