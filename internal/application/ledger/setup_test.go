package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testEnv wires the ledger services over an in-memory SQLite database
type testEnv struct {
	db        *gorm.DB
	docs      *persistence.GormDocumentRepository
	outbox    *event.GormOutboxRepository
	bus       *event.InMemoryEventBus
	documents *DocumentService
	posting   *PostingService
	credits   *CreditNoteService
	verifier  *ChainVerifier

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

	return newEnv(db, config.DriverSQLite, persistence.NewLocalScopeLocker(10*time.Second, nil))
}

// newEnv wires the services over a prepared database
func newEnv(db *gorm.DB, driver string, locker shared.ScopeLocker) *testEnv {
	txm := persistence.NewTxManager(db, driver, 0)
	docs := persistence.NewGormDocumentRepository(db)
	bus := event.NewInMemoryEventBus(zap.NewNop())
	dispatcher := appevent.NewDispatcher(
		event.NewOutboxPublisher(db, event.NewLedgerEventSerializer(), 0), bus)

	return &testEnv{
		db:        db,
		docs:      docs,
		outbox:    event.NewGormOutboxRepository(db),
		bus:       bus,
		documents: NewDocumentService(docs, txm),
		posting:   NewPostingService(docs, txm, locker, dispatcher, nil),
		credits:   NewCreditNoteService(docs, txm),
		verifier:  NewChainVerifier(docs),
		tenantID:  uuid.New(),
		companyID: uuid.New(),
		partnerID: uuid.New(),
	}
}

func (e *testEnv) scope(docType ledger.DocumentType) ledger.ChainScope {
	return ledger.ChainScope{TenantID: e.tenantID, CompanyID: e.companyID, Type: docType}
}

// draft creates a draft of docType with one line of net at 19% tax
func (e *testEnv) draft(t *testing.T, docType ledger.DocumentType, net string) *ledger.Document {
	t.Helper()
	e.seq++
	doc, err := e.documents.CreateDraft(context.Background(), CreateDraftRequest{
		TenantID:       e.tenantID,
		CompanyID:      e.companyID,
		PartnerID:      e.partnerID,
		Type:           docType,
		DocumentNumber: fmt.Sprintf("%s-%03d", docType, e.seq),
		DocumentDate:   time.Date(2024, 3, 1+e.seq%28, 0, 0, 0, 0, time.UTC),
		Currency:       "EUR",
		Lines: []LineRequest{{
			Description: "Consulting",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString(net),
			TaxRate:     decimal.NewFromInt(19),
		}},
	})
	require.NoError(t, err)
	return doc
}

func (e *testEnv) confirmed(t *testing.T, docType ledger.DocumentType, net string) *ledger.Document {
	t.Helper()
	doc := e.draft(t, docType, net)
	doc, err := e.documents.Confirm(context.Background(), e.tenantID, doc.ID)
	require.NoError(t, err)
	return doc
}

func (e *testEnv) posted(t *testing.T, docType ledger.DocumentType, net string) *ledger.Document {
	t.Helper()
	doc := e.confirmed(t, docType, net)
	_, err := e.posting.Post(context.Background(), e.tenantID, doc.ID)
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

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
