package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/pgtest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresEnv(t *testing.T) *testEnv {
	t.Helper()
	pg := pgtest.New(t)
	return newEnv(pg.DB, config.DriverPostgres, persistence.NewAdvisoryScopeLocker(pg.DB, nil))
}

func TestPostgres_ConcurrentPostingIsGapFree(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()

	const n = 12
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = env.confirmed(t, ledger.DocumentTypeInvoice, "10.00").ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := env.posting.Post(ctx, env.tenantID, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := env.verifier.Verify(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.Equal(t, n, report.Length)
	assert.True(t, report.Valid, "breaks: %+v", report.Breaks)
}

func TestPostgres_ConcurrentCreditNotesRespectInvoiceTotal(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()
	invoice := env.posted(t, ledger.DocumentTypeInvoice, "1000.00")

	const n = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	issued := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.credits.Issue(ctx, IssueCreditNoteRequest{
				TenantID:       env.tenantID,
				InvoiceID:      invoice.ID,
				DocumentNumber: "CN-PG-" + uuid.NewString()[:8],
				DocumentDate:   invoice.DocumentDate,
				Amount:         decimal.RequireFromString("500.00"),
				Reason:         "Returned goods",
			})
			if err == nil {
				mu.Lock()
				issued++
				mu.Unlock()
				return
			}
			assert.Equal(t, "CREDIT_EXCEEDS_INVOICE", errorCode(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, issued)
}

func TestPostgres_VerifierDetectsTampering(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()

	env.posted(t, ledger.DocumentTypeInvoice, "100.00")
	second := env.posted(t, ledger.DocumentTypeInvoice, "200.00")

	require.NoError(t, env.db.Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND id = ?", env.tenantID, second.ID).
		UpdateColumn("total", "1.00").Error)

	report, err := env.verifier.Verify(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Breaks, 1)
	assert.Equal(t, int64(2), report.Breaks[0].Sequence)
}
