package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_ConcurrentPaymentsNeverOverAllocate(t *testing.T) {
	pg := pgtest.New(t)
	env := newEnv(t, pg.DB, config.DriverPostgres, persistence.NewAdvisoryScopeLocker(pg.DB, nil))
	ctx := context.Background()

	first := env.invoice(t, "1000.00", "19", day(1))
	second := env.invoice(t, "500.00", "19", day(2))

	payments := make([]*payment.Payment, 4)
	for i := range payments {
		payments[i] = env.record(t, "600.00")
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(payments))
	for _, p := range payments {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := env.allocations.Apply(ctx, ApplyRequest{TenantID: env.tenantID, PaymentID: id})
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, inv := range []*ledger.Document{first, second} {
		stored := env.reload(t, inv.ID)
		assert.Equal(t, ledger.DocumentStatusPaid, stored.Status, inv.DocumentNumber)
		settled, err := env.payments.SumAllocatedToDocument(ctx, env.tenantID, inv.ID)
		require.NoError(t, err)
		assert.True(t, settled.Equal(inv.Total), "%s settled %s of %s", inv.DocumentNumber, settled, inv.Total)
	}
}
