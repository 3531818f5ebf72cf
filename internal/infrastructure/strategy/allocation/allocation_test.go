package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openInvoice(number string, date time.Time, due *time.Time, balance string) strategy.OpenInvoice {
	return strategy.OpenInvoice{
		ID:             uuid.New(),
		DocumentNumber: number,
		DocumentDate:   date,
		DueDate:        due,
		Total:          dec(balance),
		Balance:        dec(balance),
		Currency:       "EUR",
	}
}

func TestFIFOAllocationStrategy(t *testing.T) {
	s := NewFIFOAllocationStrategy()
	assert.Equal(t, "fifo", s.Name())
	assert.Equal(t, strategy.StrategyTypeAllocation, s.Type())
	assert.True(t, s.SupportsPartialAllocation())

	inv3 := openInvoice("INV-003", day(2024, 3, 1), nil, "300.00")
	inv1 := openInvoice("INV-001", day(2024, 1, 1), nil, "100.00")
	inv2b := openInvoice("INV-002B", day(2024, 2, 1), nil, "200.00")
	inv2a := openInvoice("INV-002A", day(2024, 2, 1), nil, "50.00")

	t.Run("oldest first with number tie-break", func(t *testing.T) {
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("400.00"),
		}, []strategy.OpenInvoice{inv3, inv2b, inv1, inv2a})
		require.NoError(t, err)

		require.Len(t, result.Allocations, 4)
		assert.Equal(t, "INV-001", result.Allocations[0].DocumentNumber)
		assert.Equal(t, "INV-002A", result.Allocations[1].DocumentNumber)
		assert.Equal(t, "INV-002B", result.Allocations[2].DocumentNumber)
		assert.True(t, result.Allocations[2].Amount.Equal(dec("200.00")))
		assert.Equal(t, "INV-003", result.Allocations[3].DocumentNumber)
		assert.True(t, result.Allocations[3].Amount.Equal(dec("50.00")))
		assert.True(t, result.Allocations[3].BalanceAfter.Equal(dec("250.00")))
		assert.True(t, result.TotalAllocated.Equal(dec("400.00")))
		assert.True(t, result.Remaining.IsZero())
	})

	t.Run("partial fill of last invoice", func(t *testing.T) {
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("120.00"),
		}, []strategy.OpenInvoice{inv2a, inv1})
		require.NoError(t, err)

		require.Len(t, result.Allocations, 2)
		last := result.Allocations[1]
		assert.True(t, last.Amount.Equal(dec("20.00")))
		assert.True(t, last.BalanceAfter.Equal(dec("30.00")))
		assert.True(t, result.Remaining.IsZero())
	})

	t.Run("single invoice with excess", func(t *testing.T) {
		inv := openInvoice("INV-010", day(2024, 1, 1), nil, "1190.00")
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("1500.00"),
		}, []strategy.OpenInvoice{inv})
		require.NoError(t, err)

		require.Len(t, result.Allocations, 1)
		assert.True(t, result.Allocations[0].Amount.Equal(dec("1190.00")))
		assert.True(t, result.Remaining.Equal(dec("310.00")))
	})

	t.Run("does not reorder the caller's slice", func(t *testing.T) {
		input := []strategy.OpenInvoice{inv3, inv1}
		_, err := s.Allocate(context.Background(), strategy.AllocationContext{PaymentAmount: dec("1")}, input)
		require.NoError(t, err)
		assert.Equal(t, "INV-003", input[0].DocumentNumber)
	})
}

func TestDueDateAllocationStrategy(t *testing.T) {
	s := NewDueDateAllocationStrategy()
	paymentDate := day(2024, 6, 1)

	// 31 days, 92 days, not yet due, and a 92-day tie on an older document
	due1 := day(2024, 5, 1)
	due2 := day(2024, 3, 1)
	due3 := day(2024, 7, 1)
	dueTie := day(2024, 3, 1)

	notDue := openInvoice("INV-A", day(2024, 5, 20), &due3, "100.00")
	overdue31 := openInvoice("INV-B", day(2024, 4, 1), &due1, "100.00")
	overdue92 := openInvoice("INV-C", day(2024, 2, 1), &due2, "100.00")
	overdue92Older := openInvoice("INV-D", day(2024, 1, 15), &dueTie, "100.00")

	result, err := s.Allocate(context.Background(), strategy.AllocationContext{
		PaymentAmount: dec("350.00"),
		PaymentDate:   paymentDate,
	}, []strategy.OpenInvoice{notDue, overdue31, overdue92, overdue92Older})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 4)
	numbers := []string{}
	for _, a := range result.Allocations {
		numbers = append(numbers, a.DocumentNumber)
	}
	assert.Equal(t, []string{"INV-D", "INV-C", "INV-B", "INV-A"}, numbers)
	assert.True(t, result.Allocations[3].Amount.Equal(dec("50.00")))
	assert.True(t, result.Remaining.IsZero())
}

func TestManualAllocationStrategy(t *testing.T) {
	s := NewManualAllocationStrategy()
	inv1 := openInvoice("INV-001", day(2024, 1, 1), nil, "100.00")
	inv2 := openInvoice("INV-002", day(2024, 2, 1), nil, "200.00")
	invoices := []strategy.OpenInvoice{inv1, inv2}

	t.Run("caller order and exact amounts", func(t *testing.T) {
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("250.00"),
			Manual: []strategy.ManualAllocation{
				{DocumentID: inv2.ID, Amount: dec("150.00")},
				{DocumentID: inv1.ID, Amount: dec("40.00")},
			},
		}, invoices)
		require.NoError(t, err)

		require.Len(t, result.Allocations, 2)
		assert.Equal(t, inv2.ID, result.Allocations[0].DocumentID)
		assert.True(t, result.Allocations[1].BalanceAfter.Equal(dec("60.00")))
		assert.True(t, result.Remaining.Equal(dec("60.00")))
		assert.Empty(t, result.Skipped)
	})

	t.Run("non-open documents are skipped", func(t *testing.T) {
		unknown := uuid.New()
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("100.00"),
			Manual: []strategy.ManualAllocation{
				{DocumentID: unknown, Amount: dec("10.00")},
				{DocumentID: inv1.ID, Amount: dec("10.00")},
			},
		}, invoices)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{unknown}, result.Skipped)
		assert.Len(t, result.Allocations, 1)
	})

	t.Run("amounts above balance are passed through", func(t *testing.T) {
		result, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("100.05"),
			Manual:        []strategy.ManualAllocation{{DocumentID: inv1.ID, Amount: dec("100.05")}},
		}, invoices)
		require.NoError(t, err)
		assert.True(t, result.Allocations[0].BalanceAfter.Equal(dec("-0.05")))
	})

	t.Run("total above payment", func(t *testing.T) {
		_, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("100.00"),
			Manual: []strategy.ManualAllocation{
				{DocumentID: inv1.ID, Amount: dec("60.00")},
				{DocumentID: inv2.ID, Amount: dec("60.00")},
			},
		}, invoices)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "ALLOCATION_EXCEEDS_PAYMENT", de.Code)
	})

	t.Run("rejects non-positive and duplicate entries", func(t *testing.T) {
		_, err := s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("100.00"),
			Manual:        []strategy.ManualAllocation{{DocumentID: inv1.ID, Amount: decimal.Zero}},
		}, invoices)
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		_, err = s.Allocate(context.Background(), strategy.AllocationContext{
			PaymentAmount: dec("100.00"),
			Manual: []strategy.ManualAllocation{
				{DocumentID: inv1.ID, Amount: dec("1")},
				{DocumentID: inv1.ID, Amount: dec("1")},
			},
		}, invoices)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "DUPLICATE_ALLOCATION_TARGET", de.Code)
		assert.Equal(t, "manual[1].document_id", de.Field)
	})

	t.Run("requires at least one entry", func(t *testing.T) {
		_, err := s.Allocate(context.Background(), strategy.AllocationContext{PaymentAmount: dec("1")}, invoices)
		assert.Error(t, err)
	})
}
