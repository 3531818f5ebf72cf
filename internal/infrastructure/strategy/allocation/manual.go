package allocation

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualAllocationStrategy allocates exactly the caller-specified amounts in
// the caller's order. Amounts are not capped to the invoice balance; the
// planner decides whether an overage is a tolerance write-off or an error.
type ManualAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewManualAllocationStrategy creates a new manual allocation strategy
func NewManualAllocationStrategy() *ManualAllocationStrategy {
	return &ManualAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(strategy.AllocationMethodManual),
			strategy.StrategyTypeAllocation,
			"Allocate caller-specified amounts to caller-selected invoices",
		),
	}
}

// Method returns manual
func (s *ManualAllocationStrategy) Method() strategy.AllocationMethod {
	return strategy.AllocationMethodManual
}

// Allocate walks allocCtx.Manual. Targets that are not open invoices are
// reported in Skipped rather than failing the whole request.
func (s *ManualAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	invoices []strategy.OpenInvoice,
) (strategy.AllocationResult, error) {
	if len(allocCtx.Manual) == 0 {
		return strategy.AllocationResult{}, shared.NewValidationError(
			"MANUAL_ALLOCATIONS_REQUIRED", "Manual allocation requires at least one document", "manual")
	}

	open := make(map[uuid.UUID]strategy.OpenInvoice, len(invoices))
	for _, inv := range invoices {
		if inv.Balance.IsPositive() {
			open[inv.ID] = inv
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(allocCtx.Manual))
	allocations := make([]strategy.Allocation, 0, len(allocCtx.Manual))
	skipped := make([]uuid.UUID, 0)
	total := decimal.Zero

	for i, m := range allocCtx.Manual {
		field := fmt.Sprintf("manual[%d]", i)
		if !m.Amount.IsPositive() {
			return strategy.AllocationResult{}, shared.NewValidationError(
				"INVALID_ALLOCATION_AMOUNT", "Allocation amount must be positive", field+".amount")
		}
		if _, dup := seen[m.DocumentID]; dup {
			return strategy.AllocationResult{}, shared.NewValidationError(
				"DUPLICATE_ALLOCATION_TARGET",
				fmt.Sprintf("Document %s appears more than once", m.DocumentID), field+".document_id")
		}
		seen[m.DocumentID] = struct{}{}

		inv, ok := open[m.DocumentID]
		if !ok {
			skipped = append(skipped, m.DocumentID)
			continue
		}

		allocations = append(allocations, strategy.Allocation{
			DocumentID:     inv.ID,
			DocumentNumber: inv.DocumentNumber,
			Amount:         m.Amount,
			BalanceBefore:  inv.Balance,
			BalanceAfter:   inv.Balance.Sub(m.Amount),
		})
		total = total.Add(m.Amount)
	}

	if total.GreaterThan(allocCtx.PaymentAmount) {
		return strategy.AllocationResult{}, shared.NewValidationError(
			"ALLOCATION_EXCEEDS_PAYMENT",
			fmt.Sprintf("Allocations total %s exceeds payment amount %s",
				total.StringFixed(2), allocCtx.PaymentAmount.StringFixed(2)),
			"manual")
	}

	return strategy.AllocationResult{
		Allocations:    allocations,
		TotalAllocated: total,
		Remaining:      allocCtx.PaymentAmount.Sub(total),
		Skipped:        skipped,
	}, nil
}

// SupportsPartialAllocation returns true
func (s *ManualAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}
