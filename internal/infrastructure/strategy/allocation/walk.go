package allocation

import (
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// walk allocates min(remaining, balance) to each invoice in the given order
// until the payment is exhausted
func walk(allocCtx strategy.AllocationContext, ordered []strategy.OpenInvoice) strategy.AllocationResult {
	remaining := allocCtx.PaymentAmount
	allocations := make([]strategy.Allocation, 0)
	totalAllocated := decimal.Zero

	for _, invoice := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !invoice.Balance.IsPositive() {
			continue
		}

		amount := decimal.Min(remaining, invoice.Balance)
		allocations = append(allocations, strategy.Allocation{
			DocumentID:     invoice.ID,
			DocumentNumber: invoice.DocumentNumber,
			Amount:         amount,
			BalanceBefore:  invoice.Balance,
			BalanceAfter:   invoice.Balance.Sub(amount),
		})

		remaining = remaining.Sub(amount)
		totalAllocated = totalAllocated.Add(amount)
	}

	return strategy.AllocationResult{
		Allocations:    allocations,
		TotalAllocated: totalAllocated,
		Remaining:      remaining,
	}
}
