package payment

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExcessHandling says what happens to money the invoices did not absorb
type ExcessHandling string

const (
	ExcessNone              ExcessHandling = "none"
	ExcessCustomerAdvance   ExcessHandling = "customer_advance"
	ExcessToleranceWriteoff ExcessHandling = "tolerance_writeoff"
)

// PlannedAllocation is one line of an allocation plan
type PlannedAllocation struct {
	DocumentID        uuid.UUID       `json:"document_id"`
	DocumentNumber    string          `json:"document_number"`
	Amount            decimal.Decimal `json:"amount"`
	ToleranceWriteoff decimal.Decimal `json:"tolerance_writeoff"`
	WriteoffKind      WriteoffKind    `json:"writeoff_kind"`
	BalanceBefore     decimal.Decimal `json:"balance_before"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
}

// AllocationPlan is the proposed distribution of a payment over open invoices
type AllocationPlan struct {
	Method          strategy.AllocationMethod `json:"method"`
	PaymentAmount   decimal.Decimal           `json:"payment_amount"`
	Currency        string                    `json:"currency"`
	Allocations     []PlannedAllocation       `json:"allocations"`
	TotalToInvoices decimal.Decimal           `json:"total_to_invoices"`
	TotalWriteoff   decimal.Decimal           `json:"total_writeoff"`
	ExcessAmount    decimal.Decimal           `json:"excess_amount"`
	ExcessHandling  ExcessHandling            `json:"excess_handling"`
	// Skipped lists manual targets that were not open invoices
	Skipped []uuid.UUID `json:"skipped,omitempty"`
}

// BuildPlan turns a strategy result into a plan by applying the tolerance
// policy:
//
//   - a manual amount above the balance is capped to the balance with the
//     overage as an overpayment write-off when within tolerance, otherwise
//     the request fails with OVERPAYMENT;
//   - when the payment is exhausted, the residual balance of the last
//     partially filled invoice is written off when within tolerance;
//   - when exactly one invoice is in the plan and it is fully settled, an
//     excess within tolerance is written off instead of becoming an advance.
func BuildPlan(
	method strategy.AllocationMethod,
	paymentAmount decimal.Decimal,
	currency string,
	result strategy.AllocationResult,
	tolerance strategy.TolerancePolicy,
) (*AllocationPlan, error) {
	plan := &AllocationPlan{
		Method:          method,
		PaymentAmount:   paymentAmount,
		Currency:        currency,
		Allocations:     make([]PlannedAllocation, 0, len(result.Allocations)),
		TotalToInvoices: decimal.Zero,
		TotalWriteoff:   decimal.Zero,
		Skipped:         result.Skipped,
	}

	overpaid := decimal.Zero
	for i, a := range result.Allocations {
		line := PlannedAllocation{
			DocumentID:        a.DocumentID,
			DocumentNumber:    a.DocumentNumber,
			Amount:            a.Amount,
			ToleranceWriteoff: decimal.Zero,
			WriteoffKind:      WriteoffNone,
			BalanceBefore:     a.BalanceBefore,
			BalanceAfter:      a.BalanceAfter,
		}
		if a.BalanceAfter.IsNegative() {
			over := a.BalanceAfter.Neg()
			if !tolerance.Covers(over, a.BalanceBefore) {
				return nil, shared.NewValidationError("OVERPAYMENT",
					fmt.Sprintf("Allocation %s to %s exceeds its balance %s",
						a.Amount.StringFixed(2), a.DocumentNumber, a.BalanceBefore.StringFixed(2)),
					fmt.Sprintf("allocations[%d].amount", i))
			}
			line.Amount = a.BalanceBefore
			line.ToleranceWriteoff = over
			line.WriteoffKind = WriteoffOverpayment
			line.BalanceAfter = decimal.Zero
			overpaid = overpaid.Add(over)
		}
		plan.Allocations = append(plan.Allocations, line)
		plan.TotalToInvoices = plan.TotalToInvoices.Add(line.Amount)
	}

	remaining := paymentAmount.Sub(plan.TotalToInvoices).Sub(overpaid)

	if remaining.IsZero() {
		for i := len(plan.Allocations) - 1; i >= 0; i-- {
			line := &plan.Allocations[i]
			if !line.BalanceAfter.IsPositive() {
				continue
			}
			if tolerance.Covers(line.BalanceAfter, line.BalanceBefore) {
				line.ToleranceWriteoff = line.BalanceAfter
				line.WriteoffKind = WriteoffUnderpayment
				line.BalanceAfter = decimal.Zero
			}
			break
		}
	}

	if remaining.IsPositive() && len(plan.Allocations) == 1 {
		line := &plan.Allocations[0]
		if line.BalanceAfter.IsZero() && line.WriteoffKind == WriteoffNone &&
			tolerance.Covers(remaining, line.BalanceBefore) {
			line.ToleranceWriteoff = remaining
			line.WriteoffKind = WriteoffOverpayment
			overpaid = overpaid.Add(remaining)
			remaining = decimal.Zero
		}
	}

	for _, line := range plan.Allocations {
		plan.TotalWriteoff = plan.TotalWriteoff.Add(line.ToleranceWriteoff)
	}

	plan.ExcessAmount = remaining
	switch {
	case remaining.IsPositive():
		plan.ExcessHandling = ExcessCustomerAdvance
	case overpaid.IsPositive():
		plan.ExcessHandling = ExcessToleranceWriteoff
	default:
		plan.ExcessHandling = ExcessNone
	}
	return plan, nil
}

// HasAllocations reports whether any invoice receives money
func (p *AllocationPlan) HasAllocations() bool {
	return len(p.Allocations) > 0
}

// WriteoffsByKind sums the tolerance write-offs of one kind
func (p *AllocationPlan) WriteoffsByKind(kind WriteoffKind) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range p.Allocations {
		if a.WriteoffKind == kind {
			sum = sum.Add(a.ToleranceWriteoff)
		}
	}
	return sum
}
