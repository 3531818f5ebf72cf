package strategy

import (
	"github.com/shopspring/decimal"
)

// Default tolerance settings used when a tenant has none configured
var (
	DefaultTolerancePercentage = decimal.RequireFromString("0.005")
	DefaultToleranceMaxAmount  = decimal.RequireFromString("0.50")
)

// TolerancePolicy bounds the rounding difference that may be written off
// instead of leaving a residual balance or a tiny advance
type TolerancePolicy struct {
	Percentage decimal.Decimal
	MaxAmount  decimal.Decimal
}

// DefaultTolerancePolicy returns the system default policy (0.5% / 0.50)
func DefaultTolerancePolicy() TolerancePolicy {
	return TolerancePolicy{
		Percentage: DefaultTolerancePercentage,
		MaxAmount:  DefaultToleranceMaxAmount,
	}
}

// Threshold returns max(percentage × balance, max_amount)
func (p TolerancePolicy) Threshold(balance decimal.Decimal) decimal.Decimal {
	return decimal.Max(p.Percentage.Mul(balance.Abs()), p.MaxAmount)
}

// Covers reports whether |difference| is within the threshold for balance.
// A zero difference is never a write-off.
func (p TolerancePolicy) Covers(difference, balance decimal.Decimal) bool {
	if difference.IsZero() {
		return false
	}
	return difference.Abs().LessThanOrEqual(p.Threshold(balance))
}

// Validate rejects negative settings
func (p TolerancePolicy) Validate() error {
	if p.Percentage.IsNegative() || p.MaxAmount.IsNegative() {
		return errNegativeTolerance
	}
	return nil
}
