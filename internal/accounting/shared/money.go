package shared

import "github.com/shopspring/decimal"

// BalanceTolerance is the rounding allowance applied when comparing debit and
// credit totals. One cent covers penny rounding from upstream systems.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// WithinTolerance reports whether a debit/credit difference is small enough
// to treat as balanced.
func WithinTolerance(diff decimal.Decimal) bool {
	return diff.Abs().LessThan(BalanceTolerance)
}
