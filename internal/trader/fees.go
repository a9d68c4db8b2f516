package trader

import "github.com/shopspring/decimal"

var (
	quarter = decimal.RequireFromString("0.25")
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// FeeModel prices the taker fee on a fill.
type FeeModel struct {
	Dynamic bool
	FlatPct decimal.Decimal
}

// Fee returns the fee on a fill of the given notional at the given
// share price. The dynamic model mirrors Polymarket's curve,
// notional * 0.25 * (p*(1-p))^2, which peaks at p=0.5 and vanishes at
// the extremes; the flat model charges FlatPct percent of notional.
// Expiry settlement pays out at 1 or 0 with no fee, so callers skip
// this entirely on settlement.
func (f FeeModel) Fee(notional, price decimal.Decimal) decimal.Decimal {
	if notional.IsNegative() || notional.IsZero() {
		return decimal.Zero
	}
	if f.Dynamic {
		pq := price.Mul(one.Sub(price))
		return notional.Mul(quarter).Mul(pq).Mul(pq)
	}
	return notional.Mul(f.FlatPct).Div(hundred)
}
