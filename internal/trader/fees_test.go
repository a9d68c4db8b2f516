package trader

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDynamicFeeCurve(t *testing.T) {
	f := FeeModel{Dynamic: true}
	notional := decimal.NewFromInt(100)

	// Peak at p=0.5: 100 * 0.25 * (0.25)^2 = 1.5625.
	mid := f.Fee(notional, decimal.RequireFromString("0.5"))
	if !mid.Equal(decimal.RequireFromString("1.5625")) {
		t.Errorf("fee at 0.5 = %s, want 1.5625", mid)
	}

	// The curve vanishes toward the extremes.
	edge := f.Fee(notional, decimal.RequireFromString("0.95"))
	if edge.GreaterThanOrEqual(mid) {
		t.Errorf("fee at 0.95 = %s, want below mid-curve %s", edge, mid)
	}
	zero := f.Fee(notional, decimal.NewFromInt(1))
	if !zero.IsZero() {
		t.Errorf("fee at 1.0 = %s, want 0", zero)
	}
}

func TestFlatFee(t *testing.T) {
	f := FeeModel{FlatPct: decimal.NewFromInt(1)}

	got := f.Fee(decimal.NewFromInt(50), decimal.RequireFromString("0.6"))
	if !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("flat fee = %s, want 0.5", got)
	}
}

func TestFeeOnNonPositiveNotional(t *testing.T) {
	f := FeeModel{Dynamic: true}
	if !f.Fee(decimal.Zero, decimal.RequireFromString("0.5")).IsZero() {
		t.Error("zero notional should cost nothing")
	}
	if !f.Fee(decimal.NewFromInt(-5), decimal.RequireFromString("0.5")).IsZero() {
		t.Error("negative notional should cost nothing")
	}
}
