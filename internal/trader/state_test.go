package trader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/strategy"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path)

	st := &PaperState{
		Balance:           decimal.RequireFromString("87.45"),
		DailyLoss:         decimal.RequireFromString("12.55"),
		LastDailyReset:    "2026-08-24",
		ConsecutiveLosses: 2,
		LastStopLossTime:  time.Date(2026, 8, 24, 11, 30, 0, 0, time.UTC),
		Positions: []*Position{{
			ID:          "abc",
			MarketSlug:  "btc-updown-1",
			Side:        strategy.Up,
			Strategy:    strategy.Momentum,
			EntryPrice:  0.55,
			Stake:       decimal.NewFromInt(5),
			Shares:      decimal.RequireFromString("9.0909"),
			Fee:         decimal.RequireFromString("0.07"),
			Strike:      100_000,
			EntryTime:   time.Date(2026, 8, 24, 11, 45, 0, 0, time.UTC),
			MarketEndMs: 1_787_000_000_000,
		}},
		RecentResults: []TradeResult{{
			MarketSlug: "btc-updown-0",
			Side:       strategy.Down,
			Strategy:   strategy.Sniper,
			Won:        true,
			PnL:        decimal.RequireFromString("3.21"),
			Reason:     ReasonExpiryWin,
			ClosedAt:   time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC),
		}},
	}

	store.Save(st)

	got, err := store.Load(decimal.NewFromInt(100), time.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Balance.Equal(st.Balance) {
		t.Errorf("balance = %s, want %s", got.Balance, st.Balance)
	}
	if !got.DailyLoss.Equal(st.DailyLoss) {
		t.Errorf("dailyLoss = %s, want %s", got.DailyLoss, st.DailyLoss)
	}
	if got.LastDailyReset != st.LastDailyReset {
		t.Errorf("lastDailyReset = %s, want %s", got.LastDailyReset, st.LastDailyReset)
	}
	if got.ConsecutiveLosses != 2 {
		t.Errorf("consecutiveLosses = %d, want 2", got.ConsecutiveLosses)
	}
	if len(got.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(got.Positions))
	}
	pos := got.Positions[0]
	if pos.Side != strategy.Up || pos.EntryPrice != 0.55 || !pos.Stake.Equal(st.Positions[0].Stake) {
		t.Errorf("position round trip mismatch: %+v", pos)
	}
	if pos.MarketEndMs != 1_787_000_000_000 {
		t.Errorf("marketEndMs = %d", pos.MarketEndMs)
	}
	if len(got.RecentResults) != 1 || !got.RecentResults[0].Won {
		t.Errorf("recent results round trip mismatch: %+v", got.RecentResults)
	}
}

func TestLoadMissingFileDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	st, err := store.Load(decimal.NewFromInt(100), now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !st.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want starting 100", st.Balance)
	}
	if st.LastDailyReset != "2026-08-24" {
		t.Errorf("lastDailyReset = %s, want today", st.LastDailyReset)
	}
	if len(st.Positions) != 0 {
		t.Errorf("positions = %d, want none", len(st.Positions))
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path)

	store.Save(newPaperState(decimal.NewFromInt(100), time.Now()))

	// No temp file left behind after a successful save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file missing: %v", err)
	}
}
