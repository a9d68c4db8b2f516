package trader

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/config"
	"github.com/web3guy0/polypaper/internal/polymarket"
	"github.com/web3guy0/polypaper/internal/snapshot"
	"github.com/web3guy0/polypaper/internal/strategy"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		PaperBalance:               decimal.NewFromInt(100),
		StopLossRoiPct:             40,
		TakeProfitRoiPct:           80,
		MomentumTakeProfitRoiPct:   50,
		MaxConcurrentPositions:     2,
		DailyLossLimitPct:          30,
		EntryCooldownSeconds:       30,
		StopLossGracePeriodSeconds: 15,
		CooldownMinutes:            5,
		MinEntryPrice:              0.10,
		MaxEntryPrice:              0.95,
		MaxConsecutiveLosses:       3,
		ResolutionThreshold:        0.95,
		TimeGuardMinutes:           2,
		UseKelly:                   true,
		KellyFraction:              0.5,
		MinKellyBet:                decimal.NewFromInt(3),
		MaxKellyBet:                decimal.NewFromInt(5),
		UsePolymarketDynamicFees:   true,
		FeePct:                     1.0,
		MinBet:                     decimal.NewFromInt(2),
	}
}

func newTestTrader(t *testing.T, cfg *config.Config) *Trader {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	tr, err := New(cfg, store)
	if err != nil {
		t.Fatalf("trader init: %v", err)
	}
	tr.nowFn = func() time.Time { return testNow }
	tr.state.LastDailyReset = testNow.UTC().Format(dayLayout)
	return tr
}

func ptr(v float64) *float64 { return &v }

func testSnap(up, down, timeLeftMin float64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		TsMs:      testNow.UnixMilli(),
		Spot:      100_100,
		Chainlink: 100_050,
		Strike:    100_000,
		StrikeOK:  true,
		Market: &polymarket.Market{
			Slug:      "btc-updown-1",
			Question:  "Bitcoin Up or Down?",
			EndDateMs: testNow.Add(5 * time.Minute).UnixMilli(),
		},
		Odds:        polymarket.Odds{Up: ptr(up), Down: ptr(down)},
		TimeLeftMin: timeLeftMin,
		Trend:       snapshot.Rising,
	}
}

func enterRec(side strategy.Side, prob float64) strategy.Recommendation {
	return strategy.Recommendation{
		Action:      strategy.Enter,
		Side:        side,
		Strategy:    strategy.Momentum,
		Confidence:  strategy.High,
		Probability: prob,
	}
}

func openPosition(tr *Trader, side strategy.Side, entryPrice float64, stake decimal.Decimal) *Position {
	pos := &Position{
		ID:          "test-" + string(side),
		MarketSlug:  "btc-updown-1",
		Side:        side,
		Strategy:    strategy.Momentum,
		EntryPrice:  entryPrice,
		Stake:       stake,
		Shares:      stake.Div(decimal.NewFromFloat(entryPrice)),
		Strike:      100_000,
		EntryTime:   testNow.Add(-time.Minute),
		MarketEndMs: testNow.Add(5 * time.Minute).UnixMilli(),
	}
	tr.state.Positions = append(tr.state.Positions, pos)
	return pos
}

func TestTimeGuardFavoredHold(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.55, decimal.NewFromInt(5))

	// 1.8 min left, price 0.58: favored, must ride.
	rep := tr.Tick(testSnap(0.58, 0.42, 1.8), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 0 {
		t.Fatalf("closed %v, want hold", rep.Closed)
	}
	if n := len(tr.state.Positions); n != 1 {
		t.Errorf("positions = %d, want 1", n)
	}
}

func TestTimeGuardExit(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Down, 0.55, decimal.NewFromInt(5))

	// DOWN at 0.30 with a rising trend: not favored, not hopeful, not a
	// write-off. The guard salvages it.
	rep := tr.Tick(testSnap(0.70, 0.30, 1.5), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonTimeGuard {
		t.Fatalf("closed = %+v, want one TIME_GUARD exit", rep.Closed)
	}
}

func TestTimeGuardNearLossHold(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	pos := openPosition(tr, strategy.Down, 0.55, decimal.NewFromInt(5))
	pos.EntryTime = testNow.Add(-5 * time.Second) // still inside stop-loss grace

	// Price 0.04 <= 1-resolutionThreshold: exempt from the guard exit,
	// and the grace period keeps the stop loss quiet.
	rep := tr.Tick(testSnap(0.96, 0.04, 1.5), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 0 {
		t.Fatalf("closed %v, want near-loss hold", rep.Closed)
	}
}

func TestTimeGuardHoldDoesNotMaskStopLoss(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.90, decimal.NewFromInt(5))

	// Favored at 0.54, so the guard exit is exempt, but ROI is -40% and
	// the stop loss still applies inside the guard window.
	rep := tr.Tick(testSnap(0.54, 0.46, 1.8), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonStopLoss {
		t.Fatalf("closed = %+v, want STOP_LOSS through the favored hold", rep.Closed)
	}
}

func TestTimeGuardHoldDoesNotMaskTakeProfit(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.30, decimal.NewFromInt(5))

	// Favored at 0.58 with ROI +93%: the momentum take profit fires
	// inside the guard window.
	rep := tr.Tick(testSnap(0.58, 0.42, 1.8), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonTakeProfit {
		t.Fatalf("closed = %+v, want TAKE_PROFIT through the favored hold", rep.Closed)
	}
}

func TestExpirySettlementWin(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.ConsecutiveLosses = 2
	pos := openPosition(tr, strategy.Up, 0.45, decimal.NewFromInt(5))
	pos.MarketEndMs = testNow.Add(-time.Second).UnixMilli()

	balanceBefore := tr.state.Balance
	// Chainlink 100 050 > strike 100 000: UP wins, settles at 1, no fee.
	rep := tr.Tick(testSnap(0.99, 0.01, 14), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 1 {
		t.Fatalf("closed = %d, want 1", len(rep.Closed))
	}
	res := rep.Closed[0]
	if res.Reason != ReasonExpiryWin || !res.Won {
		t.Errorf("result = %+v, want EXPIRY_WIN", res)
	}

	wantPnL := pos.Shares.Sub(pos.Stake).Sub(pos.Fee)
	if !res.PnL.Equal(wantPnL) {
		t.Errorf("pnl = %s, want shares - stake - fee = %s", res.PnL, wantPnL)
	}
	wantBalance := balanceBefore.Add(pos.Shares)
	if !tr.state.Balance.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s (full face value, no exit fee)", tr.state.Balance, wantBalance)
	}
	if tr.state.ConsecutiveLosses != 0 {
		t.Errorf("consecutiveLosses = %d, want reset to 0", tr.state.ConsecutiveLosses)
	}
}

func TestExpirySettlementTieGoesUp(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	pos := openPosition(tr, strategy.Up, 0.45, decimal.NewFromInt(5))
	pos.MarketEndMs = testNow.Add(-time.Second).UnixMilli()

	// Reference price exactly at the strike settles UP as the winner.
	snap := testSnap(0.50, 0.50, 14)
	snap.Chainlink = 100_000

	rep := tr.Tick(snap, strategy.Recommendation{Action: strategy.NoTrade})
	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonExpiryWin {
		t.Fatalf("closed = %+v, want EXPIRY_WIN on an exact tie", rep.Closed)
	}
}

func TestExpirySettlementLoss(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	pos := openPosition(tr, strategy.Down, 0.45, decimal.NewFromInt(5))
	pos.MarketEndMs = testNow.Add(-time.Second).UnixMilli()

	rep := tr.Tick(testSnap(0.99, 0.01, 14), strategy.Recommendation{Action: strategy.NoTrade})

	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonExpiryLoss {
		t.Fatalf("closed = %+v, want EXPIRY_LOSS", rep.Closed)
	}
	if tr.state.ConsecutiveLosses != 1 {
		t.Errorf("consecutiveLosses = %d, want 1", tr.state.ConsecutiveLosses)
	}
	if !tr.state.DailyLoss.Equal(decimal.NewFromInt(5)) {
		t.Errorf("dailyLoss = %s, want 5 (stake lost)", tr.state.DailyLoss)
	}
}

func TestDailyLossCap(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.DailyLoss = decimal.RequireFromString("30.01")

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))

	if rep.Opened != nil {
		t.Fatal("entry should be blocked by the daily loss cap")
	}
	if rep.RejectReason != DailyLossReason {
		t.Errorf("reason = %q, want %q", rep.RejectReason, DailyLossReason)
	}
}

func TestDailyLossCapTracksCurrentBalance(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.Balance = decimal.NewFromInt(50)
	tr.state.DailyLoss = decimal.NewFromInt(16)

	// Cap is 30% of the current 50, i.e. 15, not 30% of the starting 100.
	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))

	if rep.Opened != nil || rep.RejectReason != DailyLossReason {
		t.Errorf("got %v %q, want daily loss cap at 15 on a drawn-down balance", rep.Opened, rep.RejectReason)
	}
}

func TestKellyClamp(t *testing.T) {
	tr := newTestTrader(t, testConfig())

	// f = (0.70-0.50)/(1-0.50) = 0.40; raw = 100*0.5*0.40 = 20 -> 5.
	rep := tr.Tick(testSnap(0.50, 0.50, 5), enterRec(strategy.Up, 0.70))

	if rep.Opened == nil {
		t.Fatalf("entry rejected: %s", rep.RejectReason)
	}
	if !rep.Opened.Stake.Equal(decimal.NewFromInt(5)) {
		t.Errorf("stake = %s, want 5 (clamped)", rep.Opened.Stake)
	}
}

func TestKellyFloor(t *testing.T) {
	tr := newTestTrader(t, testConfig())

	// f = (0.52-0.50)/0.50 = 0.04; raw = 2 -> floored to 3.
	rep := tr.Tick(testSnap(0.50, 0.50, 5), enterRec(strategy.Up, 0.52))

	if rep.Opened == nil {
		t.Fatalf("entry rejected: %s", rep.RejectReason)
	}
	if !rep.Opened.Stake.Equal(decimal.NewFromInt(3)) {
		t.Errorf("stake = %s, want 3 (floored)", rep.Opened.Stake)
	}
}

func TestKellyFloorsWithoutEdge(t *testing.T) {
	tr := newTestTrader(t, testConfig())

	// Model probability below the price: f is negative, the clamp still
	// floors the stake at minKellyBet.
	rep := tr.Tick(testSnap(0.50, 0.50, 5), enterRec(strategy.Up, 0.40))

	if rep.Opened == nil {
		t.Fatalf("entry rejected: %s", rep.RejectReason)
	}
	if !rep.Opened.Stake.Equal(decimal.NewFromInt(3)) {
		t.Errorf("stake = %s, want minKellyBet 3", rep.Opened.Stake)
	}
}

func TestFixedSizingWhenKellyOff(t *testing.T) {
	cases := []struct {
		tag   strategy.Tag
		stake int64
	}{
		{strategy.LateWindow, 5},
		{strategy.Momentum, 4},
		{strategy.MeanReversion, 3},
		{strategy.Sniper, 2}, // fallback minBet
	}

	for _, tc := range cases {
		cfg := testConfig()
		cfg.UseKelly = false
		tr := newTestTrader(t, cfg)

		rec := enterRec(strategy.Up, 0.70)
		rec.Strategy = tc.tag
		rep := tr.Tick(testSnap(0.50, 0.50, 5), rec)

		if rep.Opened == nil {
			t.Fatalf("%s: entry rejected: %s", tc.tag, rep.RejectReason)
		}
		if !rep.Opened.Stake.Equal(decimal.NewFromInt(tc.stake)) {
			t.Errorf("%s stake = %s, want %d", tc.tag, rep.Opened.Stake, tc.stake)
		}
	}
}

func TestPositionConservation(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	before := tr.state.Balance

	rep := tr.Tick(testSnap(0.50, 0.50, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened == nil {
		t.Fatalf("entry rejected: %s", rep.RejectReason)
	}
	pos := rep.Opened

	spent := before.Sub(tr.state.Balance)
	if !spent.Equal(pos.Stake.Add(pos.Fee)) {
		t.Errorf("balance decreased by %s, want stake+fee = %s", spent, pos.Stake.Add(pos.Fee))
	}
	if !pos.Shares.Equal(pos.Stake.Div(decimal.NewFromFloat(pos.EntryPrice))) {
		t.Errorf("shares = %s, want stake/price", pos.Shares)
	}
}

func TestEntryPriceBand(t *testing.T) {
	tr := newTestTrader(t, testConfig())

	rep := tr.Tick(testSnap(0.97, 0.03, 5), enterRec(strategy.Up, 0.99))
	if rep.Opened != nil || rep.RejectReason != "entry_price_out_of_band" {
		t.Errorf("got %v %q, want price band rejection", rep.Opened, rep.RejectReason)
	}

	rep = tr.Tick(testSnap(0.05, 0.95, 5), enterRec(strategy.Up, 0.50))
	if rep.Opened != nil || rep.RejectReason != "entry_price_out_of_band" {
		t.Errorf("got %v %q, want price band rejection", rep.Opened, rep.RejectReason)
	}
}

func TestCircuitBreaker(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.ConsecutiveLosses = 3

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened != nil || rep.RejectReason != "circuit_breaker" {
		t.Errorf("got %v %q, want circuit breaker rejection", rep.Opened, rep.RejectReason)
	}
}

func TestDuplicateGuard(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.55, decimal.NewFromInt(5))

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened != nil || rep.RejectReason != "duplicate_position" {
		t.Errorf("got %v %q, want duplicate rejection", rep.Opened, rep.RejectReason)
	}
}

func TestFlipClosesOpposite(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Down, 0.55, decimal.NewFromInt(5))

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))

	if rep.Opened == nil {
		t.Fatalf("entry rejected: %s", rep.RejectReason)
	}
	for _, pos := range tr.state.Positions {
		if pos.Side == strategy.Down {
			t.Errorf("opposite-side position survived the flip: %+v", pos)
		}
	}
	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonFlipClose {
		t.Errorf("report closed = %+v, want the FLIP_CLOSE result", rep.Closed)
	}
	found := false
	for _, res := range tr.state.RecentResults {
		if res.Reason == ReasonFlipClose {
			found = true
		}
	}
	if !found {
		t.Error("flip close not recorded in recent results")
	}
}

func TestCapacityCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPositions = 0
	tr := newTestTrader(t, cfg)

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened != nil || rep.RejectReason != "max_positions" {
		t.Errorf("got %v %q, want capacity rejection", rep.Opened, rep.RejectReason)
	}
}

func TestStopLossAndCooldown(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.50, decimal.NewFromInt(5))

	// ROI = (0.25-0.50)/0.50 = -50% <= -40%, grace long past.
	rep := tr.Tick(testSnap(0.25, 0.75, 5), strategy.Recommendation{Action: strategy.NoTrade})
	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonStopLoss {
		t.Fatalf("closed = %+v, want STOP_LOSS", rep.Closed)
	}
	if tr.state.LastStopLossTime.IsZero() {
		t.Fatal("stop loss time not recorded")
	}

	// The post-stop-loss cooldown now blocks fresh entries.
	rep = tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened != nil || rep.RejectReason != "stop_loss_cooldown" {
		t.Errorf("got %v %q, want cooldown rejection", rep.Opened, rep.RejectReason)
	}
}

func TestStopLossGracePeriod(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	pos := openPosition(tr, strategy.Up, 0.50, decimal.NewFromInt(5))
	pos.EntryTime = testNow.Add(-5 * time.Second) // inside the grace window

	rep := tr.Tick(testSnap(0.25, 0.75, 5), strategy.Recommendation{Action: strategy.NoTrade})
	if len(rep.Closed) != 0 {
		t.Errorf("closed %v, want grace-period hold", rep.Closed)
	}
}

func TestMomentumTakeProfit(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	openPosition(tr, strategy.Up, 0.50, decimal.NewFromInt(5))

	// ROI = (0.80-0.50)/0.50 = +60% >= 50% momentum target.
	rep := tr.Tick(testSnap(0.80, 0.20, 5), strategy.Recommendation{Action: strategy.NoTrade})
	if len(rep.Closed) != 1 || rep.Closed[0].Reason != ReasonTakeProfit {
		t.Fatalf("closed = %+v, want TAKE_PROFIT", rep.Closed)
	}
	if !rep.Closed[0].Won {
		t.Error("take profit should record a win")
	}
}

func TestEntryCooldown(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.LastEntryTime = testNow.Add(-10 * time.Second)

	rep := tr.Tick(testSnap(0.60, 0.40, 5), enterRec(strategy.Up, 0.70))
	if rep.Opened != nil || rep.RejectReason != "entry_cooldown" {
		t.Errorf("got %v %q, want entry cooldown rejection", rep.Opened, rep.RejectReason)
	}
}

func TestDailyReset(t *testing.T) {
	tr := newTestTrader(t, testConfig())
	tr.state.DailyLoss = decimal.NewFromInt(12)
	tr.state.LastDailyReset = testNow.AddDate(0, 0, -1).UTC().Format(dayLayout)

	tr.Tick(testSnap(0.60, 0.40, 5), strategy.Recommendation{Action: strategy.NoTrade})

	if !tr.state.DailyLoss.IsZero() {
		t.Errorf("dailyLoss = %s, want 0 after reset", tr.state.DailyLoss)
	}
	if tr.state.LastDailyReset != testNow.UTC().Format(dayLayout) {
		t.Errorf("lastDailyReset = %s, want today", tr.state.LastDailyReset)
	}
}

func TestRecentResultsRing(t *testing.T) {
	tr := newTestTrader(t, testConfig())

	for i := 0; i < 13; i++ {
		pos := &Position{
			ID:         "p",
			MarketSlug: "btc-updown-1",
			Side:       strategy.Up,
			Strategy:   strategy.Momentum,
			EntryPrice: 0.50,
			Stake:      decimal.NewFromInt(3),
			Shares:     decimal.NewFromInt(6),
		}
		tr.close(pos, 0.60, ReasonTakeProfit, false, testNow)
	}

	if n := len(tr.state.RecentResults); n != 10 {
		t.Errorf("recent results = %d, want capped at 10", n)
	}
}
