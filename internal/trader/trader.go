// Package trader runs the paper-trading ledger: it turns strategy
// recommendations into simulated positions, enforces the risk gates,
// manages exits and expiry settlement, and persists its state across
// restarts.
package trader

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/config"
	"github.com/web3guy0/polypaper/internal/snapshot"
	"github.com/web3guy0/polypaper/internal/strategy"
)

// Exit and rejection reasons. DailyLossReason is load-bearing for the
// dashboard and notifications, keep the exact text.
const (
	ReasonTimeGuard  = "TIME_GUARD"
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTakeProfit = "TAKE_PROFIT"
	ReasonTimeStop   = "TIME_STOP"
	ReasonFlipClose  = "FLIP_CLOSE"
	ReasonExpiryWin  = "EXPIRY_WIN"
	ReasonExpiryLoss = "EXPIRY_LOSS"

	DailyLossReason = "Daily Loss Limit (%)"
)

// lateWindowTimeGuardMin overrides the time guard for LATE_WINDOW
// positions, which are designed to ride into expiry.
const lateWindowTimeGuardMin = 0.5

// EventType tags ledger events pushed to subscribers.
type EventType string

const (
	EventOpened EventType = "position_opened"
	EventClosed EventType = "position_closed"
)

// Event is one ledger change, consumed by notifiers, storage and the
// dashboard broadcast hub.
type Event struct {
	Type     EventType
	Position Position
	Result   *TradeResult
	Balance  decimal.Decimal
	Time     time.Time
}

// Report summarizes what one Tick did.
type Report struct {
	Opened       *Position
	Closed       []TradeResult
	RejectReason string
}

// Trader is the paper-trading engine. All methods are safe for
// concurrent use; the fast tick reads while the slow tick mutates.
type Trader struct {
	cfg   *config.Config
	fees  FeeModel
	store *FileStore

	mu    sync.Mutex
	state *PaperState

	onEvent func(Event)
	nowFn   func() time.Time
}

// New restores state from the store and returns a ready trader.
func New(cfg *config.Config, store *FileStore) (*Trader, error) {
	t := &Trader{
		cfg: cfg,
		fees: FeeModel{
			Dynamic: cfg.UsePolymarketDynamicFees,
			FlatPct: decimal.NewFromFloat(cfg.FeePct),
		},
		store: store,
		nowFn: time.Now,
	}
	st, err := store.Load(cfg.PaperBalance, t.nowFn())
	if err != nil {
		return nil, err
	}
	t.state = st
	return t, nil
}

// SetEventCallback registers the ledger-event subscriber.
func (t *Trader) SetEventCallback(fn func(Event)) {
	t.mu.Lock()
	t.onEvent = fn
	t.mu.Unlock()
}

// Tick is the slow-cadence pass: daily reset, expiry settlement, exit
// scan, then at most one entry attempt. State is saved at the end.
func (t *Trader) Tick(snap *snapshot.Snapshot, rec strategy.Recommendation) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	var rep Report

	t.dailyReset(now)
	rep.Closed = append(rep.Closed, t.settleExpired(snap, now)...)
	rep.Closed = append(rep.Closed, t.scanExits(snap, now)...)

	if rec.Action == strategy.Enter {
		pos, flips, reason := t.tryEnter(snap, rec, now)
		rep.Closed = append(rep.Closed, flips...)
		rep.Opened, rep.RejectReason = pos, reason
		if reason != "" {
			log.Debug().
				Str("side", string(rec.Side)).
				Str("strategy", string(rec.Strategy)).
				Str("reason", reason).
				Msg("🚫 entry rejected")
		}
	}

	t.store.Save(t.state)
	return rep
}

// dailyReset zeroes the daily loss tally at the UTC day boundary.
func (t *Trader) dailyReset(now time.Time) {
	day := now.UTC().Format(dayLayout)
	if day == t.state.LastDailyReset {
		return
	}
	log.Info().
		Str("day", day).
		Str("previousDailyLoss", t.state.DailyLoss.StringFixed(2)).
		Msg("🌅 daily reset")
	t.state.DailyLoss = decimal.Zero
	t.state.LastDailyReset = day
}

// settleExpired closes positions whose market window has ended,
// resolving against the on-chain reference price at 1 or 0 with no fee.
func (t *Trader) settleExpired(snap *snapshot.Snapshot, now time.Time) []TradeResult {
	ref := snap.Chainlink
	if ref == 0 {
		ref = snap.Spot
	}

	var closed []TradeResult
	remaining := t.state.Positions[:0]
	for _, pos := range t.state.Positions {
		if pos.MarketEndMs == 0 || now.UnixMilli() < pos.MarketEndMs || ref == 0 {
			remaining = append(remaining, pos)
			continue
		}

		won := (pos.Side == strategy.Up && ref >= pos.Strike) ||
			(pos.Side == strategy.Down && ref < pos.Strike)
		exitPrice, reason := 0.0, ReasonExpiryLoss
		if won {
			exitPrice, reason = 1.0, ReasonExpiryWin
		}
		closed = append(closed, t.close(pos, exitPrice, reason, true, now))
	}
	t.state.Positions = remaining
	return closed
}

// scanExits evaluates exits for positions on the tracked market. Other
// markets have no live price, they wait for settlement.
func (t *Trader) scanExits(snap *snapshot.Snapshot, now time.Time) []TradeResult {
	if snap.Market == nil || !snap.Odds.Valid() {
		return nil
	}

	var closed []TradeResult
	remaining := t.state.Positions[:0]
	for _, pos := range t.state.Positions {
		if pos.MarketSlug != snap.Market.Slug {
			remaining = append(remaining, pos)
			continue
		}

		price := t.sidePrice(snap, pos.Side)
		if reason := t.exitReason(pos, price, snap, now); reason != "" {
			closed = append(closed, t.close(pos, price, reason, false, now))
			continue
		}
		remaining = append(remaining, pos)
	}
	t.state.Positions = remaining
	return closed
}

// exitReason decides whether a position should close now. Returns ""
// to hold.
func (t *Trader) exitReason(pos *Position, price float64, snap *snapshot.Snapshot, now time.Time) string {
	roi := (price - pos.EntryPrice) / pos.EntryPrice * 100

	// Time guard: in the final minutes either the position is favored,
	// still plausible with the trend, or too far gone to be worth the
	// exit fee. Everything in between is salvaged. A hold exemption
	// skips only this exit; stop-loss and take-profit still apply.
	guard := t.cfg.TimeGuardMinutes
	if pos.Strategy == strategy.LateWindow {
		guard = lateWindowTimeGuardMin
	}
	if snap.TimeLeftMin <= guard {
		favored := price > 0.50
		hopeful := price > 0.20 && snap.Trend.Matches(string(pos.Side))
		nearLoss := price <= 1-t.cfg.ResolutionThreshold
		if !favored && !hopeful && !nearLoss {
			return ReasonTimeGuard
		}
	}

	if roi <= -t.cfg.StopLossRoiPct &&
		now.Sub(pos.EntryTime) >= time.Duration(t.cfg.StopLossGracePeriodSeconds)*time.Second {
		return ReasonStopLoss
	}

	switch pos.Strategy {
	case strategy.Momentum:
		if roi >= t.cfg.MomentumTakeProfitRoiPct {
			return ReasonTakeProfit
		}
	case strategy.MeanReversion:
		if price >= 0.50 {
			return ReasonTakeProfit
		}
		if snap.TimeLeftMin <= 3 {
			return ReasonTimeStop
		}
	case strategy.LateWindow:
		// Rides to expiry.
	default:
		if roi >= t.cfg.TakeProfitRoiPct {
			return ReasonTakeProfit
		}
	}
	return ""
}

// tryEnter runs the entry gates in order and opens the position when
// all pass. Returns any flip closes performed and the rejection reason
// when a gate fails.
func (t *Trader) tryEnter(snap *snapshot.Snapshot, rec strategy.Recommendation, now time.Time) (*Position, []TradeResult, string) {
	if snap.Market == nil || !snap.Odds.Valid() {
		return nil, nil, "no_market_odds"
	}
	price := t.sidePrice(snap, rec.Side)

	if price < t.cfg.MinEntryPrice || price > t.cfg.MaxEntryPrice {
		return nil, nil, "entry_price_out_of_band"
	}
	if t.state.ConsecutiveLosses >= t.cfg.MaxConsecutiveLosses {
		return nil, nil, "circuit_breaker"
	}
	for _, pos := range t.state.Positions {
		if pos.MarketSlug == snap.Market.Slug && pos.Side == rec.Side {
			return nil, nil, "duplicate_position"
		}
	}
	if t.state.DailyLoss.GreaterThanOrEqual(t.dailyLossLimit()) {
		return nil, nil, DailyLossReason
	}
	if !t.state.LastStopLossTime.IsZero() &&
		now.Sub(t.state.LastStopLossTime) < time.Duration(t.cfg.CooldownMinutes)*time.Minute {
		return nil, nil, "stop_loss_cooldown"
	}
	if !t.state.LastEntryTime.IsZero() &&
		now.Sub(t.state.LastEntryTime) < time.Duration(t.cfg.EntryCooldownSeconds)*time.Second {
		return nil, nil, "entry_cooldown"
	}

	// Flip: an opposite-side position on the same market closes first,
	// the new signal supersedes it.
	var flips []TradeResult
	remaining := t.state.Positions[:0]
	for _, pos := range t.state.Positions {
		if pos.MarketSlug == snap.Market.Slug && pos.Side == rec.Side.Opposite() {
			flips = append(flips, t.close(pos, t.sidePrice(snap, pos.Side), ReasonFlipClose, false, now))
			continue
		}
		remaining = append(remaining, pos)
	}
	t.state.Positions = remaining

	open := 0
	for _, pos := range t.state.Positions {
		if pos.MarketSlug == snap.Market.Slug {
			open++
		}
	}
	if open >= t.cfg.MaxConcurrentPositions {
		return nil, flips, "max_positions"
	}

	stake := t.stakeFor(rec, price)
	priceDec := decimal.NewFromFloat(price)
	fee := t.fees.Fee(stake, priceDec)
	cost := stake.Add(fee)
	if t.state.Balance.LessThan(cost) {
		return nil, flips, "insufficient_balance"
	}

	pos := &Position{
		ID:          uuid.NewString(),
		MarketSlug:  snap.Market.Slug,
		Question:    snap.Market.Question,
		Side:        rec.Side,
		Strategy:    rec.Strategy,
		EntryPrice:  price,
		Shares:      stake.Div(priceDec),
		Stake:       stake,
		Fee:         fee,
		Strike:      snap.Strike,
		EntryTime:   now,
		MarketEndMs: snap.Market.EndDateMs,
	}
	t.state.Balance = t.state.Balance.Sub(cost)
	t.state.Positions = append(t.state.Positions, pos)
	t.state.LastEntryTime = now

	log.Info().
		Str("market", pos.MarketSlug).
		Str("side", string(pos.Side)).
		Str("strategy", string(pos.Strategy)).
		Float64("price", price).
		Str("stake", stake.StringFixed(2)).
		Str("fee", fee.StringFixed(4)).
		Str("balance", t.state.Balance.StringFixed(2)).
		Msg("📈 position opened")

	t.emit(Event{Type: EventOpened, Position: *pos, Balance: t.state.Balance, Time: now})
	return pos, flips, ""
}

// stakeFor sizes the bet. Kelly uses the model probability against the
// market price, half-Kelly by default, clamped to the bet band (an
// edgeless signal floors at minKellyBet); when Kelly is off or no
// probability is attached, a fixed per-strategy ladder applies.
func (t *Trader) stakeFor(rec strategy.Recommendation, price float64) decimal.Decimal {
	if t.cfg.UseKelly && rec.Probability > 0 && price < 1 {
		f := (rec.Probability - price) / (1 - price)
		stake := t.state.Balance.Mul(decimal.NewFromFloat(t.cfg.KellyFraction * f))
		if stake.LessThan(t.cfg.MinKellyBet) {
			return t.cfg.MinKellyBet
		}
		if stake.GreaterThan(t.cfg.MaxKellyBet) {
			return t.cfg.MaxKellyBet
		}
		return stake
	}

	switch rec.Strategy {
	case strategy.LateWindow:
		return decimal.NewFromInt(5)
	case strategy.Momentum:
		return decimal.NewFromInt(4)
	case strategy.MeanReversion:
		return decimal.NewFromInt(3)
	default:
		return t.cfg.MinBet
	}
}

// close books a position out at exitPrice. Settlement pays face value
// with no fee; live exits pay the taker fee on proceeds.
func (t *Trader) close(pos *Position, exitPrice float64, reason string, settlement bool, now time.Time) TradeResult {
	priceDec := decimal.NewFromFloat(exitPrice)
	gross := pos.Shares.Mul(priceDec)
	var exitFee decimal.Decimal
	if !settlement {
		exitFee = t.fees.Fee(gross, priceDec)
	}
	proceeds := gross.Sub(exitFee)
	pnl := proceeds.Sub(pos.Stake).Sub(pos.Fee)

	t.state.Balance = t.state.Balance.Add(proceeds)
	t.state.LastExitTime = now

	if pnl.IsNegative() {
		t.state.ConsecutiveLosses++
		t.state.DailyLoss = t.state.DailyLoss.Add(pnl.Neg())
	} else {
		t.state.ConsecutiveLosses = 0
		t.state.DailyLoss = t.state.DailyLoss.Sub(pnl)
	}
	if strings.Contains(reason, ReasonStopLoss) {
		t.state.LastStopLossTime = now
	}

	res := TradeResult{
		MarketSlug: pos.MarketSlug,
		Side:       pos.Side,
		Strategy:   pos.Strategy,
		Won:        pnl.IsPositive(),
		PnL:        pnl,
		Reason:     reason,
		ClosedAt:   now,
	}
	t.state.RecentResults = append(t.state.RecentResults, res)
	if len(t.state.RecentResults) > 10 {
		t.state.RecentResults = t.state.RecentResults[len(t.state.RecentResults)-10:]
	}

	log.Info().
		Str("market", pos.MarketSlug).
		Str("side", string(pos.Side)).
		Str("reason", reason).
		Float64("exitPrice", exitPrice).
		Str("pnl", pnl.StringFixed(2)).
		Str("balance", t.state.Balance.StringFixed(2)).
		Msg("📉 position closed")

	t.emit(Event{Type: EventClosed, Position: *pos, Result: &res, Balance: t.state.Balance, Time: now})
	return res
}

// dailyLossLimit is the cap in dollars, a percentage of the current
// balance at gate time.
func (t *Trader) dailyLossLimit() decimal.Decimal {
	return t.state.Balance.Mul(decimal.NewFromFloat(t.cfg.DailyLossLimitPct)).Div(hundred)
}

func (t *Trader) sidePrice(snap *snapshot.Snapshot, side strategy.Side) float64 {
	if side == strategy.Up {
		return *snap.Odds.Up
	}
	return *snap.Odds.Down
}

func (t *Trader) emit(ev Event) {
	if t.onEvent != nil {
		go t.onEvent(ev)
	}
}

// State returns a copy of the ledger for read-only consumers.
func (t *Trader) State() PaperState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := *t.state
	st.Positions = make([]*Position, len(t.state.Positions))
	for i, p := range t.state.Positions {
		cp := *p
		st.Positions[i] = &cp
	}
	st.RecentResults = append([]TradeResult(nil), t.state.RecentResults...)
	return st
}

// Unrealized computes mark-to-market PnL of open positions on the
// tracked market at current odds. Read-only, runs on the fast tick.
func (t *Trader) Unrealized(snap *snapshot.Snapshot) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := decimal.Zero
	if snap == nil || snap.Market == nil || !snap.Odds.Valid() {
		return total
	}
	for _, pos := range t.state.Positions {
		if pos.MarketSlug != snap.Market.Slug {
			continue
		}
		price := decimal.NewFromFloat(t.sidePrice(snap, pos.Side))
		total = total.Add(pos.Shares.Mul(price).Sub(pos.Stake).Sub(pos.Fee))
	}
	return total
}
