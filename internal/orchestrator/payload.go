package orchestrator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/dashboard"
	"github.com/web3guy0/polypaper/internal/snapshot"
	"github.com/web3guy0/polypaper/internal/strategy"
	"github.com/web3guy0/polypaper/internal/trader"
)

// buildPayload renders the latest world state into the dashboard frame.
func (l *Loop) buildPayload(snap *snapshot.Snapshot, st trader.PaperState, unrealized float64) *dashboard.StatePayload {
	p := &dashboard.StatePayload{
		TimeLeftMin:  snap.TimeLeftMin,
		TimeLeftStr:  formatTimeLeft(snap.TimeLeftMin),
		BinancePrice: snap.Spot,
		CurrentPrice: snap.Chainlink,
		StrikePrice:  snap.Strike,
		Gap:          snap.Spot - snap.Strike,
		PaperBalance: st.Balance.InexactFloat64(),
		TotalEquity:  st.Balance.InexactFloat64() + unrealized,
		DailyPnl:     st.DailyLoss.Neg().InexactFloat64(),
		PosPnl:       unrealized,
		Phase:        regimeFor(snap.TimeLeftMin),
	}

	if snap.Market != nil {
		p.MarketName = snap.Market.Question
		p.MarketSlug = snap.Market.Slug
	}
	if snap.Odds.Up != nil {
		p.PolyUp = *snap.Odds.Up
	}
	if snap.Odds.Down != nil {
		p.PolyDown = *snap.Odds.Down
	}

	rec := l.lastRec
	p.Side = string(rec.Side)
	p.Conviction = string(rec.Confidence)
	if rec.Action == strategy.Enter {
		p.Advice = fmt.Sprintf("ENTER %s (%s)", rec.Side, rec.Strategy)
	} else {
		p.Advice = fmt.Sprintf("NO TRADE: %s", rec.Reason)
	}

	p.Ind = dashboard.Indicators{
		Heiken: fmt.Sprintf("%s x%d", snap.Ind.HAColor, snap.Ind.HARun),
		Rsi:    snap.Ind.RSI,
		Macd:   snap.Ind.MACD.Hist,
		Vwap:   snap.Ind.VWAP,
		Ema:    snap.Ind.EMA21,
	}

	for _, pos := range st.Positions {
		view := positionView(snap, pos)
		p.Positions = append(p.Positions, view)
	}
	if len(p.Positions) > 0 {
		p.Position = &p.Positions[0]
	}

	today := time.Now().UTC().Format("2006-01-02")
	for _, res := range st.RecentResults {
		p.RecentTrades = append(p.RecentTrades, dashboard.TradeView{
			MarketSlug: res.MarketSlug,
			Side:       string(res.Side),
			Strategy:   string(res.Strategy),
			Won:        res.Won,
			PnL:        res.PnL.InexactFloat64(),
			Reason:     res.Reason,
			ClosedAt:   res.ClosedAt.UTC().Format(time.RFC3339),
		})
		if res.Won {
			p.WinStats.Overall.Wins++
		} else {
			p.WinStats.Overall.Losses++
		}
		if res.ClosedAt.UTC().Format("2006-01-02") == today {
			if res.Won {
				p.WinStats.Today.Wins++
			} else {
				p.WinStats.Today.Losses++
			}
		}
	}
	if len(p.RecentTrades) > recentTradesShown {
		p.RecentTrades = p.RecentTrades[len(p.RecentTrades)-recentTradesShown:]
	}

	return p
}

func positionView(snap *snapshot.Snapshot, pos *trader.Position) dashboard.PositionView {
	view := dashboard.PositionView{
		MarketSlug: pos.MarketSlug,
		Side:       string(pos.Side),
		Strategy:   string(pos.Strategy),
		EntryPrice: pos.EntryPrice,
		Stake:      pos.Stake.InexactFloat64(),
		Shares:     pos.Shares.InexactFloat64(),
	}

	if snap.Market != nil && pos.MarketSlug == snap.Market.Slug && snap.Odds.Valid() {
		cur := *snap.Odds.Down
		if pos.Side == strategy.Up {
			cur = *snap.Odds.Up
		}
		mark := pos.Shares.Mul(decimal.NewFromFloat(cur))
		view.PnL = mark.Sub(pos.Stake).Sub(pos.Fee).InexactFloat64()
	}
	return view
}

// formatTimeLeft renders minutes as M:SS.
func formatTimeLeft(min float64) string {
	if min <= 0 {
		return "0:00"
	}
	total := int(min * 60)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
