package strategy

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/indicators"
	"github.com/web3guy0/polypaper/internal/snapshot"
)

// Entry thresholds. Dollar figures are distances between spot and strike.
const (
	momentumDiffUSD     = 50.0
	momentumMaxOdds     = 0.85
	lateWindowDiffUSD   = 300.0
	lateWindowMaxRange  = 80.0
	lateWindowMinHARun  = 5
	lateWindowMaxOdds   = 0.90
	sniperDiffUSD       = 80.0
	sniperMinHARun      = 6
	sniperMaxOdds       = 0.90
	minCandlesForSignal = 30
)

// Evaluator runs the time-bucketed strategy tree.
type Evaluator struct {
	minOddsEdge float64
}

// NewEvaluator creates an evaluator. minOddsEdge is the minimum payoff
// edge required of momentum entries (odds must stay below 1-minOddsEdge).
func NewEvaluator(minOddsEdge float64) *Evaluator {
	return &Evaluator{minOddsEdge: minOddsEdge}
}

// Evaluate dispatches on time remaining:
//
//	>= 2.0 min      Momentum
//	0.5 - 2.0 min   Sniper first, Momentum as fallback
//	1.0 - 1.5 min   Late Window when Sniper/Momentum decline
//	<  0.5 min      no trade
//
// Every branch reports a reason; the probability estimate and odds edge
// ride along on the result.
func (e *Evaluator) Evaluate(snap *snapshot.Snapshot) Recommendation {
	if rec, ok := e.precheck(snap); !ok {
		return rec
	}

	t := snap.TimeLeftMin
	var rec Recommendation
	switch {
	case t < 0.5:
		rec = noTrade(Momentum, "window_closing")
	case t >= 2.0:
		rec = e.momentum(snap)
	default:
		rec = e.sniper(snap)
		if rec.Action != Enter {
			rec = e.momentum(snap)
		}
		if rec.Action != Enter && t >= 1.0 && t <= 1.5 {
			if lw := e.lateWindow(snap); lw.Action == Enter {
				rec = lw
			}
		}
	}

	e.attachProbability(snap, &rec)

	if rec.Action == Enter {
		log.Info().
			Str("strategy", string(rec.Strategy)).
			Str("side", string(rec.Side)).
			Str("confidence", string(rec.Confidence)).
			Float64("prob", rec.Probability).
			Float64("edge", rec.Edge).
			Str("reason", rec.Reason).
			Msg("🎯 ENTER signal")
	}
	return rec
}

func (e *Evaluator) precheck(snap *snapshot.Snapshot) (Recommendation, bool) {
	switch {
	case snap == nil || snap.Market == nil:
		return noTrade(Momentum, "missing_data: no market"), false
	case len(snap.Candles) < minCandlesForSignal:
		return noTrade(Momentum, fmt.Sprintf("missing_data: %d candles", len(snap.Candles))), false
	case !snap.Ind.Ready:
		return noTrade(Momentum, "missing_data: indicators not formed"), false
	case !snap.Odds.Valid():
		return noTrade(Momentum, "missing_data: odds unavailable"), false
	case !snap.StrikeOK:
		return noTrade(Momentum, "missing_data: no strike"), false
	case snap.Spot <= 0:
		return noTrade(Momentum, "missing_data: no spot price"), false
	}
	return Recommendation{}, true
}

// momentum requires spot clearly past strike, two closed candles
// confirming, growing MACD histogram, trend/HA/RSI alignment and
// affordable odds.
func (e *Evaluator) momentum(snap *snapshot.Snapshot) Recommendation {
	diff := snap.Spot - snap.Strike

	var side Side
	switch {
	case diff > momentumDiffUSD:
		side = Up
	case diff < -momentumDiffUSD:
		side = Down
	default:
		return noTrade(Momentum, fmt.Sprintf("diff_too_small_%.0f", diff))
	}

	cs := snap.Candles
	if len(cs) < 2 {
		return noTrade(Momentum, "missing_data: need 2 closed candles")
	}
	for _, c := range cs[len(cs)-2:] {
		onSide := (side == Up && c.Close > snap.Strike) || (side == Down && c.Close < snap.Strike)
		if !onSide {
			return noTrade(Momentum, "candles_not_confirming")
		}
	}

	m := snap.Ind.MACD
	if side == Up {
		if !(m.Hist > m.HistPrev && m.HistPrev > 0) {
			return noTrade(Momentum, fmt.Sprintf("macd_not_growing_up_%.2f", m.Hist))
		}
		if snap.Spot <= snap.Ind.EMA21 {
			return noTrade(Momentum, "spot_below_ema21")
		}
		if !(snap.Ind.HAColor == indicators.Green && snap.Ind.HARun >= 2) {
			return noTrade(Momentum, "ha_not_green")
		}
		if snap.Ind.RSI < 40 || snap.Ind.RSI > 80 {
			return noTrade(Momentum, fmt.Sprintf("rsi_out_of_band_%.0f", snap.Ind.RSI))
		}
	} else {
		if !(m.Hist < m.HistPrev && m.HistPrev < 0) {
			return noTrade(Momentum, fmt.Sprintf("macd_not_growing_down_%.2f", m.Hist))
		}
		if snap.Spot >= snap.Ind.EMA21 {
			return noTrade(Momentum, "spot_above_ema21")
		}
		if !(snap.Ind.HAColor == indicators.Red && snap.Ind.HARun >= 2) {
			return noTrade(Momentum, "ha_not_red")
		}
		if snap.Ind.RSI < 20 || snap.Ind.RSI > 60 {
			return noTrade(Momentum, fmt.Sprintf("rsi_out_of_band_%.0f", snap.Ind.RSI))
		}
	}

	odds := e.sideOdds(snap, side)
	if odds >= momentumMaxOdds || odds >= 1-e.minOddsEdge {
		return noTrade(Momentum, fmt.Sprintf("odds_too_high_%s_%.2f", strings.ToLower(string(side)), odds))
	}

	return Recommendation{
		Action:     Enter,
		Side:       side,
		Strategy:   Momentum,
		Confidence: High,
		Reason:     fmt.Sprintf("momentum_%s_diff_%.0f_macd_%.2f", strings.ToLower(string(side)), diff, m.Hist),
	}
}

// lateWindow takes only deep, quiet moves: a large gap, compressed
// ranges, a long matching HA run.
func (e *Evaluator) lateWindow(snap *snapshot.Snapshot) Recommendation {
	diff := snap.Spot - snap.Strike

	var side Side
	switch {
	case diff > lateWindowDiffUSD:
		side = Up
	case diff < -lateWindowDiffUSD:
		side = Down
	default:
		return noTrade(LateWindow, fmt.Sprintf("diff_too_small_%.0f", diff))
	}

	cs := snap.Candles
	if len(cs) < 5 {
		return noTrade(LateWindow, "missing_data: need 5 closed candles")
	}
	var rangeSum float64
	for _, c := range cs[len(cs)-5:] {
		rangeSum += c.High - c.Low
	}
	if rangeSum/5 > lateWindowMaxRange {
		return noTrade(LateWindow, fmt.Sprintf("too_volatile_%.0f", rangeSum/5))
	}

	want := indicators.Green
	if side == Down {
		want = indicators.Red
	}
	if snap.Ind.HAColor != want || snap.Ind.HARun < lateWindowMinHARun {
		return noTrade(LateWindow, fmt.Sprintf("ha_run_%d_%s", snap.Ind.HARun, snap.Ind.HAColor))
	}

	odds := e.sideOdds(snap, side)
	if odds >= lateWindowMaxOdds {
		return noTrade(LateWindow, fmt.Sprintf("odds_too_high_%s_%.2f", strings.ToLower(string(side)), odds))
	}

	return Recommendation{
		Action:     Enter,
		Side:       side,
		Strategy:   LateWindow,
		Confidence: VeryHigh,
		Reason:     fmt.Sprintf("late_window_%s_diff_%.0f_run_%d", strings.ToLower(string(side)), diff, snap.Ind.HARun),
	}
}

// sniper fires in the final two minutes on an already-decided window:
// clear gap, very long HA run, extreme RSI.
func (e *Evaluator) sniper(snap *snapshot.Snapshot) Recommendation {
	diff := snap.Spot - snap.Strike

	var side Side
	switch {
	case diff > sniperDiffUSD:
		side = Up
	case diff < -sniperDiffUSD:
		side = Down
	default:
		return noTrade(Sniper, fmt.Sprintf("diff_too_small_%.0f", diff))
	}

	want := indicators.Green
	if side == Down {
		want = indicators.Red
	}
	if snap.Ind.HAColor != want || snap.Ind.HARun < sniperMinHARun {
		return noTrade(Sniper, fmt.Sprintf("ha_run_%d_%s", snap.Ind.HARun, snap.Ind.HAColor))
	}

	if side == Up && snap.Ind.RSI <= 60 {
		return noTrade(Sniper, fmt.Sprintf("rsi_not_extreme_%.0f", snap.Ind.RSI))
	}
	if side == Down && snap.Ind.RSI >= 40 {
		return noTrade(Sniper, fmt.Sprintf("rsi_not_extreme_%.0f", snap.Ind.RSI))
	}

	odds := e.sideOdds(snap, side)
	if odds >= sniperMaxOdds {
		return noTrade(Sniper, fmt.Sprintf("odds_too_high_%s_%.2f", strings.ToLower(string(side)), odds))
	}

	return Recommendation{
		Action:     Enter,
		Side:       side,
		Strategy:   Sniper,
		Confidence: Max,
		Reason:     fmt.Sprintf("sniper_%s_diff_%.0f_run_%d", strings.ToLower(string(side)), diff, snap.Ind.HARun),
	}
}

func (e *Evaluator) sideOdds(snap *snapshot.Snapshot, side Side) float64 {
	if side == Up {
		return *snap.Odds.Up
	}
	return *snap.Odds.Down
}

// attachProbability computes the heuristic side probability and the
// edge against market odds (clamped to >= 0).
func (e *Evaluator) attachProbability(snap *snapshot.Snapshot, rec *Recommendation) {
	if !snap.Odds.Valid() || !snap.Ind.Ready {
		return
	}
	up := EstimateUpProbability(snap)

	side := rec.Side
	if side == "" {
		// For NO_TRADE, report the likelier side.
		side = Up
		if up < 0.5 {
			side = Down
		}
	}

	prob, odds := up, *snap.Odds.Up
	if side == Down {
		prob, odds = 1-up, *snap.Odds.Down
	}
	rec.Probability = prob
	if edge := prob - odds; edge > 0 {
		rec.Edge = edge
	}
}
