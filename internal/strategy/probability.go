package strategy

import (
	"math"

	"github.com/web3guy0/polypaper/internal/indicators"
	"github.com/web3guy0/polypaper/internal/snapshot"
)

// EstimateUpProbability blends indicator signals into a heuristic
// probability that the window resolves UP. The blend starts neutral and
// nudges on spot-versus-VWAP distance, RSI displacement, MACD histogram
// direction and the Heiken-Ashi run, then pulls toward certainty as the
// window runs out and the spot-strike gap holds.
func EstimateUpProbability(snap *snapshot.Snapshot) float64 {
	raw := 0.5

	if snap.Ind.VWAP > 0 && snap.Spot > 0 {
		// ~0.1% displacement from VWAP moves the estimate by 0.1.
		dev := (snap.Spot - snap.Ind.VWAP) / snap.Ind.VWAP
		raw += clamp(dev*100, -0.15, 0.15)
	}

	raw += clamp((snap.Ind.RSI-50)/100, -0.15, 0.15)

	switch {
	case snap.Ind.MACD.Hist > snap.Ind.MACD.HistPrev && snap.Ind.MACD.Hist > 0:
		raw += 0.08
	case snap.Ind.MACD.Hist < snap.Ind.MACD.HistPrev && snap.Ind.MACD.Hist < 0:
		raw -= 0.08
	}

	run := math.Min(float64(snap.Ind.HARun), 6) * 0.015
	if snap.Ind.HAColor == indicators.Green {
		raw += run
	} else if snap.Ind.HAColor == indicators.Red {
		raw -= run
	}

	// Late in the window a standing gap is close to decisive: weight the
	// gap signal up as time drains.
	if snap.StrikeOK && snap.Strike > 0 && snap.TimeLeftMin < 5 {
		gap := snap.Spot - snap.Strike
		urgency := (5 - snap.TimeLeftMin) / 5
		if gap > 0 {
			raw += clamp(gap/500, 0, 0.25) * urgency
		} else {
			raw -= clamp(-gap/500, 0, 0.25) * urgency
		}
	}

	return clamp(raw, 0.02, 0.98)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
