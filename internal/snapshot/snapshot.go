// Package snapshot assembles the unified view the strategy evaluator
// consumes: spot, chainlink, market, strike, odds, candles and the
// indicator bundle, built once per slow tick.
package snapshot

import (
	"github.com/web3guy0/polypaper/internal/candles"
	"github.com/web3guy0/polypaper/internal/indicators"
	"github.com/web3guy0/polypaper/internal/polymarket"
)

// Trend is the coarse spot-versus-EMA21 direction.
type Trend string

const (
	Rising  Trend = "RISING"
	Falling Trend = "FALLING"
)

// Matches reports whether the trend favors a side ("UP"/"DOWN").
func (t Trend) Matches(side string) bool {
	return (t == Rising && side == "UP") || (t == Falling && side == "DOWN")
}

// vwapWindow is the rolling VWAP window in 1-minute candles. The
// strategy deliberately uses a 60-minute rolling proxy, not a session
// anchor.
const vwapWindow = 60

// IndicatorBundle carries every indicator the evaluator reads. Ready is
// true only when all of them are formed.
type IndicatorBundle struct {
	EMA9  float64
	EMA21 float64

	EMA200   float64
	EMA200OK bool

	RSI       float64
	RSISeries []float64

	MACD indicators.MACDResult

	HARun   int
	HAColor indicators.Color

	VWAP       float64
	VWAPSeries []float64

	Ready bool
}

// BuildIndicators computes the bundle from closed candles.
func BuildIndicators(cs []candles.Candle) IndicatorBundle {
	var b IndicatorBundle
	if len(cs) == 0 {
		return b
	}

	closes := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
	}

	ema9, ok9 := indicators.EMA(closes, 9)
	ema21, ok21 := indicators.EMA(closes, 21)
	b.EMA9, b.EMA21 = ema9, ema21

	b.EMA200, b.EMA200OK = indicators.EMA(closes, 200)

	b.RSISeries = indicators.RSISeries(closes, 14)
	okRSI := len(b.RSISeries) > 0
	if okRSI {
		b.RSI = b.RSISeries[len(b.RSISeries)-1]
	}

	macd, okMACD := indicators.MACD(closes, 12, 26, 9)
	b.MACD = macd

	ha := indicators.HeikenAshi(cs)
	b.HARun, b.HAColor = indicators.CountConsecutive(ha)

	window := cs
	if len(window) > vwapWindow {
		window = window[len(window)-vwapWindow:]
	}
	b.VWAPSeries = indicators.VWAPSeries(window)
	okVWAP := len(b.VWAPSeries) > 0
	if okVWAP {
		b.VWAP = b.VWAPSeries[len(b.VWAPSeries)-1]
	}

	b.Ready = ok9 && ok21 && okRSI && okMACD && okVWAP && b.HARun > 0
	return b
}

// Snapshot is one consistent view of the world, valid for a single
// slow tick.
type Snapshot struct {
	TsMs      int64
	Spot      float64
	Chainlink float64

	Market   *polymarket.Market
	Strike   float64
	StrikeOK bool
	Odds     polymarket.Odds

	Candles []candles.Candle
	Ind     IndicatorBundle

	TimeLeftMin float64
	Trend       Trend
}
