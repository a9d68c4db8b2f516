// Package indicators holds the stateless numeric functions the
// strategy layer reads: EMA, RSI, MACD, Heiken-Ashi, VWAP and slope.
// Everything here is deterministic and free of I/O.
package indicators

import (
	"math"

	"github.com/web3guy0/polypaper/internal/candles"
)

// EMASeries returns the exponential moving average at every step from
// index n-1 onward. The first value is the SMA of the first n inputs;
// after that, ema = alpha*x + (1-alpha)*prev with alpha = 2/(n+1).
// Returns nil when the series is shorter than n.
func EMASeries(series []float64, n int) []float64 {
	if n <= 0 || len(series) < n {
		return nil
	}

	out := make([]float64, 0, len(series)-n+1)
	var sum float64
	for _, v := range series[:n] {
		sum += v
	}
	ema := sum / float64(n)
	out = append(out, ema)

	alpha := 2.0 / float64(n+1)
	for _, v := range series[n:] {
		ema = alpha*v + (1-alpha)*ema
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest EMA value; ok is false when the series is too
// short.
func EMA(series []float64, n int) (float64, bool) {
	s := EMASeries(series, n)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// RSISeries computes Wilder's RSI at every step from index n onward.
// The first average gain/loss is a simple mean over the first n deltas,
// then Wilder smoothing applies. Returns nil when len(closes) <= n.
func RSISeries(closes []float64, n int) []float64 {
	if n <= 0 || len(closes) <= n {
		return nil
	}

	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)

	out := make([]float64, 0, len(closes)-n)
	out = append(out, rsiFrom(avgGain, avgLoss))

	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(n-1) + g) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + l) / float64(n)
		out = append(out, rsiFrom(avgGain, avgLoss))
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSI returns the latest Wilder RSI; ok is false when the series is too
// short.
func RSI(closes []float64, n int) (float64, bool) {
	s := RSISeries(closes, n)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// MACDResult carries the latest MACD values plus the two prior
// histogram values, so callers can test monotonic growth.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Hist      float64
	HistPrev  float64
	HistPrev2 float64
	HistDelta float64
}

// MACD computes macd = EMA_fast - EMA_slow, signal = EMA_signalN over
// the macd line, hist = macd - signal. Requires enough closes for at
// least three histogram points; ok is false otherwise.
func MACD(closes []float64, fast, slow, signalN int) (MACDResult, bool) {
	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)
	if emaSlow == nil {
		return MACDResult{}, false
	}

	// The slow series starts slow-fast steps later than the fast one.
	offset := slow - fast
	macdLine := make([]float64, len(emaSlow))
	for i := range emaSlow {
		macdLine[i] = emaFast[i+offset] - emaSlow[i]
	}

	signal := EMASeries(macdLine, signalN)
	if len(signal) < 3 {
		return MACDResult{}, false
	}

	hist := make([]float64, len(signal))
	for j := range signal {
		hist[j] = macdLine[j+signalN-1] - signal[j]
	}

	last := len(hist) - 1
	res := MACDResult{
		MACD:      macdLine[len(macdLine)-1],
		Signal:    signal[last],
		Hist:      hist[last],
		HistPrev:  hist[last-1],
		HistPrev2: hist[last-2],
	}
	res.HistDelta = res.Hist - res.HistPrev
	return res, true
}

// Color of a Heiken-Ashi candle.
type Color string

const (
	Green Color = "GREEN"
	Red   Color = "RED"
)

// HACandle is one Heiken-Ashi candle.
type HACandle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Color reports green iff HA close >= HA open.
func (h HACandle) Color() Color {
	if h.Close >= h.Open {
		return Green
	}
	return Red
}

// HeikenAshi transforms raw candles into the HA series:
// ha_close = (o+h+l+c)/4, ha_open = midpoint of the prior HA body
// (seeded from the first raw candle), ha_high/ha_low span the raw
// extremes and the HA body.
func HeikenAshi(cs []candles.Candle) []HACandle {
	if len(cs) == 0 {
		return nil
	}

	out := make([]HACandle, len(cs))
	for i, c := range cs {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (out[i-1].Open + out[i-1].Close) / 2
		}
		out[i] = HACandle{
			Open:  haOpen,
			High:  math.Max(c.High, math.Max(haOpen, haClose)),
			Low:   math.Min(c.Low, math.Min(haOpen, haClose)),
			Close: haClose,
		}
	}
	return out
}

// CountConsecutive returns the length and color of the trailing streak
// of same-colored HA candles. Returns (0, Green) on an empty series.
func CountConsecutive(ha []HACandle) (int, Color) {
	if len(ha) == 0 {
		return 0, Green
	}

	color := ha[len(ha)-1].Color()
	run := 0
	for i := len(ha) - 1; i >= 0; i-- {
		if ha[i].Color() != color {
			break
		}
		run++
	}
	return run, color
}

// VWAPSeries returns the running volume-weighted average price at each
// step, with typical price (h+l+c)/3. Steps with zero cumulative
// volume yield 0.
func VWAPSeries(cs []candles.Candle) []float64 {
	if len(cs) == 0 {
		return nil
	}

	out := make([]float64, len(cs))
	var pvSum, volSum float64
	for i, c := range cs {
		typical := (c.High + c.Low + c.Close) / 3
		pvSum += typical * c.Volume
		volSum += c.Volume
		if volSum > 0 {
			out[i] = pvSum / volSum
		}
	}
	return out
}

// SessionVWAP returns the final running VWAP value; ok is false on an
// empty series or zero total volume.
func SessionVWAP(cs []candles.Candle) (float64, bool) {
	s := VWAPSeries(cs)
	if len(s) == 0 || s[len(s)-1] == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// SlopeLast returns the average per-step change over the last k points:
// (series[-1] - series[-k]) / k. ok is false when len(series) < k or
// k < 2.
func SlopeLast(series []float64, k int) (float64, bool) {
	if k < 2 || len(series) < k {
		return 0, false
	}
	return (series[len(series)-1] - series[len(series)-k]) / float64(k), true
}
