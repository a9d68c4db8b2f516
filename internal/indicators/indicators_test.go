package indicators

import (
	"math"
	"testing"

	"github.com/web3guy0/polypaper/internal/candles"
)

func TestEMASeed(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	// Seed SMA(1..3)=2, then alpha=0.5 walks the value up one per step.
	got, ok := EMA(series, 3)
	if !ok {
		t.Fatal("EMA should be formed")
	}
	if math.Abs(got-9.0) > 1e-9 {
		t.Errorf("EMA = %v, want 9.0", got)
	}

	s := EMASeries(series, 3)
	want := []float64{2, 3, 4, 5, 6, 7, 8, 9}
	if len(s) != len(want) {
		t.Fatalf("series length = %d, want %d", len(s), len(want))
	}
	for i := range want {
		if math.Abs(s[i]-want[i]) > 1e-9 {
			t.Errorf("series[%d] = %v, want %v", i, s[i], want[i])
		}
	}
}

func TestEMATooShort(t *testing.T) {
	if _, ok := EMA([]float64{1, 2}, 3); ok {
		t.Error("EMA on 2 points with n=3 should not be formed")
	}
	if s := EMASeries(nil, 3); s != nil {
		t.Error("EMASeries on empty input should be nil")
	}
}

func TestRSIDeterminism(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}

	a := RSISeries(closes, 14)
	b := RSISeries(closes, 14)
	if len(a) == 0 {
		t.Fatal("RSI should be formed on 60 closes")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("RSI not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}
	for i, v := range a {
		if v < 0 || v > 100 {
			t.Errorf("RSI[%d] = %v out of [0,100]", i, v)
		}
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	got, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("RSI should be formed")
	}
	if got != 100 {
		t.Errorf("RSI of monotone gains = %v, want 100", got)
	}
}

func TestRSITooShort(t *testing.T) {
	if s := RSISeries(make([]float64, 14), 14); s != nil {
		t.Error("RSI needs more closes than its period")
	}
}

func TestMACDGrowingHistogram(t *testing.T) {
	// Accelerating uptrend: fast EMA pulls away from slow, histogram grows.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 0.01*float64(i*i)
	}

	res, ok := MACD(closes, 12, 26, 9)
	if !ok {
		t.Fatal("MACD should be formed on 80 closes")
	}
	if res.MACD <= 0 {
		t.Errorf("MACD = %v, want > 0 in an uptrend", res.MACD)
	}
	if !(res.Hist > res.HistPrev && res.HistPrev > res.HistPrev2) {
		t.Errorf("histogram not growing: %v, %v, %v", res.HistPrev2, res.HistPrev, res.Hist)
	}
	if math.Abs(res.HistDelta-(res.Hist-res.HistPrev)) > 1e-12 {
		t.Errorf("HistDelta = %v, want %v", res.HistDelta, res.Hist-res.HistPrev)
	}
}

func TestMACDTooShort(t *testing.T) {
	if _, ok := MACD(make([]float64, 30), 12, 26, 9); ok {
		t.Error("MACD on 30 closes should not be formed")
	}
}

func TestHeikenAshiInvariants(t *testing.T) {
	cs := []candles.Candle{
		{Open: 100, High: 110, Low: 95, Close: 105, Volume: 1},
		{Open: 105, High: 112, Low: 103, Close: 110, Volume: 1},
		{Open: 110, High: 111, Low: 98, Close: 99, Volume: 1},
		{Open: 99, High: 104, Low: 97, Close: 103, Volume: 1},
	}

	ha := HeikenAshi(cs)
	if len(ha) != len(cs) {
		t.Fatalf("HA length = %d, want %d", len(ha), len(cs))
	}
	for i, h := range ha {
		if h.Low > math.Min(h.Open, h.Close) {
			t.Errorf("HA[%d]: low %v above body", i, h.Low)
		}
		if h.High < math.Max(h.Open, h.Close) {
			t.Errorf("HA[%d]: high %v below body", i, h.High)
		}
	}

	if ha[0].Open != (cs[0].Open+cs[0].Close)/2 {
		t.Errorf("HA[0] open = %v, want raw midpoint", ha[0].Open)
	}
	if ha[1].Open != (ha[0].Open+ha[0].Close)/2 {
		t.Errorf("HA[1] open = %v, want prior body midpoint", ha[1].Open)
	}
}

func TestCountConsecutive(t *testing.T) {
	down := []candles.Candle{
		{Open: 110, High: 111, Low: 100, Close: 101, Volume: 1},
		{Open: 101, High: 102, Low: 92, Close: 93, Volume: 1},
		{Open: 93, High: 94, Low: 85, Close: 86, Volume: 1},
	}

	run, color := CountConsecutive(HeikenAshi(down))
	if color != Red {
		t.Errorf("color = %v, want RED", color)
	}
	if run < 2 {
		t.Errorf("run = %d, want >= 2", run)
	}

	if n, _ := CountConsecutive(nil); n != 0 {
		t.Errorf("empty series run = %d, want 0", n)
	}
}

func TestVWAPSeries(t *testing.T) {
	cs := []candles.Candle{
		{High: 102, Low: 98, Close: 100, Volume: 1},
		{High: 104, Low: 100, Close: 102, Volume: 1},
	}

	s := VWAPSeries(cs)
	if len(s) != 2 {
		t.Fatalf("series length = %d, want 2", len(s))
	}
	if math.Abs(s[0]-100) > 1e-9 {
		t.Errorf("vwap[0] = %v, want 100", s[0])
	}
	if math.Abs(s[1]-101) > 1e-9 {
		t.Errorf("vwap[1] = %v, want 101", s[1])
	}

	last, ok := SessionVWAP(cs)
	if !ok || last != s[1] {
		t.Errorf("SessionVWAP = %v (%v), want %v", last, ok, s[1])
	}
}

func TestSlopeLast(t *testing.T) {
	series := []float64{1, 2, 4, 8}
	got, ok := SlopeLast(series, 3)
	if !ok {
		t.Fatal("slope should be computable")
	}
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("slope = %v, want 2", got)
	}
	if _, ok := SlopeLast(series, 5); ok {
		t.Error("slope over more points than available should fail")
	}
}
