package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/web3guy0/polypaper/internal/candles"
	"github.com/web3guy0/polypaper/internal/polymarket"
)

type fakeSpot struct{ price float64 }

func (f *fakeSpot) SpotPrice() float64 { return f.price }

type fakeChain struct{ price float64 }

func (f *fakeChain) Price(ctx context.Context) float64 { return f.price }

type fakeAPI struct {
	market     *polymarket.Market
	marketErr  error
	fetchCount int
	prices     map[string]*float64
	priceErrs  map[string]error
}

func (f *fakeAPI) FetchMarket(ctx context.Context, slug string) (*polymarket.Market, error) {
	f.fetchCount++
	return f.market, f.marketErr
}

func (f *fakeAPI) FetchLatestWindow(ctx context.Context, seriesID string) (*polymarket.Market, error) {
	f.fetchCount++
	return f.market, f.marketErr
}

func (f *fakeAPI) FetchBuyPrice(ctx context.Context, tokenID string) (*float64, error) {
	if err := f.priceErrs[tokenID]; err != nil {
		return nil, err
	}
	return f.prices[tokenID], nil
}

func seedCandles(agg *candles.Aggregator, n int, base float64) {
	for i := 0; i <= n; i++ {
		agg.AddTick(int64(i)*candles.MinuteMs, base+float64(i%5))
	}
}

func newTestAssembler(api *fakeAPI, spot, chain float64) (*Assembler, *candles.Aggregator) {
	agg := candles.NewAggregator(240)
	a := NewAssembler(
		&fakeSpot{price: spot},
		&fakeChain{price: chain},
		api,
		agg,
		polymarket.NewStrikeResolver(),
		"btc-updown-1", "",
		false,
		10_000,
	)
	return a, agg
}

func fp(v float64) *float64 { return &v }

func testMarket() *polymarket.Market {
	return &polymarket.Market{
		Slug:        "btc-updown-1",
		Question:    "Bitcoin Up or Down - price to beat $100,000",
		UpTokenID:   "up-tok",
		DownTokenID: "down-tok",
		EndDateMs:   time.Now().Add(10 * time.Minute).UnixMilli(),
	}
}

func TestAssembleSnapshot(t *testing.T) {
	api := &fakeAPI{
		market: testMarket(),
		prices: map[string]*float64{"up-tok": fp(0.62), "down-tok": fp(0.38)},
	}
	a, agg := newTestAssembler(api, 100_200, 100_150)
	seedCandles(agg, 60, 100_000)

	snap, err := a.Assemble(context.Background())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if snap.Spot != 100_200 || snap.Chainlink != 100_150 {
		t.Errorf("prices spot=%v chain=%v", snap.Spot, snap.Chainlink)
	}
	if !snap.StrikeOK || snap.Strike != 100_000 {
		t.Errorf("strike = %v ok=%v, want 100000 from question", snap.Strike, snap.StrikeOK)
	}
	if !snap.Odds.Valid() || *snap.Odds.Up != 0.62 {
		t.Errorf("odds = %+v", snap.Odds)
	}
	if !snap.Ind.Ready {
		t.Error("indicators should be formed on 60 candles")
	}
	if snap.Trend != Rising {
		t.Errorf("trend = %v, want RISING with spot above ema21", snap.Trend)
	}
	if snap.TimeLeftMin <= 0 || snap.TimeLeftMin > 15 {
		t.Errorf("timeLeftMin = %v", snap.TimeLeftMin)
	}
}

func TestMarketCachedWithinInterval(t *testing.T) {
	api := &fakeAPI{market: testMarket(), prices: map[string]*float64{}}
	a, agg := newTestAssembler(api, 100_000, 100_000)
	seedCandles(agg, 40, 100_000)

	now := time.Now()
	a.nowFn = func() time.Time { return now }

	if _, err := a.Assemble(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Second call 5s later reuses the cache (interval is 10s).
	now = now.Add(5 * time.Second)
	if _, err := a.Assemble(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.fetchCount != 1 {
		t.Errorf("fetches = %d, want 1 (cached)", api.fetchCount)
	}

	now = now.Add(6 * time.Second)
	if _, err := a.Assemble(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.fetchCount != 2 {
		t.Errorf("fetches = %d, want 2 after interval", api.fetchCount)
	}
}

func TestFetchFailureReusesUnexpiredCache(t *testing.T) {
	api := &fakeAPI{market: testMarket(), prices: map[string]*float64{}}
	a, agg := newTestAssembler(api, 100_000, 100_000)
	seedCandles(agg, 40, 100_000)

	now := time.Now()
	a.nowFn = func() time.Time { return now }

	if _, err := a.Assemble(context.Background()); err != nil {
		t.Fatal(err)
	}

	api.marketErr = errors.New("gamma down")
	now = now.Add(11 * time.Second)
	snap, err := a.Assemble(context.Background())
	if err != nil {
		t.Fatalf("unexpired cache should absorb the failure: %v", err)
	}
	if snap.Market == nil || snap.Market.Slug != "btc-updown-1" {
		t.Errorf("market = %+v, want cached market", snap.Market)
	}
}

func TestOddsSidesIndependent(t *testing.T) {
	api := &fakeAPI{
		market:    testMarket(),
		prices:    map[string]*float64{"down-tok": fp(0.41)},
		priceErrs: map[string]error{"up-tok": errors.New("book unavailable")},
	}
	a, agg := newTestAssembler(api, 100_000, 100_000)
	seedCandles(agg, 40, 100_000)

	snap, err := a.Assemble(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Odds.Up != nil {
		t.Error("failed side should be nil")
	}
	if snap.Odds.Down == nil || *snap.Odds.Down != 0.41 {
		t.Errorf("down side = %v, want 0.41 despite up-side failure", snap.Odds.Down)
	}
}

func TestBuildIndicatorsReadiness(t *testing.T) {
	var cs []candles.Candle
	for i := 0; i < 10; i++ {
		cs = append(cs, candles.Candle{
			OpenTime: int64(i) * candles.MinuteMs,
			Open:     100, High: 101, Low: 99, Close: 100, Volume: 1,
		})
	}
	if b := BuildIndicators(cs); b.Ready {
		t.Error("10 candles should not form the full bundle")
	}

	for i := 10; i < 60; i++ {
		cs = append(cs, candles.Candle{
			OpenTime: int64(i) * candles.MinuteMs,
			Open:     100 + float64(i)/10, High: 101 + float64(i)/10,
			Low: 99 + float64(i)/10, Close: 100 + float64(i)/10, Volume: 1,
		})
	}
	b := BuildIndicators(cs)
	if !b.Ready {
		t.Error("60 candles should form the full bundle")
	}
	if b.EMA200OK {
		t.Error("EMA200 cannot form on 60 candles")
	}
	if len(b.VWAPSeries) == 0 || b.VWAP == 0 {
		t.Error("VWAP missing")
	}
}
