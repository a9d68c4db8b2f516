package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/candles"
	"github.com/web3guy0/polypaper/internal/marketclock"
	"github.com/web3guy0/polypaper/internal/polymarket"
)

// MarketAPI is the slice of the prediction-market client the assembler
// needs.
type MarketAPI interface {
	FetchMarket(ctx context.Context, slug string) (*polymarket.Market, error)
	FetchLatestWindow(ctx context.Context, seriesID string) (*polymarket.Market, error)
	FetchBuyPrice(ctx context.Context, tokenID string) (*float64, error)
}

// SpotSource yields the freshest spot price (0 when none seen yet).
type SpotSource interface {
	SpotPrice() float64
}

// ChainSource yields the freshest on-chain price.
type ChainSource interface {
	Price(ctx context.Context) float64
}

// Assembler builds Snapshots at the slow cadence. Market metadata is a
// heavy fetch and cached within heavyFetchInterval; CLOB prices are
// fetched fresh, one independent request per side.
type Assembler struct {
	spot     SpotSource
	chain    ChainSource
	poly     MarketAPI
	agg      *candles.Aggregator
	resolver *polymarket.StrikeResolver

	slug             string
	seriesID         string
	autoSelectLatest bool
	heavyInterval    time.Duration

	cachedMarket *polymarket.Market
	lastFetch    time.Time

	nowFn func() time.Time
}

// NewAssembler wires the assembler.
func NewAssembler(
	spot SpotSource,
	chain ChainSource,
	poly MarketAPI,
	agg *candles.Aggregator,
	resolver *polymarket.StrikeResolver,
	slug, seriesID string,
	autoSelectLatest bool,
	heavyFetchIntervalMs int64,
) *Assembler {
	return &Assembler{
		spot:             spot,
		chain:            chain,
		poly:             poly,
		agg:              agg,
		resolver:         resolver,
		slug:             slug,
		seriesID:         seriesID,
		autoSelectLatest: autoSelectLatest,
		heavyInterval:    time.Duration(heavyFetchIntervalMs) * time.Millisecond,
		nowFn:            time.Now,
	}
}

// Assemble produces one Snapshot. Feed gaps surface as zero/nil fields,
// never as errors; a market fetch failure with no usable cache is the
// only error case.
func (a *Assembler) Assemble(ctx context.Context) (*Snapshot, error) {
	now := a.nowFn()
	nowMs := now.UnixMilli()

	market, err := a.market(ctx, now)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		TsMs:      nowMs,
		Spot:      a.spot.SpotPrice(),
		Chainlink: a.chain.Price(ctx),
		Market:    market,
		Candles:   a.agg.Last(240),
	}
	snap.Ind = BuildIndicators(snap.Candles)

	var endMs int64
	if market != nil {
		endMs = market.EndDateMs
		snap.Odds = a.fetchOdds(ctx, market)

		windowStart := endMs - int64(marketclock.WindowMinutes)*60_000
		if endMs == 0 {
			windowStart = marketclock.At(nowMs).StartMs
		}
		snap.Strike, snap.StrikeOK = a.resolver.Resolve(market, snap.Chainlink, nowMs, windowStart)
	}
	snap.TimeLeftMin = marketclock.TimeLeftMin(nowMs, endMs)

	if snap.Spot > snap.Ind.EMA21 {
		snap.Trend = Rising
	} else {
		snap.Trend = Falling
	}

	return snap, nil
}

// market returns the cached market while fresh, otherwise refetches.
// An expired cache never substitutes for a failed fetch.
func (a *Assembler) market(ctx context.Context, now time.Time) (*polymarket.Market, error) {
	if a.cachedMarket != nil && now.Sub(a.lastFetch) < a.heavyInterval {
		return a.cachedMarket, nil
	}

	var m *polymarket.Market
	var err error
	switch {
	case a.slug != "":
		m, err = a.poly.FetchMarket(ctx, a.slug)
	case a.autoSelectLatest:
		m, err = a.poly.FetchLatestWindow(ctx, a.seriesID)
	default:
		return nil, nil
	}

	if err != nil {
		if a.cachedMarket != nil && a.cachedMarket.EndDateMs > now.UnixMilli() {
			log.Warn().Err(err).Msg("market refetch failed, reusing cached market")
			return a.cachedMarket, nil
		}
		return nil, err
	}

	if a.cachedMarket == nil || a.cachedMarket.Slug != m.Slug {
		log.Info().Str("slug", m.Slug).Str("question", m.Question).Msg("🎯 tracking market")
	}
	a.cachedMarket = m
	a.lastFetch = now
	return m, nil
}

// fetchOdds fetches the two sides independently; one side failing never
// blanks the other.
func (a *Assembler) fetchOdds(ctx context.Context, m *polymarket.Market) polymarket.Odds {
	var odds polymarket.Odds
	if m.UpTokenID != "" {
		up, err := a.poly.FetchBuyPrice(ctx, m.UpTokenID)
		if err != nil {
			log.Warn().Err(err).Msg("up-side price fetch failed")
		} else {
			odds.Up = up
		}
	}
	if m.DownTokenID != "" {
		down, err := a.poly.FetchBuyPrice(ctx, m.DownTokenID)
		if err != nil {
			log.Warn().Err(err).Msg("down-side price fetch failed")
		} else {
			odds.Down = down
		}
	}
	return odds
}
