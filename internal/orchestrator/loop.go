// Package orchestrator runs the dual-cadence engine loop: a fast tick
// refreshes PnL, metrics and the dashboard; a slow tick assembles a
// snapshot, evaluates strategy and drives the paper trader.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/config"
	"github.com/web3guy0/polypaper/internal/dashboard"
	"github.com/web3guy0/polypaper/internal/metrics"
	"github.com/web3guy0/polypaper/internal/polymarket"
	"github.com/web3guy0/polypaper/internal/snapshot"
	"github.com/web3guy0/polypaper/internal/storage"
	"github.com/web3guy0/polypaper/internal/strategy"
	"github.com/web3guy0/polypaper/internal/trader"
)

const (
	hardErrorLimit    = 10
	strikeFile        = "strike.txt"
	strikePollEvery   = 5 * time.Second
	recentTradesShown = 10
)

// ErrTooManyHardErrors signals the process should exit non-zero.
var ErrTooManyHardErrors = errors.New("too many consecutive hard errors")

// Loop owns the tickers and the shared latest-snapshot slot.
type Loop struct {
	cfg       *config.Config
	assembler *snapshot.Assembler
	evaluator *strategy.Evaluator
	trader    *trader.Trader
	resolver  *polymarket.StrikeResolver
	db        *storage.Database
	dash      *dashboard.Server

	latest     *snapshot.Snapshot
	lastRec    strategy.Recommendation
	hardErrors int

	stopCh chan struct{}
}

// New wires the loop.
func New(
	cfg *config.Config,
	assembler *snapshot.Assembler,
	evaluator *strategy.Evaluator,
	tr *trader.Trader,
	resolver *polymarket.StrikeResolver,
	db *storage.Database,
	dash *dashboard.Server,
) *Loop {
	return &Loop{
		cfg:       cfg,
		assembler: assembler,
		evaluator: evaluator,
		trader:    tr,
		resolver:  resolver,
		db:        db,
		dash:      dash,
		stopCh:    make(chan struct{}),
	}
}

// Run blocks until ctx is done or the hard-error limit trips.
func (l *Loop) Run(ctx context.Context) error {
	fast := time.NewTicker(time.Duration(l.cfg.FastTickMs) * time.Millisecond)
	slow := time.NewTicker(time.Duration(l.cfg.SlowTickMs) * time.Millisecond)
	strike := time.NewTicker(strikePollEvery)
	defer fast.Stop()
	defer slow.Stop()
	defer strike.Stop()

	log.Info().
		Int("fastMs", l.cfg.FastTickMs).
		Int("slowMs", l.cfg.SlowTickMs).
		Msg("🔄 engine loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stopCh:
			return nil
		case <-slow.C:
			if err := l.slowTick(ctx); err != nil {
				l.hardErrors++
				metrics.IncHardError()
				log.Error().Err(err).Int("count", l.hardErrors).Msg("slow tick failed")
				if l.hardErrors >= hardErrorLimit {
					return fmt.Errorf("%w: %d", ErrTooManyHardErrors, l.hardErrors)
				}
			} else {
				l.hardErrors = 0
			}
		case <-fast.C:
			l.fastTick()
		case <-strike.C:
			l.pollStrikeFile()
		}
	}
}

// Stop ends Run.
func (l *Loop) Stop() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}

// slowTick assembles one snapshot, evaluates and trades.
func (l *Loop) slowTick(ctx context.Context) error {
	snap, err := l.assembler.Assemble(ctx)
	if err != nil {
		return err
	}
	l.latest = snap

	rec := l.evaluator.Evaluate(snap)
	l.lastRec = rec
	metrics.IncDecision(string(rec.Strategy), string(rec.Action))

	rep := l.trader.Tick(snap, rec)
	if rep.RejectReason != "" {
		metrics.IncEntryReject(rep.RejectReason)
		l.dash.Hub().BroadcastActivity(fmt.Sprintf("entry blocked: %s", rep.RejectReason), "info")
	}

	l.logSignal(snap, rec)
	return nil
}

// fastTick refreshes the read-only surfaces from the latest snapshot.
func (l *Loop) fastTick() {
	snap := l.latest
	if snap == nil {
		return
	}

	st := l.trader.State()
	unreal := l.trader.Unrealized(snap)

	metrics.SetBalance(st.Balance.InexactFloat64())
	metrics.SetUnrealized(unreal.InexactFloat64())
	metrics.SetOpenPositions(len(st.Positions))
	metrics.SetSpotPrice(snap.Spot)
	metrics.SetChainlinkPrice(snap.Chainlink)
	metrics.SetTimeLeft(snap.TimeLeftMin)

	l.dash.Publish(l.buildPayload(snap, st, unreal.InexactFloat64()))
}

// pollStrikeFile applies or clears the manual strike override.
func (l *Loop) pollStrikeFile() {
	data, err := os.ReadFile(strikeFile)
	if err != nil {
		l.resolver.ClearOverride()
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		log.Warn().Err(err).Str("file", strikeFile).Msg("strike override unparseable, ignored")
		return
	}
	l.resolver.SetOverride(v)
}

func (l *Loop) logSignal(snap *snapshot.Snapshot, rec strategy.Recommendation) {
	if l.db == nil {
		return
	}
	sig := &storage.Signal{
		Timestamp:      time.UnixMilli(snap.TsMs),
		TimeLeftMin:    snap.TimeLeftMin,
		Regime:         regimeFor(snap.TimeLeftMin),
		Signal:         string(rec.Action),
		Strategy:       string(rec.Strategy),
		Side:           string(rec.Side),
		Reason:         rec.Reason,
		ModelProbUp:    modelProbUp(rec),
		Strike:         snap.Strike,
		BinancePrice:   snap.Spot,
		ChainlinkPrice: snap.Chainlink,
		Gap:            snap.Spot - snap.Strike,
	}
	if snap.Market != nil {
		sig.MarketSlug = snap.Market.Slug
	}
	if snap.Odds.Up != nil {
		sig.MarketProbUp = *snap.Odds.Up
	}
	if snap.Odds.Down != nil {
		sig.MarketProbDown = *snap.Odds.Down
	}
	if rec.Side == strategy.Up || rec.Side == "" {
		sig.EdgeUp = rec.Edge
	}
	l.db.LogSignal(sig)
}

// HandleTradeEvent is the trader's event sink: it logs the trade row,
// updates metrics and pushes an activity frame. Registered in main.
func (l *Loop) HandleTradeEvent(ev trader.Event) {
	switch ev.Type {
	case trader.EventOpened:
		metrics.IncTrade("open")
		l.dash.Hub().BroadcastActivity(
			fmt.Sprintf("OPEN %s %s @ %.2f (%s)", ev.Position.Side, ev.Position.MarketSlug, ev.Position.EntryPrice, ev.Position.Strategy),
			"trade")
		l.db.LogTrade(&storage.PaperTrade{
			Timestamp:  ev.Time,
			MarketSlug: ev.Position.MarketSlug,
			Action:     "OPEN",
			Side:       string(ev.Position.Side),
			Strategy:   string(ev.Position.Strategy),
			Price:      ev.Position.EntryPrice,
			Amount:     ev.Position.Stake,
			Shares:     ev.Position.Shares,
			Fee:        ev.Position.Fee,
			Balance:    ev.Balance,
		})

	case trader.EventClosed:
		result := "loss"
		if ev.Result != nil && ev.Result.Won {
			result = "win"
		}
		metrics.IncTrade(result)

		action, reason := "CLOSE", ""
		if ev.Result != nil {
			reason = ev.Result.Reason
			if strings.HasPrefix(reason, "EXPIRY") {
				action = "SETTLE"
			}
			metrics.IncExitReason(reason, string(ev.Position.Side))
			l.dash.Hub().BroadcastActivity(
				fmt.Sprintf("CLOSE %s %s: %s, PnL $%s", ev.Position.Side, ev.Position.MarketSlug, reason, ev.Result.PnL.StringFixed(2)),
				"trade")
		}

		tr := &storage.PaperTrade{
			Timestamp:  ev.Time,
			MarketSlug: ev.Position.MarketSlug,
			Action:     action,
			Side:       string(ev.Position.Side),
			Strategy:   string(ev.Position.Strategy),
			Reason:     reason,
			Price:      ev.Position.EntryPrice,
			Amount:     ev.Position.Stake,
			Shares:     ev.Position.Shares,
			Fee:        ev.Position.Fee,
			Balance:    ev.Balance,
		}
		if ev.Result != nil {
			tr.PnL = ev.Result.PnL
		}
		l.db.LogTrade(tr)
	}
}

func regimeFor(timeLeftMin float64) string {
	switch {
	case timeLeftMin < 0.5:
		return "closing"
	case timeLeftMin < 2.0:
		return "endgame"
	default:
		return "open"
	}
}

// modelProbUp normalizes the recommendation probability to the UP side.
func modelProbUp(rec strategy.Recommendation) float64 {
	if rec.Side == strategy.Down {
		return 1 - rec.Probability
	}
	return rec.Probability
}
