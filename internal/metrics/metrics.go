// Package metrics exposes the engine's Prometheus series, served by the
// dashboard at /metrics.
//
//	engine_decisions_total{strategy,action}  – evaluator outcomes
//	engine_trades_total{result}              – trades by result (open|win|loss)
//	engine_exit_reasons_total{reason,side}   – exits split by reason and side
//	engine_entry_rejects_total{reason}       – entry gate rejections
//	engine_balance_usd                       – paper balance (gauge)
//	engine_unrealized_pnl_usd                – mark-to-market open PnL (gauge)
//	engine_open_positions                    – open position count (gauge)
//	engine_spot_price_usd / engine_chainlink_price_usd
//	engine_time_left_min                     – minutes to window settlement
//	engine_hard_errors_total                 – loop hard errors
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_decisions_total",
			Help: "Evaluator decisions by strategy and action",
		},
		[]string{"strategy", "action"},
	)

	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Trades counted by result (open|win|loss)",
		},
		[]string{"result"},
	)

	mtxExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_reasons_total",
			Help: "Exits split by reason and side",
		},
		[]string{"reason", "side"},
	)

	mtxEntryRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_entry_rejects_total",
			Help: "Entry attempts blocked, by gate reason",
		},
		[]string{"reason"},
	)

	gaugeBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_balance_usd",
		Help: "Paper balance in USD",
	})

	gaugeUnrealized = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_unrealized_pnl_usd",
		Help: "Mark-to-market PnL of open positions",
	})

	gaugeOpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_positions",
		Help: "Open paper positions",
	})

	gaugeSpot = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_spot_price_usd",
		Help: "Latest spot trade price",
	})

	gaugeChainlink = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_chainlink_price_usd",
		Help: "Latest on-chain reference price",
	})

	gaugeTimeLeft = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_time_left_min",
		Help: "Minutes until the tracked window settles",
	})

	mtxHardErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_hard_errors_total",
		Help: "Hard errors in the orchestrator loop",
	})
)

func init() {
	prometheus.MustRegister(mtxDecisions, mtxTrades, mtxExitReasons, mtxEntryRejects)
	prometheus.MustRegister(gaugeBalance, gaugeUnrealized, gaugeOpenPositions)
	prometheus.MustRegister(gaugeSpot, gaugeChainlink, gaugeTimeLeft)
	prometheus.MustRegister(mtxHardErrors)
}

func IncDecision(strategy, action string) { mtxDecisions.WithLabelValues(strategy, action).Inc() }
func IncTrade(result string)              { mtxTrades.WithLabelValues(result).Inc() }
func IncExitReason(reason, side string)   { mtxExitReasons.WithLabelValues(reason, side).Inc() }
func IncEntryReject(reason string)        { mtxEntryRejects.WithLabelValues(reason).Inc() }
func SetBalance(v float64)                { gaugeBalance.Set(v) }
func SetUnrealized(v float64)             { gaugeUnrealized.Set(v) }
func SetOpenPositions(n int)              { gaugeOpenPositions.Set(float64(n)) }
func SetSpotPrice(v float64)              { gaugeSpot.Set(v) }
func SetChainlinkPrice(v float64)         { gaugeChainlink.Set(v) }
func SetTimeLeft(v float64)               { gaugeTimeLeft.Set(v) }
func IncHardError()                       { mtxHardErrors.Inc() }
