package dashboard

// PositionView is one open position as shown on the dashboard.
type PositionView struct {
	MarketSlug string  `json:"marketSlug"`
	Side       string  `json:"side"`
	Strategy   string  `json:"strategy"`
	EntryPrice float64 `json:"entryPrice"`
	Stake      float64 `json:"stake"`
	Shares     float64 `json:"shares"`
	PnL        float64 `json:"pnl"`
}

// TradeView is one recent closed trade.
type TradeView struct {
	MarketSlug string  `json:"marketSlug"`
	Side       string  `json:"side"`
	Strategy   string  `json:"strategy"`
	Won        bool    `json:"won"`
	PnL        float64 `json:"pnl"`
	Reason     string  `json:"reason"`
	ClosedAt   string  `json:"closedAt"`
}

// WinStats is a win/loss tally.
type WinStats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// Indicators is the indicator block of the state frame.
type Indicators struct {
	Heiken string  `json:"indHeiken"`
	Rsi    float64 `json:"indRsi"`
	Macd   float64 `json:"indMacd"`
	Vwap   float64 `json:"indVwap"`
	Ema    float64 `json:"indEma"`
}

// StatePayload is the dashboard's full view of the engine, sent on
// every fast tick. The key set is stable, the frontend binds to it.
type StatePayload struct {
	MarketName  string  `json:"marketName"`
	MarketSlug  string  `json:"marketSlug"`
	TimeLeftStr string  `json:"timeLeftStr"`
	TimeLeftMin float64 `json:"timeLeftMin"`

	Side       string `json:"side"`
	Phase      string `json:"phase"`
	Conviction string `json:"conviction"`
	Advice     string `json:"advice"`

	BinancePrice float64 `json:"binancePrice"`
	CurrentPrice float64 `json:"currentPrice"`
	StrikePrice  float64 `json:"strikePrice"`
	Gap          float64 `json:"gap"`
	PolyUp       float64 `json:"polyUp"`
	PolyDown     float64 `json:"polyDown"`

	TotalEquity  float64 `json:"totalEquity"`
	DailyPnl     float64 `json:"dailyPnl"`
	PaperBalance float64 `json:"paperBalance"`

	Position  *PositionView  `json:"position"`
	Positions []PositionView `json:"positions"`
	PosPnl    float64        `json:"posPnl"`

	Ind Indicators `json:"indicators"`

	RecentTrades []TradeView `json:"recentTrades"`
	WinStats     struct {
		Today   WinStats `json:"today"`
		Overall WinStats `json:"overall"`
	} `json:"winStats"`
}
