// Package polymarket provides the prediction-market adapter: market
// metadata, buy-side CLOB prices, and strike resolution for 15-minute
// BTC up/down windows.
package polymarket

import (
	"strings"
	"time"
)

// Market is a 15-minute binary market.
type Market struct {
	ID          string
	Slug        string
	Question    string
	Outcomes    []string
	TokenIDs    []string
	UpTokenID   string
	DownTokenID string
	EndDateMs   int64

	// Raw keeps the full metadata record for strike extraction.
	Raw map[string]any

	FetchedAt time.Time
}

// Odds holds per-side best buy prices in [0,1]. Nil means unavailable.
type Odds struct {
	Up   *float64
	Down *float64
}

// Valid reports whether both sides carry a usable probability-like price.
func (o Odds) Valid() bool {
	return o.Up != nil && o.Down != nil &&
		*o.Up > 0 && *o.Up < 1 && *o.Down > 0 && *o.Down < 1
}

// mapTokens assigns UpTokenID/DownTokenID from outcome labels. Polymarket
// labels the outcomes "Up"/"Down" (or "Yes"/"No" on older windows, where
// Yes means up).
func (m *Market) mapTokens() {
	if len(m.Outcomes) < 2 || len(m.TokenIDs) < 2 {
		return
	}
	for i, o := range m.Outcomes {
		if i >= len(m.TokenIDs) {
			break
		}
		switch strings.ToLower(o) {
		case "up", "yes", "above":
			m.UpTokenID = m.TokenIDs[i]
		case "down", "no", "below":
			m.DownTokenID = m.TokenIDs[i]
		}
	}
	if m.UpTokenID == "" {
		m.UpTokenID = m.TokenIDs[0]
	}
	if m.DownTokenID == "" {
		m.DownTokenID = m.TokenIDs[1]
	}
}
