package trader

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/strategy"
)

const dayLayout = "2006-01-02"

// Position is one open paper position.
type Position struct {
	ID          string          `json:"id"`
	MarketSlug  string          `json:"marketSlug"`
	Question    string          `json:"question,omitempty"`
	Side        strategy.Side   `json:"side"`
	Strategy    strategy.Tag    `json:"strategy"`
	EntryPrice  float64         `json:"entryPrice"`
	Shares      decimal.Decimal `json:"shares"`
	Stake       decimal.Decimal `json:"stake"`
	Fee         decimal.Decimal `json:"fee"`
	Strike      float64         `json:"strike"`
	EntryTime   time.Time       `json:"entryTime"`
	MarketEndMs int64           `json:"marketEndMs"`
}

// TradeResult is one closed trade, kept in a short ring for the
// circuit breaker and the dashboard.
type TradeResult struct {
	MarketSlug string          `json:"marketSlug"`
	Side       strategy.Side   `json:"side"`
	Strategy   strategy.Tag    `json:"strategy"`
	Won        bool            `json:"won"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     string          `json:"reason"`
	ClosedAt   time.Time       `json:"closedAt"`
}

// PaperState is everything the trader persists between runs.
type PaperState struct {
	Balance           decimal.Decimal `json:"balance"`
	Positions         []*Position     `json:"positions"`
	DailyLoss         decimal.Decimal `json:"dailyLoss"`
	LastDailyReset    string          `json:"lastDailyReset"`
	LastStopLossTime  time.Time       `json:"lastStopLossTime"`
	LastExitTime      time.Time       `json:"lastExitTime"`
	LastEntryTime     time.Time       `json:"lastEntryTime"`
	ConsecutiveLosses int             `json:"consecutiveLosses"`
	RecentResults     []TradeResult   `json:"recentResults"`
}

func newPaperState(balance decimal.Decimal, now time.Time) *PaperState {
	return &PaperState{
		Balance:        balance,
		LastDailyReset: now.UTC().Format(dayLayout),
	}
}

// FileStore persists PaperState as JSON with atomic replace, so a
// crash mid-save never corrupts the previous state.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads state from disk. A missing file yields a fresh state with
// the given starting balance.
func (s *FileStore) Load(startBalance decimal.Decimal, now time.Time) (*PaperState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("💾 no saved state, starting fresh")
		return newPaperState(startBalance, now), nil
	}
	if err != nil {
		return nil, err
	}

	var st PaperState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.LastDailyReset == "" {
		st.LastDailyReset = now.UTC().Format(dayLayout)
	}
	log.Info().
		Str("balance", st.Balance.StringFixed(2)).
		Int("openPositions", len(st.Positions)).
		Msg("💾 state restored")
	return &st, nil
}

// Save writes state via temp file + rename. Failures are logged as
// warnings, never fatal: the engine keeps trading on the in-memory
// state.
func (s *FileStore) Save(st *PaperState) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("state marshal failed")
		return
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Msg("state dir create failed")
			return
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("state write failed")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warn().Err(err).Msg("state rename failed")
	}
}
