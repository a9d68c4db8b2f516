// Package storage is the append-only trade and signal log. Writes are
// best-effort: a busy database drops the row with a warning, it never
// blocks the trading loop.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Models

// Signal is one row per slow tick: what the evaluator saw and said.
type Signal struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `gorm:"index"`
	MarketSlug     string    `gorm:"index"`
	TimeLeftMin    float64
	Regime         string // time bucket the dispatch landed in
	Signal         string // ENTER or NO_TRADE
	Strategy       string
	Side           string
	Reason         string
	ModelProbUp    float64
	MarketProbUp   float64
	MarketProbDown float64
	EdgeUp         float64
	Strike         float64
	BinancePrice   float64
	ChainlinkPrice float64
	Gap            float64
	CreatedAt      time.Time
}

// PaperTrade is one row per open/close action on the paper ledger.
type PaperTrade struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index"`
	MarketSlug string    `gorm:"index"`
	Action     string    // OPEN, CLOSE, SETTLE
	Side       string
	Strategy   string
	Reason     string
	Price      float64
	Amount     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Shares     decimal.Decimal `gorm:"type:decimal(20,6)"`
	Fee        decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnL        decimal.Decimal `gorm:"type:decimal(20,6)"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt  time.Time
}

// New opens the log database. A postgres:// DSN selects PostgreSQL,
// anything else is a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Signal{}, &PaperTrade{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// LogSignal appends a signal row. Failures downgrade to warnings.
func (d *Database) LogSignal(sig *Signal) {
	if d == nil {
		return
	}
	if err := d.db.Create(sig).Error; err != nil {
		log.Warn().Err(err).Msg("signal log write dropped")
	}
}

// LogTrade appends a trade row. Failures downgrade to warnings.
func (d *Database) LogTrade(tr *PaperTrade) {
	if d == nil {
		return
	}
	if err := d.db.Create(tr).Error; err != nil {
		log.Warn().Err(err).Msg("trade log write dropped")
	}
}

// RecentTrades returns the latest trade rows, newest first.
func (d *Database) RecentTrades(limit int) ([]PaperTrade, error) {
	if d == nil {
		return nil, nil
	}
	var trades []PaperTrade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// RecentSignals returns the latest signal rows, newest first.
func (d *Database) RecentSignals(limit int) ([]Signal, error) {
	if d == nil {
		return nil, nil
	}
	var sigs []Signal
	err := d.db.Order("created_at DESC").Limit(limit).Find(&sigs).Error
	return sigs, err
}

// Close closes the underlying connection.
func (d *Database) Close() {
	if d == nil {
		return
	}
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}
