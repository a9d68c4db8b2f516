// Package binance provides the spot price feed: a trade-stream
// WebSocket reader with last-value semantics plus a REST kline backfill
// for seeding the candle ring.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polypaper/internal/candles"
)

const (
	wsURL            = "wss://stream.binance.com:9443/ws/btcusdt@trade"
	klinesURL        = "https://api.binance.com/api/v3/klines"
	reconnectBackoff = 3 * time.Second
)

// TickFunc receives each trade as (timestamp ms, price).
type TickFunc func(tsMs int64, price float64)

// Client reads the BTCUSDT trade stream.
type Client struct {
	mu        sync.RWMutex
	lastPrice decimal.Decimal
	lastSeen  time.Time

	onTick TickFunc

	running bool
	stopCh  chan struct{}
}

// NewClient creates a spot feed client.
func NewClient() *Client {
	return &Client{stopCh: make(chan struct{})}
}

// SetTickCallback registers the per-trade callback. Must be called
// before Start.
func (c *Client) SetTickCallback(cb TickFunc) {
	c.onTick = cb
}

// Start launches the WebSocket reader. The reader reconnects forever
// with a fixed backoff; it never fails the caller.
func (c *Client) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.readLoop()
	log.Info().Str("stream", "btcusdt@trade").Msg("📈 Binance feed started")
}

// Stop stops the reader.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

// LastPrice returns the freshest trade price and its arrival time.
func (c *Client) LastPrice() (decimal.Decimal, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPrice, c.lastSeen
}

// SpotPrice returns the freshest trade price as a float, 0 before the
// first trade arrives.
func (c *Client) SpotPrice() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPrice.InexactFloat64()
}

// tradeEvent is the wire shape of one btcusdt@trade frame.
type tradeEvent struct {
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

func (c *Client) readLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.Warn().Err(err).Msg("binance connect failed, retrying")
			if !c.sleep(reconnectBackoff) {
				return
			}
			continue
		}

		c.consume(conn)
		conn.Close()

		if !c.sleep(reconnectBackoff) {
			return
		}
	}
}

func (c *Client) consume(conn *websocket.Conn) {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("binance stream closed, reconnecting")
			return
		}

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(ev.Price)
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.lastPrice = price
		c.lastSeen = time.Now()
		cb := c.onTick
		c.mu.Unlock()

		if cb != nil {
			cb(ev.TradeTime, price.InexactFloat64())
		}
	}
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// FetchKlines backfills up to limit closed 1-minute candles from the
// REST API, oldest first.
func FetchKlines(ctx context.Context, limit int) ([]candles.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s?symbol=BTCUSDT&interval=1m&limit=%d", klinesURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines: unexpected status %d", resp.StatusCode)
	}

	// Each kline is [openTime, open, high, low, close, volume, ...].
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	out := make([]candles.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		o, err1 := parseQuoted(row[1])
		h, err2 := parseQuoted(row[2])
		l, err3 := parseQuoted(row[3])
		cl, err4 := parseQuoted(row[4])
		v, err5 := parseQuoted(row[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		out = append(out, candles.Candle{
			OpenTime: openTime,
			Open:     o,
			High:     h,
			Low:      l,
			Close:    cl,
			Volume:   v,
		})
	}
	return out, nil
}

func parseQuoted(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
