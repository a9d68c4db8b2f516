package candles

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// unitVolume is the fixed per-bucket volume assigned to candles built
// from trade-by-trade streams, which carry no usable size here. It can
// be replaced when richer feeds are wired in.
const unitVolume = 1.0

// Aggregator folds ticks into 1-minute candles. It is safe for use by a
// single producer (the spot feed callback) and many readers.
type Aggregator struct {
	mu       sync.RWMutex
	capacity int
	closed   []Candle
	forming  *Candle
}

// NewAggregator creates an aggregator keeping at least capacity closed
// candles (240 by default when capacity <= 0).
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = 240
	}
	return &Aggregator{
		capacity: capacity,
		closed:   make([]Candle, 0, capacity),
	}
}

// AddTick folds one (timestamp, price) observation into the ring.
// A tick in a new minute bucket closes the forming candle first.
func (a *Aggregator) AddTick(tsMs int64, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := Bucket(tsMs)

	if a.forming == nil {
		a.forming = newCandle(bucket, price)
		return
	}

	if bucket > a.forming.OpenTime {
		a.appendClosed(*a.forming)
		a.forming = newCandle(bucket, price)
		return
	}

	if bucket < a.forming.OpenTime {
		// Out-of-order tick from a reconnecting feed; drop it rather
		// than mutate a closed bucket.
		log.Debug().Int64("ts", tsMs).Msg("stale tick dropped")
		return
	}

	if price > a.forming.High {
		a.forming.High = price
	}
	if price < a.forming.Low {
		a.forming.Low = price
	}
	a.forming.Close = price
}

// Backfill seeds the ring with historical candles (oldest first),
// discarding any at or after the forming candle's bucket.
func (a *Aggregator) Backfill(history []Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range history {
		if a.forming != nil && c.OpenTime >= a.forming.OpenTime {
			continue
		}
		if n := len(a.closed); n > 0 && c.OpenTime <= a.closed[n-1].OpenTime {
			continue
		}
		a.appendClosed(c)
	}
	log.Info().Int("candles", len(a.closed)).Msg("candle history backfilled")
}

// Closed returns a copy of the closed candles, oldest first.
func (a *Aggregator) Closed() []Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Candle, len(a.closed))
	copy(out, a.closed)
	return out
}

// Last returns up to n of the most recent closed candles.
func (a *Aggregator) Last(n int) []Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if n > len(a.closed) {
		n = len(a.closed)
	}
	out := make([]Candle, n)
	copy(out, a.closed[len(a.closed)-n:])
	return out
}

// Forming returns the currently forming candle, if any.
func (a *Aggregator) Forming() (Candle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.forming == nil {
		return Candle{}, false
	}
	return *a.forming, true
}

func (a *Aggregator) appendClosed(c Candle) {
	a.closed = append(a.closed, c)
	if len(a.closed) > a.capacity {
		a.closed = a.closed[len(a.closed)-a.capacity:]
	}
}

func newCandle(bucket int64, price float64) *Candle {
	return &Candle{
		OpenTime: bucket,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   unitVolume,
	}
}
