// Package candles folds a stream of (timestamp, price) ticks into
// 1-minute OHLC candles and keeps a bounded history ring.
package candles

// MinuteMs is the bucket width of one candle.
const MinuteMs int64 = 60_000

// Candle is a 1-minute OHLC bar. OpenTime is aligned to the minute
// boundary (unix-ms, multiple of 60000). A candle is mutable only while
// it is the forming candle; once closed it never changes.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Bucket returns the minute-aligned open time for a timestamp.
func Bucket(tsMs int64) int64 {
	return tsMs / MinuteMs * MinuteMs
}
