// Package marketclock provides deterministic 15-minute window math.
package marketclock

// WindowMinutes is the length of one prediction window.
const WindowMinutes = 15

const windowMs = int64(WindowMinutes) * 60_000

// Window describes the 15-minute window containing a timestamp.
type Window struct {
	StartMs      int64
	EndMs        int64
	ElapsedMin   float64
	RemainingMin float64
}

// At returns the window containing nowMs.
func At(nowMs int64) Window {
	start := nowMs / windowMs * windowMs
	end := start + windowMs
	return Window{
		StartMs:      start,
		EndMs:        end,
		ElapsedMin:   float64(nowMs-start) / 60_000,
		RemainingMin: float64(end-nowMs) / 60_000,
	}
}

// TimeLeftMin returns the minutes remaining until settlement. When the
// market carries an end date (unix-ms) it defines the true settlement
// instant and overrides the clock-derived remaining.
func TimeLeftMin(nowMs, marketEndMs int64) float64 {
	if marketEndMs > 0 {
		return float64(marketEndMs-nowMs) / 60_000
	}
	return At(nowMs).RemainingMin
}
