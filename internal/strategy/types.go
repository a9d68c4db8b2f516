// Package strategy implements the time-bucketed decision tree that
// turns a snapshot into an ENTER / NO_TRADE recommendation.
package strategy

// Action is the recommendation verb.
type Action string

const (
	Enter   Action = "ENTER"
	NoTrade Action = "NO_TRADE"
)

// Side of a binary market.
type Side string

const (
	Up   Side = "UP"
	Down Side = "DOWN"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Up {
		return Down
	}
	return Up
}

// Tag identifies the strategy that produced a recommendation.
// MeanReversion is legacy: the evaluator never emits it, but positions
// carrying the tag (from older state files) still settle and exit
// correctly in the trader.
type Tag string

const (
	Sniper        Tag = "SNIPER"
	Momentum      Tag = "MOMENTUM"
	LateWindow    Tag = "LATE_WINDOW"
	MeanReversion Tag = "MEAN_REVERSION"
)

// Confidence grade of a recommendation.
type Confidence string

const (
	None     Confidence = "NONE"
	Medium   Confidence = "MEDIUM"
	High     Confidence = "HIGH"
	VeryHigh Confidence = "VERY_HIGH"
	Max      Confidence = "MAX"
)

// Recommendation is the evaluator's output. Reason is free-form for
// observability; Probability and Edge (clamped to >= 0) feed Kelly
// sizing.
type Recommendation struct {
	Action      Action
	Side        Side
	Strategy    Tag
	Confidence  Confidence
	Reason      string
	Probability float64
	Edge        float64
}

func noTrade(tag Tag, reason string) Recommendation {
	return Recommendation{
		Action:     NoTrade,
		Strategy:   tag,
		Confidence: None,
		Reason:     reason,
	}
}
