package polymarket

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Strike bounds: a plausible BTC strike sits strictly inside this range.
const (
	minPlausibleStrike = 1_000
	maxPlausibleStrike = 2_000_000
)

// Question-text patterns, tried in order. Commas in numbers are tolerated.
var strikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)price to beat[^0-9$]*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`>\s*\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`(?i)above\s*\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
}

var metadataKeyPattern = regexp.MustCompile(`(?i)price|strike|threshold|target|beat`)

// StrikeResolver latches one strike per market slug for the market's
// lifetime. Resolution order: question text, metadata, first chainlink
// price observed after window start. A manual override beats all three.
type StrikeResolver struct {
	mu       sync.Mutex
	latched  map[string]float64
	override *float64
}

// NewStrikeResolver creates an empty resolver.
func NewStrikeResolver() *StrikeResolver {
	return &StrikeResolver{latched: make(map[string]float64)}
}

// SetOverride forces every resolution to the given strike (strike.txt).
func (r *StrikeResolver) SetOverride(strike float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.override == nil || *r.override != strike {
		log.Info().Float64("strike", strike).Msg("strike override active")
	}
	r.override = &strike
}

// ClearOverride removes a previously set override.
func (r *StrikeResolver) ClearOverride() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = nil
}

// Resolve returns the strike for a market. chainlinkPrice is the latest
// on-chain price (0 when unknown); nowMs/windowStartMs gate the latch so
// a price from the previous window is never captured.
func (r *StrikeResolver) Resolve(m *Market, chainlinkPrice float64, nowMs, windowStartMs int64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.override != nil {
		return *r.override, true
	}
	if m == nil {
		return 0, false
	}

	if s, ok := r.latched[m.Slug]; ok {
		return s, true
	}

	if s, ok := ParseStrikeFromQuestion(m.Question); ok {
		r.latch(m.Slug, s, "question")
		return s, true
	}
	if s, ok := strikeFromMetadata(m.Raw); ok {
		r.latch(m.Slug, s, "metadata")
		return s, true
	}
	if chainlinkPrice > 0 && nowMs >= windowStartMs {
		r.latch(m.Slug, chainlinkPrice, "chainlink")
		return chainlinkPrice, true
	}
	return 0, false
}

func (r *StrikeResolver) latch(slug string, strike float64, source string) {
	r.latched[slug] = strike
	log.Info().Str("slug", slug).Float64("strike", strike).Str("source", source).Msg("strike latched")

	// Bound the latch map; slugs rotate every 15 minutes.
	if len(r.latched) > 200 {
		for k := range r.latched {
			if k != slug {
				delete(r.latched, k)
			}
		}
	}
}

// ParseStrikeFromQuestion extracts a strike from the market question text.
func ParseStrikeFromQuestion(question string) (float64, bool) {
	for _, re := range strikePatterns {
		if m := re.FindStringSubmatch(question); m != nil {
			if v, ok := parsePlausible(m[1]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// strikeFromMetadata searches metadata keys containing
// price|strike|threshold|target|beat for a plausible numeric value.
func strikeFromMetadata(raw map[string]any) (float64, bool) {
	for key, val := range raw {
		if !metadataKeyPattern.MatchString(key) {
			continue
		}
		switch v := val.(type) {
		case float64:
			if v > minPlausibleStrike && v < maxPlausibleStrike {
				return v, true
			}
		case string:
			if s, ok := parsePlausible(v); ok {
				return s, true
			}
		}
	}
	return 0, false
}

func parsePlausible(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if v <= minPlausibleStrike || v >= maxPlausibleStrike {
		return 0, false
	}
	return v, true
}
