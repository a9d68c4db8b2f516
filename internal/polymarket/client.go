package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const requestTimeout = 5 * time.Second

// Client talks to the gamma API (market metadata) and the CLOB API
// (buy-side prices).
type Client struct {
	apiURL  string
	clobURL string
	http    *http.Client
}

// NewClient creates a Polymarket REST client.
func NewClient(apiURL, clobURL string) *Client {
	return &Client{
		apiURL:  apiURL,
		clobURL: clobURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// gammaMarket is the wire shape of a gamma API market record. Outcomes
// and clobTokenIds arrive as JSON-encoded strings.
type gammaMarket struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Question     string `json:"question"`
	Outcomes     string `json:"outcomes"`
	ClobTokenIDs string `json:"clobTokenIds"`
	EndDate      string `json:"endDate"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
}

// FetchMarket fetches one market by slug.
func (c *Client) FetchMarket(ctx context.Context, slug string) (*Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var records []json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("%s/markets?%s", c.apiURL, params.Encode()), &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("market %q not found", slug)
	}
	return parseMarket(records[0])
}

// FetchLatestWindow finds the nearest unexpired 15-minute BTC up/down
// window, optionally restricted to a series.
func (c *Client) FetchLatestWindow(ctx context.Context, seriesID string) (*Market, error) {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("active", "true")
	params.Set("limit", "100")
	params.Set("order", "endDate")
	params.Set("ascending", "true")
	if seriesID != "" {
		params.Set("series_id", seriesID)
	}

	var records []json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("%s/markets?%s", c.apiURL, params.Encode()), &records); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	var best *Market
	for _, rec := range records {
		m, err := parseMarket(rec)
		if err != nil {
			continue
		}
		q := strings.ToLower(m.Question)
		if !strings.Contains(q, "bitcoin") && !strings.Contains(q, "btc") {
			continue
		}
		if m.EndDateMs <= now {
			continue
		}
		// 15-minute windows settle within the next quarter hour.
		if m.EndDateMs-now > 16*60_000 {
			continue
		}
		if best == nil || m.EndDateMs < best.EndDateMs {
			best = m
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no open BTC window found")
	}
	return best, nil
}

// FetchBuyPrice returns the best buy-side price for a token in [0,1].
// Nil with no error means the book is empty.
func (c *Client) FetchBuyPrice(ctx context.Context, tokenID string) (*float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", "buy")

	var result struct {
		Price string `json:"price"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/price?%s", c.clobURL, params.Encode()), &result); err != nil {
		return nil, err
	}
	if result.Price == "" {
		return nil, nil
	}
	var p float64
	if _, err := fmt.Sscanf(result.Price, "%f", &p); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", result.Price, err)
	}
	if p <= 0 || p >= 1 {
		return nil, nil
	}
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseMarket(rec json.RawMessage) (*Market, error) {
	var gm gammaMarket
	if err := json.Unmarshal(rec, &gm); err != nil {
		return nil, err
	}

	m := &Market{
		ID:        gm.ID,
		Slug:      gm.Slug,
		Question:  gm.Question,
		FetchedAt: time.Now(),
	}

	if gm.Outcomes != "" {
		if err := json.Unmarshal([]byte(gm.Outcomes), &m.Outcomes); err != nil {
			return nil, fmt.Errorf("bad outcomes: %w", err)
		}
	}
	if gm.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &m.TokenIDs); err != nil {
			return nil, fmt.Errorf("bad clobTokenIds: %w", err)
		}
	}
	if gm.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			m.EndDateMs = t.UnixMilli()
		} else {
			log.Debug().Str("endDate", gm.EndDate).Msg("unparseable end date")
		}
	}

	// Keep the raw record for strike extraction from metadata keys.
	var raw map[string]any
	if err := json.Unmarshal(rec, &raw); err == nil {
		m.Raw = raw
	}

	m.mapTokens()
	return m, nil
}
