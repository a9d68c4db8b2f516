// Package chainlink reads the BTC/USD aggregator on Polygon, the feed
// Polymarket windows resolve against. Prices come from latestRoundData()
// polls over JSON-RPC, with an optional WebSocket subscription to
// AnswerUpdated logs for sub-poll freshness.
package chainlink

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	// Chainlink BTC/USD answers carry 8 decimals.
	feedDecimals = 8

	pollInterval     = 2 * time.Second
	staleAfter       = 10 * time.Second
	reconnectBackoff = 3 * time.Second
)

// latestRoundData() function selector.
var latestRoundDataSelector = common.Hex2Bytes("feaf968c")

// AnswerUpdated(int256,uint256,uint256) event topic.
var answerUpdatedTopic = common.HexToHash("0x0559884fd3a460db3073b7fc896cc77986f16e378210ded43186175bf646fc5f")

// Client polls the aggregator and caches the freshest answer.
type Client struct {
	rpcURLs    []string
	wssURL     string
	aggregator common.Address

	mu        sync.RWMutex
	current   decimal.Decimal
	updatedAt time.Time
	rpcIdx    int

	running bool
	stopCh  chan struct{}
}

// NewClient creates a Chainlink client. rpcURLs are tried in order and
// rotated on failure; wssURL is optional.
func NewClient(rpcURLs []string, wssURL, aggregator string) *Client {
	return &Client{
		rpcURLs:    rpcURLs,
		wssURL:     wssURL,
		aggregator: common.HexToAddress(aggregator),
		stopCh:     make(chan struct{}),
	}
}

// Start begins polling and, when configured, the log subscription.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	// Initial synchronous fetch so the first snapshot has a price.
	if err := c.fetchOnce(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial chainlink fetch failed, continuing")
	}

	go c.pollLoop()
	if c.wssURL != "" {
		go c.subscribeLoop()
	}

	log.Info().
		Str("aggregator", c.aggregator.Hex()).
		Str("network", "polygon").
		Msg("⛓️ Chainlink feed started")
	return nil
}

// Stop stops the feed.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

// Price returns the cached answer. A cache older than the staleness
// bound triggers one synchronous refetch before returning.
func (c *Client) Price(ctx context.Context) float64 {
	c.mu.RLock()
	price, updated := c.current, c.updatedAt
	c.mu.RUnlock()

	if time.Since(updated) > staleAfter {
		if err := c.fetchOnce(ctx); err != nil {
			log.Warn().Err(err).Msg("chainlink stale refetch failed")
			return price.InexactFloat64()
		}
		c.mu.RLock()
		price = c.current
		c.mu.RUnlock()
	}
	return price.InexactFloat64()
}

func (c *Client) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.fetchOnce(context.Background()); err != nil {
				log.Debug().Err(err).Msg("chainlink poll failed")
			}
		}
	}
}

// fetchOnce calls latestRoundData() on the next healthy RPC endpoint.
func (c *Client) fetchOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	for i := 0; i < len(c.rpcURLs); i++ {
		url := c.nextRPC()
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := client.CallContract(ctx, ethereum.CallMsg{
			To:   &c.aggregator,
			Data: latestRoundDataSelector,
		}, nil)
		client.Close()
		if err != nil || len(result) < 160 {
			lastErr = err
			continue
		}

		// (roundId, answer, startedAt, updatedAt, answeredInRound)
		answer := new(big.Int).SetBytes(result[32:64])
		c.store(decimal.NewFromBigInt(answer, -feedDecimals))
		return nil
	}
	return lastErr
}

func (c *Client) nextRPC() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	url := c.rpcURLs[c.rpcIdx%len(c.rpcURLs)]
	c.rpcIdx++
	return url
}

// subscribeLoop maintains the AnswerUpdated log subscription,
// reconnecting with fixed backoff.
func (c *Client) subscribeLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.subscribe(); err != nil {
			log.Warn().Err(err).Msg("chainlink subscription dropped, reconnecting")
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (c *Client) subscribe() error {
	client, err := ethclient.Dial(c.wssURL)
	if err != nil {
		return err
	}
	defer client.Close()

	logs := make(chan types.Log, 16)
	sub, err := client.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{
		Addresses: []common.Address{c.aggregator},
		Topics:    [][]common.Hash{{answerUpdatedTopic}},
	}, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Msg("⛓️ Chainlink AnswerUpdated stream connected")

	for {
		select {
		case <-c.stopCh:
			return nil
		case err := <-sub.Err():
			return err
		case ev := <-logs:
			if len(ev.Topics) < 2 {
				continue
			}
			answer := new(big.Int).SetBytes(ev.Topics[1].Bytes())
			c.store(decimal.NewFromBigInt(answer, -feedDecimals))
		}
	}
}

func (c *Client) store(price decimal.Decimal) {
	c.mu.Lock()
	changed := !price.Equal(c.current)
	c.current = price
	c.updatedAt = time.Now()
	c.mu.Unlock()

	if changed {
		log.Debug().Str("price", price.StringFixed(2)).Msg("chainlink update")
	}
}
