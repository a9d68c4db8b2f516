// Package notify pushes trade notifications to external channels.
// Delivery is best-effort: failures log a warning and never touch the
// trading loop.
package notify

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polypaper/internal/trader"
)

// Notifier delivers one trade event to one channel.
type Notifier interface {
	NotifyTrade(ev trader.Event)
	NotifyText(msg string)
}

// Multi fans out to every configured channel.
type Multi struct {
	channels []Notifier
}

// NewMulti builds the fan-out, skipping nils.
func NewMulti(channels ...Notifier) *Multi {
	m := &Multi{}
	for _, ch := range channels {
		if ch != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

func (m *Multi) NotifyTrade(ev trader.Event) {
	for _, ch := range m.channels {
		ch.NotifyTrade(ev)
	}
}

func (m *Multi) NotifyText(msg string) {
	for _, ch := range m.channels {
		ch.NotifyText(msg)
	}
}

// Enabled reports whether any channel is configured.
func (m *Multi) Enabled() bool {
	return len(m.channels) > 0
}

// formatTrade renders one event as a human message, shared by all
// channels.
func formatTrade(ev trader.Event) string {
	var b strings.Builder
	switch ev.Type {
	case trader.EventOpened:
		fmt.Fprintf(&b, "📈 OPEN %s %s @ %.2f\n", ev.Position.Side, ev.Position.MarketSlug, ev.Position.EntryPrice)
		fmt.Fprintf(&b, "Strategy: %s | Stake: $%s | Fee: $%s\n",
			ev.Position.Strategy, ev.Position.Stake.StringFixed(2), ev.Position.Fee.StringFixed(4))
	case trader.EventClosed:
		emoji := "❌"
		if ev.Result != nil && ev.Result.Won {
			emoji = "✅"
		}
		fmt.Fprintf(&b, "%s CLOSE %s %s\n", emoji, ev.Position.Side, ev.Position.MarketSlug)
		if ev.Result != nil {
			fmt.Fprintf(&b, "Reason: %s | PnL: $%s\n", ev.Result.Reason, ev.Result.PnL.StringFixed(2))
		}
	}
	fmt.Fprintf(&b, "Balance: $%s", ev.Balance.StringFixed(2))
	return b.String()
}

func warnDelivery(channel string, err error) {
	log.Warn().Err(err).Str("channel", channel).Msg("notification delivery failed")
}
