package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/web3guy0/polypaper/internal/trader"
)

// Discord posts plain-content messages to a webhook URL.
type Discord struct {
	webhookURL string
	http       *http.Client
}

// NewDiscord returns nil when no webhook is configured.
func NewDiscord(webhookURL string) *Discord {
	if webhookURL == "" {
		return nil
	}
	return &Discord{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Discord) NotifyTrade(ev trader.Event) {
	d.NotifyText(formatTrade(ev))
}

func (d *Discord) NotifyText(msg string) {
	body, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		warnDelivery("discord", err)
		return
	}
	resp, err := d.http.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		warnDelivery("discord", err)
		return
	}
	resp.Body.Close()
}
