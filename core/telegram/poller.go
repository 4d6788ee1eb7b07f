package telegram

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/ocipanel/core/config"

	tele "gopkg.in/telebot.v4"
)

// DefaultLongPollTimeout is the getUpdates hold time when none is configured.
const DefaultLongPollTimeout = 10 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// AllowedUpdates narrows the update types requested from the Bot API; the panel only
	// needs messages and button presses.
	AllowedUpdates []string
}

// LongPollTimeout returns the configured hold time or the default.
func (o PollerOptions) LongPollTimeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return DefaultLongPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a webhook or long poller for opts.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
			AllowedUpdates: opts.AllowedUpdates,
		}
	}
	return &tele.LongPoller{Timeout: opts.LongPollTimeout(), AllowedUpdates: opts.AllowedUpdates}
}
