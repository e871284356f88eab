package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/config"
)

// SlackChannel posts messages with the Slack Web API.
type SlackChannel struct {
	client *slack.Client
}

// NewSlackChannel creates the channel. Without a bot token it is
// unconfigured.
func NewSlackChannel(cfg config.SlackConfig) *SlackChannel {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return &SlackChannel{}
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackChannel{client: slack.New(cfg.BotToken, opts...)}
}

func (c *SlackChannel) Name() string     { return "slack" }
func (c *SlackChannel) Configured() bool { return c.client != nil }
func (c *SlackChannel) Close() error     { return nil }

// Send posts msg to its channel, threaded when ThreadID is set.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return nil
	}
	if msg.ChatID == "" {
		return fmt.Errorf("slack: channel id is required")
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
	}
	if _, _, err := c.client.PostMessageContext(ctx, msg.ChatID, opts...); err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
