// Package channels delivers office replies to chat platforms and event
// streams.
package channels

import (
	"context"
	"log/slog"

	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/effort"
)

// Channel is one outbound delivery target.
type Channel interface {
	// Name is the channel tag used on outbound messages (e.g. "slack").
	Name() string
	// Configured reports whether the channel has credentials.
	Configured() bool
	// Send delivers one message.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
	// Close releases resources.
	Close() error
}

// Attach subscribes every configured channel to the bus. Delivery is best
// effort: one attempt, failures logged. Unconfigured channels and messages
// for unknown channels are dropped with a debug line.
func Attach(b *bus.MessageBus, chs ...Channel) {
	for _, ch := range chs {
		if ch == nil {
			continue
		}
		if !ch.Configured() {
			slog.Debug("Channel not configured, replies will be dropped", "channel", ch.Name())
			b.Subscribe(ch.Name(), func(ctx context.Context, msg *bus.OutboundMessage) {
				slog.Debug("Dropping reply for unconfigured channel", "channel", msg.Channel)
			})
			continue
		}
		b.Subscribe(ch.Name(), func(ctx context.Context, msg *bus.OutboundMessage) {
			effort.Do(ctx, "deliver "+ch.Name(), func(ctx context.Context) error {
				return ch.Send(ctx, msg)
			})
		})
	}
	b.SubscribeAll(func(ctx context.Context, msg *bus.OutboundMessage) {
		slog.Debug("No channel for reply", "channel", msg.Channel)
	})
}
