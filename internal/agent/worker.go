package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/suzieq/ceo-office/internal/autonomy"
	"github.com/suzieq/ceo-office/internal/bus"
	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/org"
	"github.com/suzieq/ceo-office/internal/store"
)

// genericFailure replaces error text that may carry upstream details.
const genericFailure = "Sorry, that command failed. Please try again later."

// Run consumes the inbound queue until ctx is cancelled. Each message gets
// its own timeout; a panic while handling one message is reported back to
// its chat and does not stop the worker.
func (o *Office) Run(ctx context.Context) error {
	if o.bus == nil {
		return fmt.Errorf("office worker needs a message bus")
	}
	slog.Info("Office worker started", "timeout", o.workerTimeout)
	for {
		msg, err := o.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Office worker stopped")
				return nil
			}
			slog.Error("Failed to consume message", "error", err)
			continue
		}
		o.Handle(ctx, msg)
	}
}

// Handle processes one inbound message.
func (o *Office) Handle(ctx context.Context, msg *bus.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, o.workerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Inbound message handler panicked", "channel", msg.Channel, "kind", msg.Kind, "panic", r)
			o.reply(ctx, msg, "Sorry, something went wrong handling that.")
		}
	}()

	switch msg.Kind {
	case bus.KindCommand:
		out, err := o.Command(ctx, msg)
		if err != nil {
			slog.Warn("Command failed", "command", msg.Command, "channel", msg.Channel, "error", err)
			out = commandFailure(err)
		}
		o.reply(ctx, msg, out)
	default:
		o.Chat(ctx, msg)
	}
}

// commandFailure renders a command error for chat. Only caller mistakes are
// echoed; anything else may hold upstream URLs or response bodies.
func commandFailure(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, autonomy.ErrInvalidMode),
		errors.Is(err, org.ErrInvalidDepartment),
		errors.Is(err, memory.ErrInvalidImportance):
		return "Command failed: " + err.Error()
	default:
		return genericFailure
	}
}
