// Package bus decouples the webhook surface from the office worker: inbound
// messages are queued for the worker, outbound replies are queued for the
// delivery channels.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Inbound message kinds.
const (
	KindChat    = "chat"
	KindCommand = "command"
)

// ErrFull is returned when a queue cannot accept more messages.
var ErrFull = errors.New("bus: queue full")

// InboundMessage is a stimulus from a chat platform.
type InboundMessage struct {
	Kind     string `json:"kind"`
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	// ThreadID is the platform thread reference, if any.
	ThreadID  string    `json:"thread_id,omitempty"`
	Content   string    `json:"content"`
	Command   string    `json:"command,omitempty"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is a reply for a delivery channel.
type OutboundMessage struct {
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content"`
}

// MessageBus holds the inbound and outbound queues.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     map[string][]func(context.Context, *OutboundMessage)
	fallback func(context.Context, *OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a bus with the given queue capacity.
func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = 100
	}
	return &MessageBus{
		inbound:  make(chan *InboundMessage, capacity),
		outbound: make(chan *OutboundMessage, capacity),
		subs:     make(map[string][]func(context.Context, *OutboundMessage)),
	}
}

// PublishInbound queues a message for the worker without blocking.
func (b *MessageBus) PublishInbound(msg *InboundMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case b.inbound <- msg:
		return nil
	default:
		return ErrFull
	}
}

// ConsumeInbound blocks until a message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify queues an outbound message. It blocks until there is room or ctx
// is done.
func (b *MessageBus) Notify(ctx context.Context, msg *OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a callback for outbound messages to one channel.
func (b *MessageBus) Subscribe(channel string, callback func(context.Context, *OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], callback)
}

// SubscribeAll registers a callback for channels with no subscriber.
func (b *MessageBus) SubscribeAll(callback func(context.Context, *OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = callback
}

// DispatchOutbound delivers outbound messages until ctx is cancelled.
// Run it as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.deliver(ctx, msg)
		}
	}
}

// Drain delivers the messages already queued and returns once the outbound
// queue is empty. One-shot commands use it in place of DispatchOutbound.
func (b *MessageBus) Drain(ctx context.Context) {
	for {
		select {
		case msg := <-b.outbound:
			b.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (b *MessageBus) deliver(ctx context.Context, msg *OutboundMessage) {
	b.mu.RLock()
	callbacks := b.subs[msg.Channel]
	fallback := b.fallback
	b.mu.RUnlock()

	if len(callbacks) == 0 && fallback != nil {
		fallback(ctx, msg)
	}
	for _, cb := range callbacks {
		cb(ctx, msg)
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
