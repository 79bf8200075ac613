package bus

import (
	"context"
)

// InboundMessage is one user turn arriving from a channel.
type InboundMessage struct {
	Channel    string // originating channel name, e.g. "whatsapp", "cli"
	SenderID   string // platform identity of the sender (WhatsApp wa_id)
	ChatID     string // destination for replies; equals SenderID for 1:1 chats
	SenderName string
	Content    string
	MessageID  string // platform message id, used for dedup where available
}

// OutboundMessage is text to deliver back to a chat.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// MessageBus decouples channels from the agent engine. Inbound messages
// flow channel -> engine, outbound messages flow engine -> channel
// dispatcher. Both directions are buffered so publishers rarely block.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 256),
		outbound: make(chan OutboundMessage, 256),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The second return value is false when ctx was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until a message is available or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
