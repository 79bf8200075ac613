package channels

import (
	"context"

	"github.com/Tanzania-AI-Community/twiga/pkg/bus"
	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the shared state of a concrete channel: identity,
// the message bus, and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{name: name, bus: messageBus, allowFrom: allowFrom}
}

func (b *BaseChannel) Name() string {
	return b.name
}

// IsAllowed reports whether a sender passes the allowlist. An empty
// allowlist admits everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	return false
}

// HandleMessage publishes an inbound message onto the bus after the
// allowlist check.
func (b *BaseChannel) HandleMessage(senderID, chatID, senderName, content, messageID string) {
	if !b.IsAllowed(senderID) {
		logger.WarnCF("channels", "Sender not in allowlist, dropping message", map[string]interface{}{
			"channel": b.name,
			"sender":  senderID,
		})
		return
	}
	b.bus.PublishInbound(bus.InboundMessage{
		Channel:    b.name,
		SenderID:   senderID,
		ChatID:     chatID,
		SenderName: senderName,
		Content:    content,
		MessageID:  messageID,
	})
}
