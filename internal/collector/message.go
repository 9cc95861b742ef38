package collector

import (
	"context"
	"fmt"

	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// MessageOptions configure a MessageCollector
type MessageOptions = Options[int, *models.Message]

// MessageCollector collects the messages of one chat, keyed by message ID.
// A re-delivered message ID overwrites the earlier item.
type MessageCollector struct {
	*Collector[int, *models.Message]
	chatID int64
}

type messageHooks struct {
	chatID int64
}

func (h messageHooks) Collect(m *models.Message) (int, bool) {
	if m == nil || m.Chat.ID != h.chatID {
		return 0, false
	}
	return m.ID, true
}

func (h messageHooks) Dispose(m *models.Message) (int, bool) {
	return h.Collect(m)
}

func (h messageHooks) EndReason(s State[int, *models.Message]) Reason {
	return LimitReason(s)
}

// NewMessageCollector creates a collector bound to chatID and attaches it to host.
// With Dispose set it also listens for deleted messages.
func NewMessageCollector(ctx context.Context, host Host, chatID int64, opts MessageOptions) (*MessageCollector, error) {
	if chatID == 0 {
		return nil, ErrNoChat
	}
	if opts.Kind == "" {
		opts.Kind = "message"
	}

	c, err := New[int, *models.Message](messageHooks{chatID: chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("message collector: %w", err)
	}
	mc := &MessageCollector{Collector: c, chatID: chatID}

	routes := []route{{eventType: eventbus.EventTypeMessage, handler: mc.onMessage(ctx)}}
	if c.opts.Dispose {
		routes = append(routes, route{eventType: eventbus.EventTypeMessageDeleted, handler: mc.onDeleted(ctx)})
	}
	c.attach(ctx, host, routes...)

	return mc, nil
}

// ChatID returns the chat the collector is bound to
func (mc *MessageCollector) ChatID() int64 {
	return mc.chatID
}

func (mc *MessageCollector) onMessage(ctx context.Context) eventbus.Handler {
	return func(e eventbus.Event) {
		msg, ok := e.Payload.(*models.Message)
		if !ok {
			return
		}
		mc.logDeliveryError(e.Type, mc.HandleCollect(ctx, msg))
	}
}

// onDeleted resolves the deletion to the collected message so the filter
// sees the original item.
func (mc *MessageCollector) onDeleted(ctx context.Context) eventbus.Handler {
	return func(e eventbus.Event) {
		del, ok := e.Payload.(*models.MessageDeleted)
		if !ok || del.Chat.ID != mc.chatID {
			return
		}
		msg, ok := mc.Get(del.MessageID)
		if !ok {
			return
		}
		mc.logDeliveryError(e.Type, mc.HandleDispose(ctx, msg))
	}
}
