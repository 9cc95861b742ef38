package collector

import (
	"context"
	"fmt"

	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// KeyboardOptions configure an InlineKeyboardCollector
type KeyboardOptions struct {
	Options[string, *models.CallbackQuery]

	// MaxUsers ends the collector with ReasonUserLimit once presses from
	// this many distinct users are collected; 0 disables
	MaxUsers int
}

// InlineKeyboardCollector collects button presses keyed by callback query
// ID. It does not scope by chat; put such checks in the filter.
type InlineKeyboardCollector struct {
	*Collector[string, *models.CallbackQuery]
}

type keyboardHooks struct {
	maxUsers int
}

func (keyboardHooks) Collect(q *models.CallbackQuery) (string, bool) {
	if q == nil || q.ID == "" {
		return "", false
	}
	return q.ID, true
}

func (keyboardHooks) Dispose(*models.CallbackQuery) (string, bool) {
	return "", false
}

func (h keyboardHooks) EndReason(s State[string, *models.CallbackQuery]) Reason {
	if r := LimitReason(s); r != "" {
		return r
	}
	if h.maxUsers > 0 && distinctPressers(s.Collected) >= h.maxUsers {
		return ReasonUserLimit
	}
	return ""
}

func distinctPressers(c *Collection[string, *models.CallbackQuery]) int {
	seen := make(map[int64]struct{})
	for _, q := range c.All() {
		seen[q.From.ID] = struct{}{}
	}
	return len(seen)
}

// NewInlineKeyboardCollector creates a button-press collector and attaches it to host.
func NewInlineKeyboardCollector(ctx context.Context, host Host, opts KeyboardOptions) (*InlineKeyboardCollector, error) {
	if opts.MaxUsers < 0 {
		return nil, fmt.Errorf("%w: max users %d", ErrInvalidOptions, opts.MaxUsers)
	}
	if opts.Kind == "" {
		opts.Kind = "keyboard"
	}

	c, err := New[string, *models.CallbackQuery](keyboardHooks{maxUsers: opts.MaxUsers}, opts.Options)
	if err != nil {
		return nil, fmt.Errorf("keyboard collector: %w", err)
	}
	kc := &InlineKeyboardCollector{Collector: c}

	c.attach(ctx, host, route{
		eventType: eventbus.EventTypeCallbackQuery,
		handler: func(e eventbus.Event) {
			q, ok := e.Payload.(*models.CallbackQuery)
			if !ok {
				return
			}
			kc.logDeliveryError(e.Type, kc.HandleCollect(ctx, q))
		},
	})

	return kc, nil
}
