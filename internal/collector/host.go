package collector

import (
	"context"

	"github.com/dokzlo13/tgcollect/internal/eventbus"
)

// Host is the event source a collector attaches to. *eventbus.Bus implements it.
type Host interface {
	Subscribe(eventType eventbus.EventType, handler eventbus.Handler) *eventbus.Subscription
	IncrementMaxListeners()
	DecrementMaxListeners()
}

type route struct {
	eventType eventbus.EventType
	handler   eventbus.Handler
}

// attach subscribes one handler per route and ties their release to the
// end transition. Cancelling ctx stops the collector with ReasonUser.
// Nothing is subscribed if the collector already ended.
func (c *Collector[K, V]) attach(ctx context.Context, host Host, routes ...route) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}

	host.IncrementMaxListeners()
	subs := make([]*eventbus.Subscription, 0, len(routes))
	for _, r := range routes {
		subs = append(subs, host.Subscribe(r.eventType, r.handler))
	}
	c.teardown = append(c.teardown, func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
		host.DecrementMaxListeners()
	})
	c.mu.Unlock()

	// Registered after the lock is released: AfterFunc may run at once
	stopOnCancel := context.AfterFunc(ctx, func() { c.Stop(ReasonUser) })
	c.onTeardown(func() { stopOnCancel() })
}

// logDeliveryError reports a filter failure from a bus delivery. The
// collector keeps running; the failing item is neither collected nor ignored.
func (c *Collector[K, V]) logDeliveryError(eventType eventbus.EventType, err error) {
	if err == nil {
		return
	}
	c.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Collector filter failed")
}
