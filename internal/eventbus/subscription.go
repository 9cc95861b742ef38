package eventbus

import "sync"

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        uint64
	once      sync.Once
}

// EventType returns the event type the subscription listens on
func (s *Subscription) EventType() EventType {
	return s.eventType
}

// Unsubscribe removes the handler from the bus. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.eventType, s.id)
	})
}
