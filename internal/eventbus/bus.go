package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeMessage         EventType = "message"
	EventTypeMessageDeleted  EventType = "message_deleted"
	EventTypeMessageReaction EventType = "message_reaction"
	EventTypeCallbackQuery   EventType = "callback_query"
)

// Default configuration
const (
	// A single worker keeps handlers running in publish order.
	DefaultWorkerCount  = 1
	DefaultQueueSize    = 100
	DefaultMaxListeners = 10
)

// Event represents an event in the system.
// Payload carries the typed model (e.g. *models.Message).
type Event struct {
	Type    EventType
	Payload any
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

type handlerEntry struct {
	id      uint64
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu           sync.RWMutex
	handlers     map[EventType][]handlerEntry
	nextID       uint64
	maxListeners int

	// Worker pool
	workQueue chan work
	wg        sync.WaitGroup
	closed    bool
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers:     make(map[EventType][]handlerEntry),
		maxListeners: DefaultMaxListeners,
		workQueue:    make(chan work, queueSize),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type.
// The returned Subscription is the only way to remove the handler again.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], handlerEntry{id: id, handler: handler})

	if n := len(b.handlers[eventType]); b.maxListeners > 0 && n > b.maxListeners {
		log.Warn().
			Str("event_type", string(eventType)).
			Int("listeners", n).
			Int("max_listeners", b.maxListeners).
			Msg("Possible listener leak detected")
	}

	return &Subscription{bus: b, eventType: eventType, id: id}
}

// unsubscribe removes a handler by id
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[eventType]
	for i, e := range entries {
		if e.id == id {
			// Copy so in-flight Publish snapshots stay intact
			next := make([]handlerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, eventType)
			} else {
				b.handlers[eventType] = next
			}
			return
		}
	}
}

// ListenerCount returns the number of handlers registered for an event type
func (b *Bus) ListenerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// MaxListeners returns the per-type listener count above which a leak warning is logged
func (b *Bus) MaxListeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxListeners
}

// SetMaxListeners sets the leak warning threshold (0 disables the warning)
func (b *Bus) SetMaxListeners(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxListeners = n
}

// IncrementMaxListeners raises the leak threshold by one.
// Long-lived dynamic subscribers (collectors) call this on attach.
func (b *Bus) IncrementMaxListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxListeners > 0 {
		b.maxListeners++
	}
}

// DecrementMaxListeners undoes IncrementMaxListeners
func (b *Bus) DecrementMaxListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxListeners > 1 {
		b.maxListeners--
	}
}

// Publish sends an event to all subscribed handlers.
// Non-blocking: if the work queue is full or bus is closing, events are dropped.
// The read lock is held while queueing so Close cannot close the queue mid-send.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
		return
	}

	for _, entry := range b.handlers[event.Type] {
		select {
		case b.workQueue <- work{event: event, handler: entry.handler}:
			// Successfully queued
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Backlog returns the number of queued deliveries not yet picked up by a worker
func (b *Bus) Backlog() int {
	return len(b.workQueue)
}

// Capacity returns the work queue size
func (b *Bus) Capacity() int {
	return cap(b.workQueue)
}

// Close shuts down the worker pool gracefully.
// First stops publishers, then closes the work queue and waits for workers.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.workQueue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]handlerEntry)
}
