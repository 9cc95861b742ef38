// Package collector gathers a bounded subset of events out of the bus.
//
// A Collector accepts items through HandleCollect until a lifetime timer,
// an idle timer, an item cap or a processed-item cap ends it. It ends
// exactly once and is never revived. Specializations supply a Hooks
// implementation that extracts the collection key for an item and may add
// their own end conditions.
//
// Filters run outside the collector lock, so deliveries racing on
// different goroutines may have their filters interleave. Items land in
// the collection in the order their filters return, which is not
// necessarily the order they arrived in. Callers that need strict arrival
// order must deliver sequentially (a single-worker bus does).
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hooks are the per-specialization parts of a collector.
// They are called with the collector lock held and must not block.
type Hooks[K comparable, V any] interface {
	// Collect extracts the collection key, or false if the item does not apply
	Collect(item V) (K, bool)
	// Dispose extracts the key of a collected item the event invalidates
	Dispose(item V) (K, bool)
	// EndReason returns a non-empty reason once the collector should stop
	EndReason(s State[K, V]) Reason
}

// Collector is the collection state machine: Active until the first Stop,
// Ended forever after.
type Collector[K comparable, V any] struct {
	id        string
	hooks     Hooks[K, V]
	opts      Options[K, V]
	logger    zerolog.Logger
	startedAt time.Time

	mu              sync.Mutex
	collected       *Collection[K, V]
	received        int
	ended           bool
	endReason       Reason
	lastCollectedAt time.Time

	timeTimer *time.Timer
	idleTimer *time.Timer
	timeGen   uint64
	idleGen   uint64

	// teardown runs once when the collector ends; release holds it until
	// the lock is dropped
	teardown []func()
	release  []func()

	listeners listenerSet[K, V]
	pending   []emission[K, V]
	draining  bool
}

// New creates a collector and arms its timers.
func New[K comparable, V any](hooks Hooks[K, V], opts Options[K, V]) (*Collector[K, V], error) {
	if hooks == nil {
		return nil, fmt.Errorf("%w: hooks are required", ErrInvalidOptions)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	c := &Collector[K, V]{
		id:        uuid.NewString(),
		hooks:     hooks,
		opts:      opts,
		startedAt: time.Now(),
		collected: NewCollection[K, V](),
	}

	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	c.logger = base.With().Str("collector_id", c.id).Str("kind", opts.Kind).Logger()

	c.mu.Lock()
	c.armTimeLocked(opts.Time)
	c.armIdleLocked(opts.Idle)
	c.mu.Unlock()

	c.logger.Debug().
		Dur("lifetime", opts.Time).
		Dur("idle", opts.Idle).
		Int("max", opts.Max).
		Int("max_processed", opts.MaxProcessed).
		Msg("Collector started")

	return c, nil
}

// HandleCollect delivers one item. It is a no-op once the collector ended
// or when the hooks do not extract a key.
func (c *Collector[K, V]) HandleCollect(ctx context.Context, item V) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	key, ok := c.hooks.Collect(item)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.received++
	snapshot := c.collected.Clone()
	c.mu.Unlock()

	accepted, err := c.filter(ctx, item, snapshot)
	if err != nil {
		return fmt.Errorf("%s filter: %w", c.opts.Kind, err)
	}

	c.mu.Lock()
	if c.ended {
		// ended while the filter ran
		c.mu.Unlock()
		return nil
	}
	if accepted {
		c.collected.Set(key, item)
		c.lastCollectedAt = time.Now()
		c.queueLocked(emission[K, V]{kind: emitCollect, item: item, collected: c.collected.Clone()})
		c.armIdleLocked(c.opts.Idle)
	} else {
		c.queueLocked(emission[K, V]{kind: emitIgnore, item: item})
	}
	c.checkEndLocked()
	c.mu.Unlock()

	c.flush()
	return nil
}

// HandleDispose removes a collected item that a later event invalidated.
// It only acts when the Dispose option is set. Disposal does not count as
// activity for the idle timer.
func (c *Collector[K, V]) HandleDispose(ctx context.Context, item V) error {
	if !c.opts.Dispose {
		return nil
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	key, ok := c.hooks.Dispose(item)
	if !ok || !c.collected.Has(key) {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.collected.Clone()
	c.mu.Unlock()

	accepted, err := c.filter(ctx, item, snapshot)
	if err != nil {
		return fmt.Errorf("%s filter: %w", c.opts.Kind, err)
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	if accepted && c.collected.Delete(key) {
		c.queueLocked(emission[K, V]{kind: emitDispose, item: item, collected: c.collected.Clone()})
	}
	c.checkEndLocked()
	c.mu.Unlock()

	c.flush()
	return nil
}

// Stop ends the collector. Only the first call has an effect; an empty
// reason means ReasonUser.
func (c *Collector[K, V]) Stop(reason Reason) {
	if reason == "" {
		reason = ReasonUser
	}
	c.mu.Lock()
	c.stopLocked(reason)
	c.mu.Unlock()
	c.flush()
}

// ResetTimer re-arms the lifetime and/or idle timer without ending the collector.
func (c *Collector[K, V]) ResetTimer(t TimerOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	if t.Time > 0 {
		c.armTimeLocked(t.Time)
	}
	if t.Idle > 0 {
		c.armIdleLocked(t.Idle)
	}
}

// CheckEnd stops the collector if an end condition already holds.
func (c *Collector[K, V]) CheckEnd() bool {
	c.mu.Lock()
	ended := c.checkEndLocked()
	c.mu.Unlock()
	c.flush()
	return ended
}

func (c *Collector[K, V]) filter(ctx context.Context, item V, collected *Collection[K, V]) (bool, error) {
	if c.opts.Filter == nil {
		return true, nil
	}
	return c.opts.Filter(ctx, item, collected)
}

func (c *Collector[K, V]) stateLocked() State[K, V] {
	return State[K, V]{
		Collected:    c.collected,
		Received:     c.received,
		Max:          c.opts.Max,
		MaxProcessed: c.opts.MaxProcessed,
	}
}

func (c *Collector[K, V]) checkEndLocked() bool {
	if c.ended {
		return true
	}
	reason := c.hooks.EndReason(c.stateLocked())
	if reason == "" {
		return false
	}
	c.stopLocked(reason)
	return true
}

func (c *Collector[K, V]) stopLocked(reason Reason) {
	if c.ended {
		return
	}
	c.ended = true
	c.endReason = reason

	if c.timeTimer != nil {
		c.timeTimer.Stop()
		c.timeTimer = nil
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	// invalidate callbacks that already fired
	c.timeGen++
	c.idleGen++

	c.release = append(c.release, c.teardown...)
	c.teardown = nil

	c.queueLocked(emission[K, V]{kind: emitEnd, collected: c.collected.Clone(), reason: reason})

	c.logger.Debug().
		Str("reason", string(reason)).
		Int("collected", c.collected.Len()).
		Int("received", c.received).
		Dur("lifetime", time.Since(c.startedAt)).
		Msg("Collector ended")
}

// armTimeLocked replaces the lifetime timer. time.AfterFunc timers never
// keep the process alive on their own.
func (c *Collector[K, V]) armTimeLocked(d time.Duration) {
	if c.timeTimer != nil {
		c.timeTimer.Stop()
		c.timeTimer = nil
	}
	c.timeGen++
	if d <= 0 {
		return
	}
	gen := c.timeGen
	c.timeTimer = time.AfterFunc(d, func() { c.expire(ReasonTime, gen) })
}

func (c *Collector[K, V]) armIdleLocked(d time.Duration) {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.idleGen++
	if d <= 0 {
		return
	}
	gen := c.idleGen
	c.idleTimer = time.AfterFunc(d, func() { c.expire(ReasonIdle, gen) })
}

// expire is the timer callback. A callback from a timer that has since
// been re-armed or cancelled carries a stale generation and is ignored.
func (c *Collector[K, V]) expire(reason Reason, gen uint64) {
	c.mu.Lock()
	current := c.timeGen
	if reason == ReasonIdle {
		current = c.idleGen
	}
	if c.ended || gen != current {
		c.mu.Unlock()
		return
	}
	c.stopLocked(reason)
	c.mu.Unlock()
	c.flush()
}

// onTeardown registers cleanup that runs exactly once, when the collector
// ends. If it already ended, fn runs right away.
func (c *Collector[K, V]) onTeardown(fn func()) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		fn()
		return
	}
	c.teardown = append(c.teardown, fn)
	c.mu.Unlock()
}

func (c *Collector[K, V]) queueLocked(e emission[K, V]) {
	c.pending = append(c.pending, e)
}

// flush runs pending teardown and dispatches queued events in the order
// they were queued. Only one goroutine drains at a time; others, including
// re-entrant calls from listeners, leave their events to the active drainer.
func (c *Collector[K, V]) flush() {
	c.mu.Lock()
	release := c.release
	c.release = nil
	c.mu.Unlock()
	for _, fn := range release {
		fn()
	}

	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		listeners := c.listeners.snapshot()
		c.mu.Unlock()

		for _, e := range batch {
			listeners.dispatch(e, &c.logger)
		}

		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

// OnCollect registers a listener for accepted items. The returned func removes it.
func (c *Collector[K, V]) OnCollect(fn func(item V, collected *Collection[K, V])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listeners.collect.add(fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.collect.remove(id)
	}
}

// OnIgnore registers a listener for items the filter rejected.
func (c *Collector[K, V]) OnIgnore(fn func(item V)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listeners.ignore.add(fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.ignore.remove(id)
	}
}

// OnDispose registers a listener for disposed items.
func (c *Collector[K, V]) OnDispose(fn func(item V, collected *Collection[K, V])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listeners.dispose.add(fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.dispose.remove(id)
	}
}

// OnEnd registers a listener for the end transition. It fires at most once.
func (c *Collector[K, V]) OnEnd(fn func(collected *Collection[K, V], reason Reason)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listeners.end.add(fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.end.remove(id)
	}
}

// ID returns the session id
func (c *Collector[K, V]) ID() string { return c.id }

// Kind returns the collector label
func (c *Collector[K, V]) Kind() string { return c.opts.Kind }

// StartedAt returns the construction time
func (c *Collector[K, V]) StartedAt() time.Time { return c.startedAt }

// Options returns the effective options, defaults applied
func (c *Collector[K, V]) Options() Options[K, V] { return c.opts }

// Logger returns the collector-scoped logger
func (c *Collector[K, V]) Logger() *zerolog.Logger { return &c.logger }

// Get returns the collected item stored under key
func (c *Collector[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collected.Get(key)
}

// Collected returns a snapshot of the accepted items
func (c *Collector[K, V]) Collected() *Collection[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collected.Clone()
}

// Received returns the number of items that reached key extraction
func (c *Collector[K, V]) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// Ended reports whether the collector has stopped
func (c *Collector[K, V]) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// EndReason returns the reason the collector stopped, empty while active
func (c *Collector[K, V]) EndReason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endReason
}

// LastCollectedAt returns when the last item was accepted, zero if none
func (c *Collector[K, V]) LastCollectedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCollectedAt
}
