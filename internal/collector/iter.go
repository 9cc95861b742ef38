package collector

import (
	"context"
	"iter"
	"sync"
)

type collectedPair[K comparable, V any] struct {
	item      V
	collected *Collection[K, V]
}

// All returns the accepted items as a lazy sequence of (item, collectedSoFar)
// pairs. Items accepted while the loop body runs are buffered, so none are
// lost or repeated. The sequence ends once the collector has ended and the
// buffer is drained, or when ctx is done. It is not restartable: ranging
// over an ended collector yields nothing.
func (c *Collector[K, V]) All(ctx context.Context) iter.Seq2[V, *Collection[K, V]] {
	return func(yield func(V, *Collection[K, V]) bool) {
		var (
			mu      sync.Mutex
			backlog []collectedPair[K, V]
			done    bool
			wake    = make(chan struct{}, 1)
		)
		signal := func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}

		c.mu.Lock()
		if c.ended {
			c.mu.Unlock()
			return
		}
		collectID := c.listeners.collect.add(func(item V, collected *Collection[K, V]) {
			mu.Lock()
			backlog = append(backlog, collectedPair[K, V]{item: item, collected: collected})
			mu.Unlock()
			signal()
		})
		endID := c.listeners.end.add(func(*Collection[K, V], Reason) {
			mu.Lock()
			done = true
			mu.Unlock()
			signal()
		})
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			c.listeners.collect.remove(collectID)
			c.listeners.end.remove(endID)
			c.mu.Unlock()
		}()

		for {
			mu.Lock()
			if len(backlog) > 0 {
				p := backlog[0]
				backlog = backlog[1:]
				mu.Unlock()
				if !yield(p.item, p.collected) {
					return
				}
				continue
			}
			finished := done
			mu.Unlock()

			if finished {
				return
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Next waits for the next accepted item. If the collector ends first the
// error is an *EndedError carrying the final collection; it matches ErrEnded.
func (c *Collector[K, V]) Next(ctx context.Context) (V, error) {
	var zero V

	type result struct {
		item V
		err  error
	}
	ch := make(chan result, 1)
	var once sync.Once
	send := func(r result) {
		once.Do(func() { ch <- r })
	}

	c.mu.Lock()
	if c.ended {
		err := &EndedError[K, V]{Collected: c.collected.Clone(), Reason: c.endReason}
		c.mu.Unlock()
		return zero, err
	}
	collectID := c.listeners.collect.add(func(item V, _ *Collection[K, V]) {
		send(result{item: item})
	})
	endID := c.listeners.end.add(func(collected *Collection[K, V], reason Reason) {
		send(result{err: &EndedError[K, V]{Collected: collected, Reason: reason}})
	})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.listeners.collect.remove(collectID)
		c.listeners.end.remove(endID)
		c.mu.Unlock()
	}()

	select {
	case r := <-ch:
		return r.item, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
