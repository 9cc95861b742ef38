package collector

import "iter"

// Collection is an insertion-ordered map of collected items.
// A Collection handed to listeners, filters or iterators is a snapshot;
// mutating it does not affect the collector.
type Collection[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

// NewCollection creates an empty collection
func NewCollection[K comparable, V any]() *Collection[K, V] {
	return &Collection[K, V]{items: make(map[K]V)}
}

// Len returns the number of items
func (c *Collection[K, V]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Get returns the item stored under key
func (c *Collection[K, V]) Get(key K) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is present
func (c *Collection[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores item under key. An existing key keeps its position.
func (c *Collection[K, V]) Set(key K, item V) {
	if _, ok := c.items[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.items[key] = item
}

// Delete removes key, reporting whether it was present
func (c *Collection[K, V]) Delete(key K) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order
func (c *Collection[K, V]) Keys() []K {
	if c == nil {
		return nil
	}
	out := make([]K, len(c.keys))
	copy(out, c.keys)
	return out
}

// Values returns the items in insertion order
func (c *Collection[K, V]) Values() []V {
	if c == nil {
		return nil
	}
	out := make([]V, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.items[k])
	}
	return out
}

// First returns the earliest inserted item
func (c *Collection[K, V]) First() (V, bool) {
	if c.Len() == 0 {
		var zero V
		return zero, false
	}
	return c.items[c.keys[0]], true
}

// Last returns the most recently inserted item
func (c *Collection[K, V]) Last() (V, bool) {
	if c.Len() == 0 {
		var zero V
		return zero, false
	}
	return c.items[c.keys[len(c.keys)-1]], true
}

// All iterates key/item pairs in insertion order
func (c *Collection[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if c == nil {
			return
		}
		for _, k := range c.keys {
			if !yield(k, c.items[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy
func (c *Collection[K, V]) Clone() *Collection[K, V] {
	out := &Collection[K, V]{
		keys:  make([]K, len(c.keys)),
		items: make(map[K]V, len(c.items)),
	}
	copy(out.keys, c.keys)
	for k, v := range c.items {
		out.items[k] = v
	}
	return out
}
