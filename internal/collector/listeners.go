package collector

import "github.com/rs/zerolog"

type listenerEntry[F any] struct {
	id uint64
	fn F
}

// listenerList is a small id-addressable list of callbacks.
// It is not synchronized; owners guard it with their own mutex.
type listenerList[F any] struct {
	next    uint64
	entries []listenerEntry[F]
}

func (l *listenerList[F]) add(fn F) uint64 {
	l.next++
	l.entries = append(l.entries, listenerEntry[F]{id: l.next, fn: fn})
	return l.next
}

func (l *listenerList[F]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerList[F]) snapshot() []F {
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}

type emitKind int

const (
	emitCollect emitKind = iota
	emitIgnore
	emitDispose
	emitEnd
)

// emission is a queued event, dispatched after the state lock is released
type emission[K comparable, V any] struct {
	kind      emitKind
	item      V
	collected *Collection[K, V]
	reason    Reason
}

type listenerSet[K comparable, V any] struct {
	collect listenerList[func(V, *Collection[K, V])]
	ignore  listenerList[func(V)]
	dispose listenerList[func(V, *Collection[K, V])]
	end     listenerList[func(*Collection[K, V], Reason)]
}

type listenerSnapshot[K comparable, V any] struct {
	collect []func(V, *Collection[K, V])
	ignore  []func(V)
	dispose []func(V, *Collection[K, V])
	end     []func(*Collection[K, V], Reason)
}

func (s *listenerSet[K, V]) snapshot() listenerSnapshot[K, V] {
	return listenerSnapshot[K, V]{
		collect: s.collect.snapshot(),
		ignore:  s.ignore.snapshot(),
		dispose: s.dispose.snapshot(),
		end:     s.end.snapshot(),
	}
}

// dispatch calls every listener for e. A panicking listener is logged and
// does not keep the others, or later emissions, from running.
func (s listenerSnapshot[K, V]) dispatch(e emission[K, V], logger *zerolog.Logger) {
	switch e.kind {
	case emitCollect:
		for _, fn := range s.collect {
			safeCall(logger, "collect", func() { fn(e.item, e.collected) })
		}
	case emitIgnore:
		for _, fn := range s.ignore {
			safeCall(logger, "ignore", func() { fn(e.item) })
		}
	case emitDispose:
		for _, fn := range s.dispose {
			safeCall(logger, "dispose", func() { fn(e.item, e.collected) })
		}
	case emitEnd:
		for _, fn := range s.end {
			safeCall(logger, "end", func() { fn(e.collected, e.reason) })
		}
	}
}

func safeCall(logger *zerolog.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("event", event).
				Msg("Collector listener panicked")
		}
	}()
	fn()
}
