package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reason explains why a collector ended
type Reason string

const (
	ReasonTime           Reason = "time"
	ReasonIdle           Reason = "idle"
	ReasonLimit          Reason = "limit"
	ReasonProcessedLimit Reason = "processedLimit"
	ReasonUser           Reason = "user"
	ReasonUserLimit      Reason = "userLimit"
)

// Defaults
const (
	DefaultTime = 60 * time.Second
	DefaultMax  = 10

	// NoLimit disables the lifetime timer (Time) or the accepted-item cap (Max)
	NoLimit = -1
)

var (
	ErrInvalidOptions = errors.New("invalid collector options")
	ErrNoChat         = errors.New("collector requires a chat")
	ErrEnded          = errors.New("collector ended")
)

// Filter decides whether an item is accepted. collected is a snapshot of
// the items accepted so far. A returned error aborts the delivery and is
// handed back to the caller of HandleCollect/HandleDispose.
type Filter[K comparable, V any] func(ctx context.Context, item V, collected *Collection[K, V]) (bool, error)

// Options configure a collector. Zero values select the defaults.
type Options[K comparable, V any] struct {
	Time         time.Duration // hard lifetime, DefaultTime if 0, disabled if NoLimit
	Idle         time.Duration // inactivity window, disabled if 0
	Max          int           // accepted-item cap, DefaultMax if 0, disabled if NoLimit
	MaxProcessed int           // received-item cap, disabled if 0
	Filter       Filter[K, V]  // accept-all if nil
	Dispose      bool          // enables HandleDispose

	// Kind labels the collector in logs, metrics and the ledger
	Kind   string
	Logger *zerolog.Logger
}

// TimerOptions re-arms collector timers. Zero leaves a timer untouched.
type TimerOptions struct {
	Time time.Duration
	Idle time.Duration
}

func (o Options[K, V]) withDefaults() (Options[K, V], error) {
	if o.Time == 0 {
		o.Time = DefaultTime
	}
	if o.Max == 0 {
		o.Max = DefaultMax
	}
	if o.Time < 0 && o.Time != NoLimit {
		return o, fmt.Errorf("%w: time %s", ErrInvalidOptions, o.Time)
	}
	if o.Max < 0 && o.Max != NoLimit {
		return o, fmt.Errorf("%w: max %d", ErrInvalidOptions, o.Max)
	}
	if o.Idle < 0 {
		return o, fmt.Errorf("%w: idle %s", ErrInvalidOptions, o.Idle)
	}
	if o.MaxProcessed < 0 {
		return o, fmt.Errorf("%w: max processed %d", ErrInvalidOptions, o.MaxProcessed)
	}
	if o.Kind == "" {
		o.Kind = "collector"
	}
	return o, nil
}

// State is the view handed to Hooks.EndReason. Collected is the live
// collection and must not be modified or retained.
type State[K comparable, V any] struct {
	Collected    *Collection[K, V]
	Received     int
	Max          int
	MaxProcessed int
}

// LimitReason reports the shared numeric end conditions.
// Specializations chain it with their own checks.
func LimitReason[K comparable, V any](s State[K, V]) Reason {
	if s.Max > 0 && s.Collected.Len() >= s.Max {
		return ReasonLimit
	}
	if s.MaxProcessed > 0 && s.Received >= s.MaxProcessed {
		return ReasonProcessedLimit
	}
	return ""
}

// EndedError is returned by Next when the collector ends before another item arrives.
type EndedError[K comparable, V any] struct {
	Collected *Collection[K, V]
	Reason    Reason
}

func (e *EndedError[K, V]) Error() string {
	return fmt.Sprintf("collector ended (%s) with %d items", e.Reason, e.Collected.Len())
}

func (e *EndedError[K, V]) Is(target error) bool {
	return target == ErrEnded
}
