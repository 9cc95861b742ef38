// Package updates feeds recorded bot updates into the event bus.
//
// Input is JSON lines, one already-classified update per line:
//
//	{"update_id": 1, "message": {...}}
//	{"message_reaction": {...}}
//	{"callback_query": {...}}
//	{"message_deleted": {"chat": {...}, "message_id": 3}}
//
// Exactly one payload field must be set.
package updates

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// maxLineSize bounds a single update line
const maxLineSize = 1 << 20

var errNoPayload = errors.New("update has no known payload")

// Publisher is where decoded events go. *eventbus.Bus implements it.
type Publisher interface {
	Publish(event eventbus.Event)
}

// queue is implemented by publishers with a bounded queue; Replay waits
// for room instead of letting events drop
type queue interface {
	Backlog() int
	Capacity() int
}

// Update is one recorded update
type Update struct {
	UpdateID        int64                          `json:"update_id,omitempty"`
	Message         *models.Message                `json:"message,omitempty"`
	MessageDeleted  *models.MessageDeleted         `json:"message_deleted,omitempty"`
	MessageReaction *models.MessageReactionUpdated `json:"message_reaction,omitempty"`
	CallbackQuery   *models.CallbackQuery          `json:"callback_query,omitempty"`
}

// Event converts the update into a bus event
func (u *Update) Event() (eventbus.Event, error) {
	var events []eventbus.Event
	if u.Message != nil {
		events = append(events, eventbus.Event{Type: eventbus.EventTypeMessage, Payload: u.Message})
	}
	if u.MessageDeleted != nil {
		events = append(events, eventbus.Event{Type: eventbus.EventTypeMessageDeleted, Payload: u.MessageDeleted})
	}
	if u.MessageReaction != nil {
		events = append(events, eventbus.Event{Type: eventbus.EventTypeMessageReaction, Payload: u.MessageReaction})
	}
	if u.CallbackQuery != nil {
		events = append(events, eventbus.Event{Type: eventbus.EventTypeCallbackQuery, Payload: u.CallbackQuery})
	}

	switch len(events) {
	case 0:
		return eventbus.Event{}, errNoPayload
	case 1:
		return events[0], nil
	default:
		return eventbus.Event{}, fmt.Errorf("update carries %d payloads, want 1", len(events))
	}
}

// Options tune a replay
type Options struct {
	Interval time.Duration // pause between published events, 0 = none
}

// Stats summarizes a replay
type Stats struct {
	Lines     int
	Published int
	Skipped   int
}

// Replay reads updates from r and publishes one event per valid line.
// Malformed lines are logged and skipped. It returns when r is exhausted
// or ctx is done.
func Replay(ctx context.Context, r io.Reader, pub Publisher, opts Options) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	q, bounded := pub.(queue)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := scanner.Bytes()
		stats.Lines++
		if len(line) == 0 {
			continue
		}

		var u Update
		if err := json.Unmarshal(line, &u); err != nil {
			log.Warn().Err(err).Int("line", stats.Lines).Msg("Failed to parse update")
			stats.Skipped++
			continue
		}
		event, err := u.Event()
		if err != nil {
			log.Warn().Err(err).Int("line", stats.Lines).Int64("update_id", u.UpdateID).Msg("Skipping update")
			stats.Skipped++
			continue
		}

		if bounded {
			if err := waitForRoom(ctx, q); err != nil {
				return stats, err
			}
		}

		log.Trace().Str("event_type", string(event.Type)).Int("line", stats.Lines).Msg("Replaying update")
		pub.Publish(event)
		stats.Published++

		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read updates: %w", err)
	}
	return stats, nil
}

// waitForRoom blocks until the queue is at most half full
func waitForRoom(ctx context.Context, q queue) error {
	limit := q.Capacity() / 2
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for q.Backlog() > limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
