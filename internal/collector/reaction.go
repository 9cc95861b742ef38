package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// ReactionOptions configure a ReactionCollector
type ReactionOptions struct {
	Options[string, *models.MessageReactionUpdated]

	// MessageID narrows collection to one message; 0 accepts any message of the chat
	MessageID int
}

// ReactionCollector collects reaction changes in one chat, keyed by the
// reaction identifier, and aggregates accepted changes per user.
type ReactionCollector struct {
	*Collector[string, *models.MessageReactionUpdated]
	chatID    int64
	messageID int

	mu        sync.Mutex
	users     map[int64][]*models.MessageReactionUpdated
	userOrder []int64
	onCreate  listenerList[func(*models.MessageReactionUpdated)]
	onUser    listenerList[func([]*models.MessageReactionUpdated)]
}

type reactionHooks struct {
	chatID    int64
	messageID int
	dispose   bool
}

// applies excludes other chats, other messages, anonymous and paid reactions
func (h reactionHooks) applies(u *models.MessageReactionUpdated) bool {
	if u == nil || u.Chat.ID != h.chatID || u.User == nil {
		return false
	}
	if h.messageID != 0 && u.MessageID != h.messageID {
		return false
	}
	return !u.HasPaid()
}

// Collect keys by the first added reaction, falling back to the first
// removed one. With dispose enabled a removal-only change is left to Dispose.
func (h reactionHooks) Collect(u *models.MessageReactionUpdated) (string, bool) {
	if !h.applies(u) {
		return "", false
	}
	if added := u.Added(); len(added) > 0 {
		return added[0].Identifier(), true
	}
	if h.dispose {
		return "", false
	}
	if removed := u.Removed(); len(removed) > 0 {
		return removed[0].Identifier(), true
	}
	return "", false
}

func (h reactionHooks) Dispose(u *models.MessageReactionUpdated) (string, bool) {
	if !h.applies(u) || len(u.Added()) > 0 {
		return "", false
	}
	if removed := u.Removed(); len(removed) > 0 {
		return removed[0].Identifier(), true
	}
	return "", false
}

func (h reactionHooks) EndReason(s State[string, *models.MessageReactionUpdated]) Reason {
	return LimitReason(s)
}

// NewReactionCollector creates a collector bound to chatID and attaches it to host.
func NewReactionCollector(ctx context.Context, host Host, chatID int64, opts ReactionOptions) (*ReactionCollector, error) {
	if chatID == 0 {
		return nil, ErrNoChat
	}
	if opts.Kind == "" {
		opts.Kind = "reaction"
	}

	hooks := reactionHooks{chatID: chatID, messageID: opts.MessageID, dispose: opts.Dispose}
	c, err := New[string, *models.MessageReactionUpdated](hooks, opts.Options)
	if err != nil {
		return nil, fmt.Errorf("reaction collector: %w", err)
	}

	rc := &ReactionCollector{
		Collector: c,
		chatID:    chatID,
		messageID: opts.MessageID,
		users:     make(map[int64][]*models.MessageReactionUpdated),
	}
	c.OnCollect(func(u *models.MessageReactionUpdated, _ *Collection[string, *models.MessageReactionUpdated]) {
		rc.trackUser(u)
	})
	c.attach(ctx, host, route{eventType: eventbus.EventTypeMessageReaction, handler: rc.onReaction(ctx)})

	return rc, nil
}

func (rc *ReactionCollector) onReaction(ctx context.Context) eventbus.Handler {
	return func(e eventbus.Event) {
		u, ok := e.Payload.(*models.MessageReactionUpdated)
		if !ok {
			return
		}
		if err := rc.HandleCollect(ctx, u); err != nil {
			rc.logDeliveryError(e.Type, err)
			return
		}
		rc.logDeliveryError(e.Type, rc.HandleDispose(ctx, u))
	}
}

// trackUser runs in the collector's dispatch order, so create/user events
// interleave correctly with collect events.
func (rc *ReactionCollector) trackUser(u *models.MessageReactionUpdated) {
	rc.mu.Lock()
	uid := u.User.ID
	prev, seen := rc.users[uid]
	if !seen {
		rc.userOrder = append(rc.userOrder, uid)
	}
	items := append(prev[:len(prev):len(prev)], u)
	rc.users[uid] = items
	createFns := rc.onCreate.snapshot()
	userFns := rc.onUser.snapshot()
	rc.mu.Unlock()

	if !seen {
		for _, fn := range createFns {
			fn(u)
		}
		return
	}
	for _, fn := range userFns {
		fn(items)
	}
}

// OnCreate registers a listener for the first accepted reaction of a new user.
func (rc *ReactionCollector) OnCreate(fn func(u *models.MessageReactionUpdated)) func() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	id := rc.onCreate.add(fn)
	return func() {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.onCreate.remove(id)
	}
}

// OnUser registers a listener for further reactions of an already seen user.
// It receives all of that user's accepted changes so far, oldest first.
func (rc *ReactionCollector) OnUser(fn func(items []*models.MessageReactionUpdated)) func() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	id := rc.onUser.add(fn)
	return func() {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.onUser.remove(id)
	}
}

// UserReactions returns the accepted changes of one user, oldest first
func (rc *ReactionCollector) UserReactions(userID int64) []*models.MessageReactionUpdated {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	items := rc.users[userID]
	out := make([]*models.MessageReactionUpdated, len(items))
	copy(out, items)
	return out
}

// UserIDs returns the users seen so far in first-seen order
func (rc *ReactionCollector) UserIDs() []int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]int64, len(rc.userOrder))
	copy(out, rc.userOrder)
	return out
}

// Users returns a copy of the per-user aggregation
func (rc *ReactionCollector) Users() map[int64][]*models.MessageReactionUpdated {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[int64][]*models.MessageReactionUpdated, len(rc.users))
	for id, items := range rc.users {
		cp := make([]*models.MessageReactionUpdated, len(items))
		copy(cp, items)
		out[id] = cp
	}
	return out
}

// ChatID returns the chat the collector is bound to
func (rc *ReactionCollector) ChatID() int64 {
	return rc.chatID
}
