// Package models holds the typed bot events that flow over the event bus.
// Only the fields the collectors and filters read are modelled; the
// routing layer that builds these from raw updates lives elsewhere.
package models

// Chat identifies a conversation.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// User is the originator of an event.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Message is an incoming chat message.
type Message struct {
	ID   int    `json:"message_id"`
	Chat Chat   `json:"chat"`
	From *User  `json:"from,omitempty"`
	Date int64  `json:"date,omitempty"`
	Text string `json:"text,omitempty"`
}

// MessageDeleted reports that a previously delivered message is gone.
type MessageDeleted struct {
	Chat      Chat `json:"chat"`
	MessageID int  `json:"message_id"`
}

// Reaction kinds
const (
	ReactionEmoji       = "emoji"
	ReactionCustomEmoji = "custom_emoji"
	ReactionPaid        = "paid"
)

// ReactionType is a single reaction on a message.
type ReactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// Identifier returns the value that tells reactions of the same kind apart.
func (r ReactionType) Identifier() string {
	switch r.Type {
	case ReactionCustomEmoji:
		return r.CustomEmojiID
	case ReactionPaid:
		return ReactionPaid
	default:
		return r.Emoji
	}
}

// MessageReactionUpdated reports a change of one user's reactions on a message.
// User is nil when the reaction was made anonymously on behalf of a chat.
type MessageReactionUpdated struct {
	Chat        Chat           `json:"chat"`
	MessageID   int            `json:"message_id"`
	User        *User          `json:"user,omitempty"`
	ActorChat   *Chat          `json:"actor_chat,omitempty"`
	Date        int64          `json:"date,omitempty"`
	OldReaction []ReactionType `json:"old_reaction"`
	NewReaction []ReactionType `json:"new_reaction"`
}

// Added returns reactions present in NewReaction but not in OldReaction.
func (u *MessageReactionUpdated) Added() []ReactionType {
	return diffReactions(u.NewReaction, u.OldReaction)
}

// Removed returns reactions present in OldReaction but not in NewReaction.
func (u *MessageReactionUpdated) Removed() []ReactionType {
	return diffReactions(u.OldReaction, u.NewReaction)
}

// HasPaid reports whether any old or new reaction is a paid one.
func (u *MessageReactionUpdated) HasPaid() bool {
	for _, r := range u.OldReaction {
		if r.Type == ReactionPaid {
			return true
		}
	}
	for _, r := range u.NewReaction {
		if r.Type == ReactionPaid {
			return true
		}
	}
	return false
}

func diffReactions(a, b []ReactionType) []ReactionType {
	var out []ReactionType
	for _, ra := range a {
		found := false
		for _, rb := range b {
			if ra.Type == rb.Type && ra.Identifier() == rb.Identifier() {
				found = true
				break
			}
		}
		if !found {
			out = append(out, ra)
		}
	}
	return out
}

// CallbackQuery is a press of an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}
