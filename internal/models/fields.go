package models

// Fielder flattens an event into plain values for scripting.
type Fielder interface {
	Fields() map[string]any
}

func (c Chat) Fields() map[string]any {
	return map[string]any{
		"id":    c.ID,
		"type":  c.Type,
		"title": c.Title,
	}
}

func (u *User) Fields() map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"id":         u.ID,
		"is_bot":     u.IsBot,
		"first_name": u.FirstName,
		"username":   u.Username,
	}
}

func (m *Message) Fields() map[string]any {
	f := map[string]any{
		"id":   m.ID,
		"chat": m.Chat.Fields(),
		"date": m.Date,
		"text": m.Text,
	}
	if m.From != nil {
		f["from"] = m.From.Fields()
	}
	return f
}

func (m *MessageDeleted) Fields() map[string]any {
	return map[string]any{
		"chat":       m.Chat.Fields(),
		"message_id": m.MessageID,
	}
}

func (u *MessageReactionUpdated) Fields() map[string]any {
	f := map[string]any{
		"chat":       u.Chat.Fields(),
		"message_id": u.MessageID,
		"date":       u.Date,
		"added":      reactionIdentifiers(u.Added()),
		"removed":    reactionIdentifiers(u.Removed()),
	}
	if u.User != nil {
		f["user"] = u.User.Fields()
	}
	return f
}

func (q *CallbackQuery) Fields() map[string]any {
	f := map[string]any{
		"id":   q.ID,
		"from": q.From.Fields(),
		"data": q.Data,
	}
	if q.Message != nil {
		f["message"] = q.Message.Fields()
	}
	return f
}

func reactionIdentifiers(rs []ReactionType) []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Identifier())
	}
	return out
}
