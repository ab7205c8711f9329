package telegram

import (
	"strings"

	"tgrelay/pkg/gateway"
)

func identity(u *user) gateway.UserIdentity {
	if u == nil {
		return gateway.UserIdentity{}
	}
	return gateway.UserIdentity{
		ID:          u.ID,
		DisplayName: gateway.DisplayName(u.Username, u.FirstName, u.LastName),
	}
}

// toEvent converts one update. Updates from bots and messages without text
// are skipped.
func toEvent(u update) (gateway.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		return toInteraction(u.CallbackQuery)
	case u.Message != nil:
		return toMessageEvent(u.Message)
	}
	return nil, false
}

func toMessageEvent(m *message) (gateway.Event, bool) {
	if m.From == nil || m.From.IsBot || m.Chat == nil {
		return nil, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	var replyTo int64
	if m.ReplyTo != nil {
		replyTo = m.ReplyTo.MessageID
	}

	if name, args, ok := gateway.ParseCommand(text); ok {
		return gateway.Command{
			Name:             name,
			Args:             args,
			ChatID:           m.Chat.ID,
			From:             identity(m.From),
			RawText:          text,
			MessageID:        m.MessageID,
			ReplyToMessageID: replyTo,
		}, true
	}

	return gateway.Message{
		ChatID:           m.Chat.ID,
		From:             identity(m.From),
		Text:             text,
		MessageID:        m.MessageID,
		ReplyToMessageID: replyTo,
	}, true
}

func toInteraction(q *callbackQuery) (gateway.Event, bool) {
	if q.ID == "" || q.From == nil {
		return nil, false
	}
	in := gateway.Interaction{
		ID:     q.ID,
		From:   identity(q.From),
		ChatID: q.From.ID,
		Data:   q.Data,
	}
	if q.Message != nil {
		in.OriginatingMessageID = q.Message.MessageID
		in.OriginatingMessageText = q.Message.Text
		if q.Message.Chat != nil {
			in.ChatID = q.Message.Chat.ID
		}
	}
	return in, true
}
