package telegram

import (
	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/flemzord/warden/internal/platform"
)

func convertUser(u gotgbot.User) platform.User {
	return platform.User{
		ID:        u.Id,
		FirstName: u.FirstName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
}

func convertChat(c gotgbot.Chat) platform.Chat {
	return platform.Chat{ID: c.Id, Type: c.Type, Title: c.Title}
}

// convertMessage maps a Telegram message. Messages without a sender
// (channel posts) keep a zero From.
func convertMessage(m *gotgbot.Message) platform.Message {
	msg := platform.Message{
		ID:   m.MessageId,
		Chat: convertChat(m.Chat),
		Text: m.Text,
	}
	if m.From != nil {
		msg.From = convertUser(*m.From)
	}
	for _, u := range m.NewChatMembers {
		msg.NewMembers = append(msg.NewMembers, convertUser(u))
	}
	return msg
}

// convertCallback maps a callback query. ok is false for inline-mode
// queries, which carry no message.
func convertCallback(cq *gotgbot.CallbackQuery) (platform.Callback, bool) {
	if cq.Message == nil {
		return platform.Callback{}, false
	}
	chat := cq.Message.GetChat()
	return platform.Callback{
		ID:        cq.Id,
		From:      convertUser(cq.From),
		ChatID:    chat.Id,
		ChatType:  chat.Type,
		MessageID: cq.Message.GetMessageId(),
		Data:      cq.Data,
	}, true
}
