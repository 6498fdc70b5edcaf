package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-search-bot/internal/domain"
)

// FromBotAPI приводит сообщение Bot API к доменному виду.
func FromBotAPI(msg *tgbotapi.Message) domain.Message {
	out := domain.Message{
		ID:      int64(msg.MessageID),
		Date:    time.Unix(int64(msg.Date), 0),
		Text:    msg.Text,
		Caption: msg.Caption,
	}
	if msg.Chat != nil {
		out.Chat = domain.Chat{
			ID:       msg.Chat.ID,
			Type:     chatTypeOf(msg.Chat),
			Title:    msg.Chat.Title,
			Username: msg.Chat.UserName,
		}
	}
	if msg.From != nil {
		out.From = &domain.Sender{
			ID:        msg.From.ID,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
			Username:  msg.From.UserName,
		}
	}
	return out
}

func chatTypeOf(chat *tgbotapi.Chat) domain.ChatType {
	switch {
	case chat.IsPrivate():
		return domain.ChatTypePrivate
	case chat.IsSuperGroup():
		return domain.ChatTypeSupergroup
	case chat.IsGroup():
		return domain.ChatTypeGroup
	case chat.IsChannel():
		return domain.ChatTypeChannel
	}
	return domain.ChatTypePrivate
}
