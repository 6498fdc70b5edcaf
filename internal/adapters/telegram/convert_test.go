package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-search-bot/internal/domain"
)

func TestFromBotAPI(t *testing.T) {
	msg := &tgbotapi.Message{
		MessageID: 42,
		Date:      1700000000,
		Text:      "привет",
		Chat: &tgbotapi.Chat{
			ID:       -1001234,
			Type:     "supergroup",
			Title:    "Гоферы",
			UserName: "gophers",
		},
		From: &tgbotapi.User{
			ID:        555,
			FirstName: "Rob",
			UserName:  "rob",
		},
	}

	converted := FromBotAPI(msg)

	if converted.ID != 42 || converted.Chat.ID != -1001234 {
		t.Fatalf("неверные идентификаторы: %+v", converted)
	}
	if converted.Chat.Type != domain.ChatTypeSupergroup {
		t.Fatalf("ожидали SUPERGROUP, получили %s", converted.Chat.Type)
	}
	if converted.Key() != "-1001234-42" {
		t.Fatalf("неверный ключ документа: %s", converted.Key())
	}
	if converted.From == nil || converted.From.FirstName != "Rob" {
		t.Fatalf("автор потерялся при конвертации: %+v", converted.From)
	}
	if converted.Date.Unix() != 1700000000 {
		t.Fatalf("дата потерялась: %v", converted.Date)
	}
}

func TestFromBotAPICaptionOnly(t *testing.T) {
	msg := &tgbotapi.Message{
		MessageID: 7,
		Caption:   "подпись к фото",
		Chat:      &tgbotapi.Chat{ID: 123, Type: "private"},
	}

	converted := FromBotAPI(msg)

	if !converted.Indexable() || converted.Body() != "подпись к фото" {
		t.Fatalf("подпись должна индексироваться: %+v", converted)
	}
	if converted.Chat.Type != domain.ChatTypePrivate {
		t.Fatalf("ожидали PRIVATE, получили %s", converted.Chat.Type)
	}
}
