package telegram

import (
	"context"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// progressEditDebounce ограничивает частоту правок статусного сообщения,
// чтобы не упираться в лимиты Bot API на длинном бэкфилле.
const progressEditDebounce = 2 * time.Second

const progressDebounceKey = "sync:progress-edit"

// Reporter доставляет владельцу статус бэкфилла: первое сообщение
// отправляется как новое, дальнейшие обновления редактируют его.
type Reporter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	cache  domain.Cache
	log    zerolog.Logger

	mu        sync.Mutex
	messageID int
}

// NewReporter создаёт репортер, пишущий в чат владельца.
func NewReporter(bot *tgbotapi.BotAPI, chatID int64, cache domain.Cache, log zerolog.Logger) *Reporter {
	return &Reporter{
		bot:    bot,
		chatID: chatID,
		cache:  cache,
		log:    log.With().Str("component", "progress_reporter").Logger(),
	}
}

// Start отправляет новое статусное сообщение.
func (r *Reporter) Start(ctx context.Context, text string) error {
	start := time.Now()
	sent, err := r.bot.Send(tgbotapi.NewMessage(r.chatID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(r.chatID, 10), start, err)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.messageID = sent.MessageID
	r.mu.Unlock()
	return nil
}

// Update редактирует статусное сообщение с дебаунсом. Пропущенное из-за
// дебаунса обновление не ошибка: следующий чекпоинт принесёт свежий текст.
func (r *Reporter) Update(ctx context.Context, text string) error {
	r.mu.Lock()
	messageID := r.messageID
	r.mu.Unlock()
	if messageID == 0 {
		return r.Start(ctx, text)
	}
	return r.cache.Once(progressDebounceKey, progressEditDebounce, func() error {
		start := time.Now()
		_, err := r.bot.Request(tgbotapi.NewEditMessageText(r.chatID, messageID, text))
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(r.chatID, 10), start, err)
		if err != nil {
			r.log.Warn().Err(err).Msg("не удалось обновить статус синхронизации")
		}
		// Ошибка редактирования не должна останавливать бэкфилл.
		return nil
	})
}
