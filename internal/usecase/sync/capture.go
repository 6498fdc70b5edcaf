package sync

import (
	"context"

	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// Capture принимает живые события транспорта (новые и отредактированные
// сообщения), фильтрует их по политике доступа и ставит в очередь.
// Продюсер работает по принципу fire-and-forget: ошибка постановки
// логируется, событие отбрасывается — живой поток не ретраится, чтобы
// шторм транспорта не раздувал бэклог.
type Capture struct {
	queue  domain.MessageQueue
	filter domain.AccessFilter
	selfID int64
	log    zerolog.Logger
}

// NewCapture создаёт захват живых событий. selfID — идентификатор
// собственного аккаунта бота, его сообщения не индексируются.
func NewCapture(queue domain.MessageQueue, filter domain.AccessFilter, selfID int64, log zerolog.Logger) *Capture {
	return &Capture{queue: queue, filter: filter, selfID: selfID, log: log}
}

// Handle обрабатывает одно живое событие: новое или правку.
func (c *Capture) Handle(ctx context.Context, msg domain.Message) {
	if msg.Chat.ID == c.selfID || (msg.From != nil && msg.From.ID == c.selfID) {
		return
	}
	if !msg.Indexable() {
		metrics.CaptureTotal.WithLabelValues("empty").Inc()
		return
	}
	if !c.filter.IsAllowed(msg.Chat.ID, msg.Chat.Type) {
		metrics.CaptureTotal.WithLabelValues("denied").Inc()
		c.log.Debug().
			Int64("chat", msg.Chat.ID).
			Str("type", string(msg.Chat.Type)).
			Msg("capture: чат отклонён политикой доступа")
		return
	}
	if err := c.queue.Push(ctx, msg); err != nil {
		metrics.CaptureTotal.WithLabelValues("push_error").Inc()
		c.log.Error().Err(err).Str("key", msg.Key()).Msg("capture: не удалось поставить сообщение в очередь")
		return
	}
	metrics.CaptureTotal.WithLabelValues("queued").Inc()
	c.log.Info().Str("key", msg.Key()).Msg("capture: сообщение поставлено в очередь")
}
