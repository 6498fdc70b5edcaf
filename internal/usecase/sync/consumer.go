package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// emptyQueueWait — пауза перед повторным опросом пустой очереди.
// Осознанный поллинг вместо блокирующего чтения: каждая итерация
// завершается за ограниченное время и отменяется между итерациями.
const emptyQueueWait = time.Second

// Consumer — единственный потребитель очереди. Снимает сообщения,
// дожидается токена лимитера и выполняет идемпотентный upsert в индекс.
type Consumer struct {
	queue   domain.MessageQueue
	limiter domain.RateLimiter
	indexer domain.Indexer
	log     zerolog.Logger
}

// NewConsumer создаёт потребителя очереди.
func NewConsumer(queue domain.MessageQueue, limiter domain.RateLimiter, indexer domain.Indexer, log zerolog.Logger) *Consumer {
	return &Consumer{queue: queue, limiter: limiter, indexer: indexer, log: log}
}

// Run крутит цикл потребления до отмены контекста. Начатый upsert
// всегда завершается до выхода.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := c.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if !errors.Is(err, domain.ErrQueueEmpty) {
				c.log.Error().Err(err).Msg("consumer: ошибка чтения очереди")
			}
			c.wait(ctx)
			continue
		}
		if !c.limiter.TryConsume(1) {
			metrics.RateLimitWaits.Inc()
			if err := c.limiter.Wait(ctx, 1); err != nil {
				// Остановка посреди ожидания: сообщение уже снято из
				// очереди, доиндексируем его перед выходом.
				c.upsert(context.Background(), msg)
				return
			}
		}
		c.upsert(ctx, msg)
	}
}

// upsert пишет сообщение в индекс. Ошибка логируется, сообщение не
// возвращается в очередь: повторная доставка — зона ответственности
// самой очереди.
func (c *Consumer) upsert(ctx context.Context, msg domain.Message) {
	if err := c.indexer.Upsert(ctx, msg); err != nil {
		c.log.Error().Err(err).Str("key", msg.Key()).Msg("consumer: не удалось записать сообщение в индекс")
		return
	}
	c.log.Debug().Str("key", msg.Key()).Msg("consumer: сообщение записано в индекс")
}

func (c *Consumer) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(emptyQueueWait):
	}
}
