package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// RedisMessageQueue реализует очередь сообщений на базе Redis lists.
// Продюсеры пишут через LPUSH, потребитель читает через RPOP, поэтому
// в рамках одного продюсера порядок FIFO сохраняется.
type RedisMessageQueue struct {
	client *redis.Client
	key    string
}

// NewRedisMessageQueue создаёт очередь по указанному ключу.
func NewRedisMessageQueue(client *redis.Client, key string) *RedisMessageQueue {
	return &RedisMessageQueue{client: client, key: key}
}

// Push публикует сообщение в очередь.
func (q *RedisMessageQueue) Push(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	metrics.QueuePushTotal.Inc()
	return nil
}

// Pop неблокирующе снимает сообщение из очереди.
func (q *RedisMessageQueue) Pop(ctx context.Context) (domain.Message, error) {
	start := time.Now()
	res, err := q.client.RPop(ctx, q.key).Bytes()
	metrics.ObserveNetworkRequest("redis", "rpop", q.key, start, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Message{}, domain.ErrQueueEmpty
		}
		return domain.Message{}, fmt.Errorf("pop message: %w", err)
	}
	var msg domain.Message
	if err := json.Unmarshal(res, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	metrics.QueuePopTotal.Inc()
	return msg, nil
}

// Len возвращает текущую глубину очереди.
func (q *RedisMessageQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Clear удаляет очередь целиком.
func (q *RedisMessageQueue) Clear(ctx context.Context) error {
	return q.client.Del(ctx, q.key).Err()
}

var _ domain.MessageQueue = (*RedisMessageQueue)(nil)
