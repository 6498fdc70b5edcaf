package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// RabbitMessageQueue реализует очередь сообщений поверх долговечной
// AMQP-очереди. Сообщения публикуются персистентными; чтение идёт с
// автоподтверждением — потеря одного сообщения при падении потребителя
// считается допустимой.
type RabbitMessageQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMessageQueue подключается к брокеру и объявляет очередь.
func NewRabbitMessageQueue(amqpURL, queue string) (*RabbitMessageQueue, error) {
	if amqpURL == "" {
		return nil, fmt.Errorf("amqp url is empty")
	}
	if queue == "" {
		return nil, fmt.Errorf("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitMessageQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Push публикует сообщение в очередь.
func (q *RabbitMessageQueue) Push(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	metrics.QueuePushTotal.Inc()
	return nil
}

// Pop неблокирующе снимает сообщение из очереди.
func (q *RabbitMessageQueue) Pop(ctx context.Context) (domain.Message, error) {
	start := time.Now()
	delivery, ok, err := q.ch.Get(q.queue, true)
	metrics.ObserveNetworkRequest("rabbitmq", "get", q.queue, start, err)
	if err != nil {
		return domain.Message{}, fmt.Errorf("pop message: %w", err)
	}
	if !ok {
		return domain.Message{}, domain.ErrQueueEmpty
	}
	var msg domain.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	metrics.QueuePopTotal.Inc()
	return msg, nil
}

// Len возвращает текущую глубину очереди.
func (q *RabbitMessageQueue) Len(ctx context.Context) (int64, error) {
	state, err := q.ch.QueueDeclarePassive(q.queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspect queue: %w", err)
	}
	return int64(state.Messages), nil
}

// Clear удаляет все сообщения из очереди.
func (q *RabbitMessageQueue) Clear(ctx context.Context) error {
	if _, err := q.ch.QueuePurge(q.queue, false); err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (q *RabbitMessageQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ domain.MessageQueue = (*RabbitMessageQueue)(nil)
