package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pollInterval — пауза между попытками в блокирующем ожидании токена.
const pollInterval = 200 * time.Millisecond

// TokenBucket — потокобезопасное ведро токенов, общее для всех потребителей
// индекса. Токены накапливаются со скоростью fillRate до capacity.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	fillRate float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket создаёт полное ведро.
func NewTokenBucket(capacity, fillRate float64) *TokenBucket {
	return newTokenBucket(capacity, fillRate, time.Now)
}

func newTokenBucket(capacity, fillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		tokens:   capacity,
		fillRate: fillRate,
		last:     now(),
		now:      now,
	}
}

// TryConsume пополняет ведро по прошедшему времени и пытается списать n токенов.
// При нехватке возвращает false, не изменяя остаток сверх пополнения.
func (b *TokenBucket) TryConsume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens += now.Sub(b.last).Seconds() * b.fillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Wait блокирует вызывающего до получения n токенов, опрашивая ведро
// с ограниченной паузой. Отмена контекста прерывает ожидание.
func (b *TokenBucket) Wait(ctx context.Context, n float64) error {
	for {
		if b.TryConsume(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Reset атомарно возвращает ведро в исходное полное состояние.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.last = b.now()
}
