package domain

import (
	"context"
	"errors"
	"time"
)

// ErrQueueEmpty возвращается из Pop, когда очередь пуста.
var ErrQueueEmpty = errors.New("queue is empty")

// MessageQueue — долговечная очередь между захватом и индексацией.
// Порядок FIFO гарантируется в рамках одного продюсера; доставка at-least-once.
type MessageQueue interface {
	Push(ctx context.Context, msg Message) error
	// Pop неблокирующе снимает одно сообщение; при пустой очереди
	// возвращает ErrQueueEmpty.
	Pop(ctx context.Context) (Message, error)
	Len(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// CursorStore хранит вотермарки бэкфилла по источникам.
type CursorStore interface {
	All() (map[string]SyncState, error)
	Get(source string) (SyncState, bool, error)
	Put(source string, state SyncState) error
	Delete(source string) error
	Reset() error
}

// Indexer — поисковый индекс: идемпотентный upsert по составному ключу,
// постраничный поиск и административные удаления.
type Indexer interface {
	Upsert(ctx context.Context, msg Message) error
	Search(ctx context.Context, query SearchQuery) (SearchResult, error)
	DeleteByFilter(ctx context.Context, chatID, userID *int64) (int64, error)
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (IndexStats, error)
}

// AccessFilter решает, допускать ли чат к захвату и бэкфиллу.
type AccessFilter interface {
	IsAllowed(chatID int64, chatType ChatType) bool
}

// HistoryClient отдаёт историю чата от новых сообщений к старым.
type HistoryClient interface {
	ResolveChat(ctx context.Context, source string) (ChatMeta, error)
	// WalkHistory вызывает fn для каждого исторического сообщения в строго
	// убывающем порядке id. Возврат false из fn останавливает обход.
	WalkHistory(ctx context.Context, chat ChatMeta, fn func(Message) (bool, error)) error
}

// ProgressReporter доставляет человеку статус длинного бэкфилла.
type ProgressReporter interface {
	Start(ctx context.Context, text string) error
	Update(ctx context.Context, text string) error
}

// RateLimiter ограничивает темп записи в индекс.
type RateLimiter interface {
	TryConsume(n float64) bool
	Wait(ctx context.Context, n float64) error
	Reset()
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
