package sync

import (
	"context"
	"sync"
	"time"

	"tg-search-bot/internal/domain"
)

type memQueue struct {
	mu      sync.Mutex
	items   []domain.Message
	pushErr error
}

func (q *memQueue) Push(ctx context.Context, msg domain.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return q.pushErr
	}
	q.items = append(q.items, msg)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.Message{}, domain.ErrQueueEmpty
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, nil
}

func (q *memQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *memQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	return nil
}

func (q *memQueue) snapshot() []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Message, len(q.items))
	copy(out, q.items)
	return out
}

type memCursors struct {
	mu     sync.Mutex
	states map[string]domain.SyncState
	puts   []domain.SyncState
}

func newMemCursors() *memCursors {
	return &memCursors{states: map[string]domain.SyncState{}}
}

func (c *memCursors) All() (map[string]domain.SyncState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.SyncState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out, nil
}

func (c *memCursors) Get(source string) (domain.SyncState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[source]
	return state, ok, nil
}

func (c *memCursors) Put(source string, state domain.SyncState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[source] = state
	c.puts = append(c.puts, state)
	return nil
}

func (c *memCursors) Delete(source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, source)
	return nil
}

func (c *memCursors) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = map[string]domain.SyncState{}
	return nil
}

type memIndexer struct {
	mu        sync.Mutex
	docs      map[string]domain.Message
	upsertErr map[string]error
}

func newMemIndexer() *memIndexer {
	return &memIndexer{docs: map[string]domain.Message{}}
}

func (m *memIndexer) Upsert(ctx context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.upsertErr[msg.Key()]; err != nil {
		return err
	}
	m.docs[msg.Key()] = msg
	return nil
}

func (m *memIndexer) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	return domain.SearchResult{}, nil
}

func (m *memIndexer) DeleteByFilter(ctx context.Context, chatID, userID *int64) (int64, error) {
	return 0, nil
}

func (m *memIndexer) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = map[string]domain.Message{}
	return nil
}

func (m *memIndexer) Stats(ctx context.Context) (domain.IndexStats, error) {
	return domain.IndexStats{}, nil
}

func (m *memIndexer) get(key string) (domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.docs[key]
	return msg, ok
}

func (m *memIndexer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type fakeConfig struct {
	sources []string
	denied  map[int64]bool
}

func (f *fakeConfig) Sources() []string { return f.sources }

func (f *fakeConfig) IsAllowed(chatID int64, chatType domain.ChatType) bool {
	return !f.denied[chatID]
}

type fakeHistory struct {
	metas      map[string]domain.ChatMeta
	messages   map[int64][]domain.Message
	resolveErr map[string]error
	walkErr    map[int64]error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		metas:      map[string]domain.ChatMeta{},
		messages:   map[int64][]domain.Message{},
		resolveErr: map[string]error{},
		walkErr:    map[int64]error{},
	}
}

func (f *fakeHistory) ResolveChat(ctx context.Context, source string) (domain.ChatMeta, error) {
	if err := f.resolveErr[source]; err != nil {
		return domain.ChatMeta{}, err
	}
	meta, ok := f.metas[source]
	if !ok {
		return domain.ChatMeta{}, context.DeadlineExceeded
	}
	return meta, nil
}

func (f *fakeHistory) WalkHistory(ctx context.Context, chat domain.ChatMeta, fn func(domain.Message) (bool, error)) error {
	if err := f.walkErr[chat.ID]; err != nil {
		return err
	}
	for _, msg := range f.messages[chat.ID] {
		cont, err := fn(msg)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type fakeReporter struct {
	mu      sync.Mutex
	updates []string
}

func (r *fakeReporter) Start(ctx context.Context, text string) error {
	return r.Update(ctx, text)
}

func (r *fakeReporter) Update(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, text)
	return nil
}

type freeLimiter struct{}

func (freeLimiter) TryConsume(n float64) bool               { return true }
func (freeLimiter) Wait(ctx context.Context, n float64) error { return nil }
func (freeLimiter) Reset()                                  {}

// descMessages строит историю чата с убывающими id от newest до oldest.
func descMessages(chat domain.Chat, newest, oldest int64) []domain.Message {
	msgs := make([]domain.Message, 0, newest-oldest+1)
	for id := newest; id >= oldest; id-- {
		msgs = append(msgs, domain.Message{
			ID:   id,
			Chat: chat,
			Date: time.Unix(1700000000+id, 0),
			Text: "msg",
		})
	}
	return msgs
}
