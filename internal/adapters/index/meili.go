package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// deleteBatchSize — размер страницы при удалении документов по фильтру.
const deleteBatchSize = 1000

// Meili реализует domain.Indexer поверх Meilisearch.
type Meili struct {
	client *meilisearch.Client
	uid    string
	log    zerolog.Logger
}

// document — форма сообщения в индексе. Первичный ключ — составной
// "{chat.id}-{message_id}", поэтому повторная доставка и правки
// перезаписывают один и тот же документ.
type document struct {
	ID        string         `json:"id"`
	MessageID int64          `json:"message_id"`
	Chat      domain.Chat    `json:"chat"`
	Date      string         `json:"date"`
	Text      string         `json:"text,omitempty"`
	Caption   string         `json:"caption,omitempty"`
	From      *domain.Sender `json:"from_user,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func toDocument(msg domain.Message) document {
	return document{
		ID:        msg.Key(),
		MessageID: msg.ID,
		Chat:      msg.Chat,
		Date:      msg.Date.UTC().Format(time.RFC3339),
		Text:      msg.Text,
		Caption:   msg.Caption,
		From:      msg.From,
		Timestamp: msg.Date.Unix(),
	}
}

func (d document) toMessage() domain.Message {
	date, _ := time.Parse(time.RFC3339, d.Date)
	return domain.Message{
		ID:      d.MessageID,
		Chat:    d.Chat,
		Date:    date,
		Text:    d.Text,
		Caption: d.Caption,
		From:    d.From,
	}
}

// NewMeili подключается к Meilisearch и готовит индекс. Недоступность
// сервера на старте — фатальная ошибка вызывающего.
func NewMeili(host, apiKey, uid string, log zerolog.Logger) (*Meili, error) {
	client := meilisearch.NewClient(meilisearch.ClientConfig{Host: host, APIKey: apiKey})
	m := &Meili{client: client, uid: uid, log: log}
	if _, err := client.Health(); err != nil {
		return nil, fmt.Errorf("meilisearch health: %w", err)
	}
	if err := m.EnsureIndex(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureIndex создаёт индекс с нужными настройками, если его ещё нет.
func (m *Meili) EnsureIndex(ctx context.Context) error {
	if _, err := m.client.GetIndex(m.uid); err == nil {
		return nil
	}
	m.log.Info().Str("index", m.uid).Msg("index: создаём новый индекс")
	task, err := m.client.CreateIndex(&meilisearch.IndexConfig{Uid: m.uid, PrimaryKey: "id"})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if _, err := m.client.WaitForTask(task.TaskUID); err != nil {
		return fmt.Errorf("wait create index: %w", err)
	}
	idx := m.client.Index(m.uid)
	if _, err := idx.UpdateFilterableAttributes(&[]string{"chat.id", "chat.type", "chat.username", "from_user.id"}); err != nil {
		return fmt.Errorf("update filterable attributes: %w", err)
	}
	if _, err := idx.UpdateSortableAttributes(&[]string{"timestamp"}); err != nil {
		return fmt.Errorf("update sortable attributes: %w", err)
	}
	rules := []string{"timestamp:desc", "words", "typo", "proximity", "attribute", "sort", "exactness"}
	if _, err := idx.UpdateRankingRules(&rules); err != nil {
		return fmt.Errorf("update ranking rules: %w", err)
	}
	return nil
}

// Upsert записывает сообщение в индекс с перезаписью по составному ключу.
func (m *Meili) Upsert(ctx context.Context, msg domain.Message) error {
	doc := toDocument(msg)
	start := time.Now()
	_, err := m.client.Index(m.uid).AddDocuments([]document{doc}, "id")
	metrics.ObserveNetworkRequest("meilisearch", "add_documents", m.uid, start, err)
	metrics.UpsertSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpsertTotal.WithLabelValues("error").Inc()
		// Индекс мог исчезнуть между запросами, пробуем пересоздать.
		if ensureErr := m.EnsureIndex(ctx); ensureErr != nil {
			m.log.Error().Err(ensureErr).Msg("index: не удалось пересоздать индекс")
		}
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	metrics.UpsertTotal.WithLabelValues("success").Inc()
	return nil
}

// Search выполняет постраничный поиск по ключевому слову.
func (m *Meili) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	req := &meilisearch.SearchRequest{
		Limit:  int64(query.PageSize),
		Offset: query.Offset(),
		Sort:   []string{"timestamp:desc"},
	}
	if query.Exact {
		req.MatchingStrategy = "all"
	} else {
		req.MatchingStrategy = "last"
	}
	filter := buildFilter(query)
	if filter != "" {
		req.Filter = filter
	}

	start := time.Now()
	resp, err := m.client.Index(m.uid).Search(query.Keyword, req)
	metrics.ObserveNetworkRequest("meilisearch", "search", m.uid, start, err)
	if err != nil {
		var apiErr *meilisearch.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			m.log.Warn().Msg("index: индекс не найден при поиске, пересоздаём")
			if ensureErr := m.EnsureIndex(ctx); ensureErr != nil {
				m.log.Error().Err(ensureErr).Msg("index: не удалось пересоздать индекс")
			}
			return domain.SearchResult{}, nil
		}
		return domain.SearchResult{}, fmt.Errorf("search: %w", err)
	}

	hits := make([]domain.Message, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		doc, err := decodeHit(raw)
		if err != nil {
			m.log.Warn().Err(err).Msg("index: пропускаем нечитаемый документ")
			continue
		}
		hits = append(hits, doc.toMessage())
	}
	return domain.SearchResult{Hits: hits, TotalHits: resp.EstimatedTotalHits}, nil
}

// DeleteByFilter удаляет документы по чату и/или автору и возвращает
// количество удалённых.
func (m *Meili) DeleteByFilter(ctx context.Context, chatID, userID *int64) (int64, error) {
	filter := ""
	if chatID != nil {
		filter = fmt.Sprintf("chat.id = %d", *chatID)
	}
	if userID != nil {
		if filter != "" {
			filter += " AND "
		}
		filter += fmt.Sprintf("from_user.id = %d", *userID)
	}
	if filter == "" {
		return 0, fmt.Errorf("delete filter is empty")
	}

	idx := m.client.Index(m.uid)
	var deleted int64
	for {
		resp, err := idx.Search("", &meilisearch.SearchRequest{Limit: deleteBatchSize, Filter: filter})
		if err != nil {
			return deleted, fmt.Errorf("search for delete: %w", err)
		}
		if len(resp.Hits) == 0 {
			return deleted, nil
		}
		ids := make([]string, 0, len(resp.Hits))
		for _, raw := range resp.Hits {
			doc, err := decodeHit(raw)
			if err != nil {
				continue
			}
			ids = append(ids, doc.ID)
		}
		task, err := idx.DeleteDocuments(ids)
		if err != nil {
			return deleted, fmt.Errorf("delete documents: %w", err)
		}
		if _, err := m.client.WaitForTask(task.TaskUID); err != nil {
			return deleted, fmt.Errorf("wait delete task: %w", err)
		}
		deleted += int64(len(ids))
	}
}

// DeleteAll удаляет все документы индекса.
func (m *Meili) DeleteAll(ctx context.Context) error {
	task, err := m.client.Index(m.uid).DeleteAllDocuments()
	if err != nil {
		return fmt.Errorf("delete all documents: %w", err)
	}
	if _, err := m.client.WaitForTask(task.TaskUID); err != nil {
		return fmt.Errorf("wait delete all: %w", err)
	}
	return nil
}

// Stats возвращает сводку по базе и индексам.
func (m *Meili) Stats(ctx context.Context) (domain.IndexStats, error) {
	start := time.Now()
	stats, err := m.client.GetStats()
	metrics.ObserveNetworkRequest("meilisearch", "stats", m.uid, start, err)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("get stats: %w", err)
	}
	counts := make(map[string]int64, len(stats.Indexes))
	for uid, idx := range stats.Indexes {
		counts[uid] = idx.NumberOfDocuments
	}
	return domain.IndexStats{
		DatabaseSize:   stats.DatabaseSize,
		LastUpdate:     stats.LastUpdate,
		DocumentCounts: counts,
	}, nil
}

func buildFilter(query domain.SearchQuery) string {
	filter := ""
	if query.ChatID != nil {
		filter = fmt.Sprintf("chat.id = %d", *query.ChatID)
	}
	if query.Username != "" {
		if filter != "" {
			filter += " AND "
		}
		filter += fmt.Sprintf("chat.username = %q", query.Username)
	}
	if query.ChatType != "" {
		if filter != "" {
			filter += " AND "
		}
		filter += fmt.Sprintf("chat.type = %s", query.ChatType)
	}
	return filter
}

func decodeHit(raw interface{}) (document, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

var _ domain.Indexer = (*Meili)(nil)
