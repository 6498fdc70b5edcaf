package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// PageSize — фиксированный размер страницы выдачи.
const PageSize = 10

var (
	ErrEmptyQuery      = errors.New("пустой поисковый запрос")
	ErrUnknownChatType = errors.New("неизвестный тип чата")
)

// ParsedQuery — разобранный пользовательский запрос: ключевые слова
// плюс флаги -t (тип чата), -u (чат или пользователь), -m=e (точное
// совпадение).
type ParsedQuery struct {
	Keyword  string
	ChatType domain.ChatType
	User     string
	Exact    bool
}

// ParseQuery извлекает флаги из текста запроса. Всё, что не похоже на
// флаг, становится ключевыми словами.
func ParseQuery(text string) (ParsedQuery, error) {
	var (
		parsed ParsedQuery
		words  []string
	)
	for _, token := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(token, "-t="):
			value := strings.TrimPrefix(token, "-t=")
			chatType, ok := domain.ParseChatType(value)
			if !ok {
				return ParsedQuery{}, fmt.Errorf("%w: %s", ErrUnknownChatType, value)
			}
			parsed.ChatType = chatType
		case strings.HasPrefix(token, "-u="):
			parsed.User = strings.TrimPrefix(strings.TrimPrefix(token, "-u="), "@")
		case strings.HasPrefix(token, "-m="):
			parsed.Exact = strings.TrimPrefix(token, "-m=") == "e"
		default:
			words = append(words, token)
		}
	}
	parsed.Keyword = strings.Join(words, " ")
	if strings.HasPrefix(parsed.Keyword, `"`) && strings.HasSuffix(parsed.Keyword, `"`) && len(parsed.Keyword) > 1 {
		parsed.Exact = true
		parsed.Keyword = strings.Trim(parsed.Keyword, `"`)
	}
	if parsed.Keyword == "" {
		return ParsedQuery{}, ErrEmptyQuery
	}
	return parsed, nil
}

// Page описывает позицию в постраничной выдаче и доступные переходы.
type Page struct {
	Number  int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate вычисляет навигацию: «назад» есть только не на первой
// странице, «вперёд» — только не на последней; при единственной
// странице навигации нет вовсе.
func Paginate(page int, totalHits int64) Page {
	if page < 1 {
		page = 1
	}
	total := 0
	if totalHits > 0 {
		total = int((totalHits-1)/PageSize) + 1
	}
	return Page{
		Number:  page,
		Total:   total,
		HasPrev: page > 1,
		HasNext: page < total,
	}
}

// Service — тонкий фасад поиска поверх индекса.
type Service struct {
	indexer domain.Indexer
}

// NewService создаёт фасад.
func NewService(indexer domain.Indexer) *Service {
	return &Service{indexer: indexer}
}

// Search разбирает запрос и возвращает страницу выдачи вместе с
// навигацией.
func (s *Service) Search(ctx context.Context, text string, page int) (domain.SearchResult, Page, error) {
	parsed, err := ParseQuery(text)
	if err != nil {
		return domain.SearchResult{}, Page{}, err
	}
	metrics.SearchRequestsTotal.Inc()

	query := domain.SearchQuery{
		Keyword:  parsed.Keyword,
		ChatType: parsed.ChatType,
		Exact:    parsed.Exact,
		Page:     page,
		PageSize: PageSize,
	}
	if parsed.User != "" {
		if id, err := strconv.ParseInt(parsed.User, 10, 64); err == nil {
			query.ChatID = &id
		} else {
			query.Username = parsed.User
		}
	}

	result, err := s.indexer.Search(ctx, query)
	if err != nil {
		return domain.SearchResult{}, Page{}, fmt.Errorf("search index: %w", err)
	}
	return result, Paginate(page, result.TotalHits), nil
}

// Stats возвращает сводку индекса для команды /ping.
func (s *Service) Stats(ctx context.Context) (domain.IndexStats, error) {
	return s.indexer.Stats(ctx)
}
