package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/usecase/search"
)

const ownerID = int64(100500)

type fakeAPI struct {
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 99}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.sent = append(f.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	t.Fatal("бот ничего не отправил")
	return tgbotapi.MessageConfig{}
}

type recIndexer struct {
	lastQuery  domain.SearchQuery
	result     domain.SearchResult
	allDeleted bool
	deleted    int64
	filterChat *int64
	filterUser *int64
}

func (r *recIndexer) Upsert(ctx context.Context, msg domain.Message) error { return nil }

func (r *recIndexer) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	r.lastQuery = query
	return r.result, nil
}

func (r *recIndexer) DeleteByFilter(ctx context.Context, chatID, userID *int64) (int64, error) {
	r.filterChat, r.filterUser = chatID, userID
	return r.deleted, nil
}

func (r *recIndexer) DeleteAll(ctx context.Context) error {
	r.allDeleted = true
	return nil
}

func (r *recIndexer) Stats(ctx context.Context) (domain.IndexStats, error) {
	return domain.IndexStats{
		DatabaseSize:   1536,
		LastUpdate:     time.Unix(1700000000, 0),
		DocumentCounts: map[string]int64{"telegram": 42},
	}, nil
}

type fakePolicy struct {
	sources []string
}

func (p *fakePolicy) Sources() []string { return p.sources }

func (p *fakePolicy) AddSource(source string) error {
	p.sources = append(p.sources, source)
	return nil
}

func (p *fakePolicy) RemoveSource(source string) error {
	out := p.sources[:0]
	for _, s := range p.sources {
		if s != source {
			out = append(out, s)
		}
	}
	p.sources = out
	return nil
}

type nilQueue struct{}

func (nilQueue) Push(ctx context.Context, msg domain.Message) error { return nil }
func (nilQueue) Pop(ctx context.Context) (domain.Message, error)    { return domain.Message{}, domain.ErrQueueEmpty }
func (nilQueue) Len(ctx context.Context) (int64, error)             { return 3, nil }
func (nilQueue) Clear(ctx context.Context) error                    { return nil }

func newTestHandler(indexer *recIndexer) (*Handler, *fakeAPI, *fakePolicy) {
	botAPI := &fakeAPI{}
	policy := &fakePolicy{}
	handler := NewHandler(botAPI, zerolog.Nop(), search.NewService(indexer), indexer, nilQueue{}, policy, []int64{ownerID})
	// Каждый вызов сдвигаем на минуту, чтобы кулдаун не мешал тестам.
	base := time.Unix(1700000000, 0)
	handler.now = func() time.Time {
		base = base.Add(time.Minute)
		return base
	}
	return handler, botAPI, policy
}

func ownerMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		From:      &tgbotapi.User{ID: ownerID},
		Chat:      &tgbotapi.Chat{ID: ownerID, Type: "private"},
	}
}

func TestHandlerRejectsNonOwner(t *testing.T) {
	handler, botAPI, _ := newTestHandler(&recIndexer{})

	msg := ownerMessage("/ping")
	msg.From.ID = 42
	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	if got := botAPI.lastMessage(t).Text; !strings.Contains(got, "владельца") {
		t.Fatalf("чужой пользователь должен получать отказ, получил %q", got)
	}
}

func TestHandlerHelpAvailableToEveryone(t *testing.T) {
	handler, botAPI, _ := newTestHandler(&recIndexer{})

	msg := ownerMessage("/help")
	msg.From.ID = 42
	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	if got := botAPI.lastMessage(t).Text; !strings.Contains(got, "Команды") {
		t.Fatalf("ожидали справку, получили %q", got)
	}
}

func TestHandlerSearchRepliesWithNavigation(t *testing.T) {
	indexer := &recIndexer{result: domain.SearchResult{
		TotalHits: 25,
		Hits: []domain.Message{{
			ID:   1,
			Chat: domain.Chat{ID: -1001, Type: domain.ChatTypeGroup, Title: "чат"},
			Date: time.Unix(1700000000, 0),
			Text: "нашлось",
		}},
	}}
	handler, botAPI, _ := newTestHandler(indexer)

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("нашлось")})

	sent := botAPI.lastMessage(t)
	if sent.ReplyToMessageID != 10 {
		t.Fatalf("выдача должна отвечать на запрос, reply_to=%d", sent.ReplyToMessageID)
	}
	markup, ok := sent.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) == 0 {
		t.Fatal("на первой из трёх страниц должна быть клавиатура")
	}
	row := markup.InlineKeyboard[0]
	if len(row) != 1 || row[0].CallbackData == nil || *row[0].CallbackData != "n|2" {
		t.Fatalf("на первой странице только «вперёд» с целевой страницей 2: %+v", row)
	}
	if !strings.Contains(sent.Text, "Страница 1 из 3") {
		t.Fatalf("нет сводки страниц: %q", sent.Text)
	}
}

func TestHandlerPaginationCallback(t *testing.T) {
	indexer := &recIndexer{result: domain.SearchResult{TotalHits: 25}}
	handler, botAPI, _ := newTestHandler(indexer)

	cb := &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: ownerID},
		Data: "n|2",
		Message: &tgbotapi.Message{
			MessageID:      99,
			Chat:           &tgbotapi.Chat{ID: ownerID, Type: "private"},
			ReplyToMessage: ownerMessage("исходный запрос"),
		},
	}
	handler.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	if indexer.lastQuery.Page != 2 {
		t.Fatalf("токен n|2 должен запрашивать вторую страницу, получили %d", indexer.lastQuery.Page)
	}
	if indexer.lastQuery.Keyword != "исходный запрос" {
		t.Fatalf("запрос должен восстанавливаться из reply_to_message: %q", indexer.lastQuery.Keyword)
	}

	var edited bool
	for _, c := range botAPI.sent {
		if _, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			edited = true
		}
	}
	if !edited {
		t.Fatal("пагинация должна редактировать сообщение с выдачей")
	}
}

func TestHandlerDeleteAsksConfirmation(t *testing.T) {
	handler, botAPI, _ := newTestHandler(&recIndexer{})

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/delete all")})

	sent := botAPI.lastMessage(t)
	markup, ok := sent.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatal("ожидали клавиатуру подтверждения")
	}
	row := markup.InlineKeyboard[0]
	if *row[0].CallbackData != "del|all" || *row[1].CallbackData != "del|cancel" {
		t.Fatalf("неожиданные токены подтверждения: %+v", row)
	}
}

func TestHandlerDeleteAllCallback(t *testing.T) {
	indexer := &recIndexer{}
	handler, _, _ := newTestHandler(indexer)

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: ownerID},
		Data:    "del|all",
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: ownerID, Type: "private"}},
	}
	handler.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	if !indexer.allDeleted {
		t.Fatal("подтверждение del|all должно очищать индекс")
	}
}

func TestHandlerDeleteChatCallback(t *testing.T) {
	indexer := &recIndexer{deleted: 7}
	handler, _, _ := newTestHandler(indexer)

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: ownerID},
		Data:    "del|c:-1001",
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: ownerID, Type: "private"}},
	}
	handler.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	if indexer.filterChat == nil || *indexer.filterChat != -1001 || indexer.filterUser != nil {
		t.Fatalf("ожидали фильтр по чату -1001: chat=%v user=%v", indexer.filterChat, indexer.filterUser)
	}
}

func TestHandlerDeleteCallbackIgnoresNonOwner(t *testing.T) {
	indexer := &recIndexer{}
	handler, _, _ := newTestHandler(indexer)

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 42},
		Data:    "del|all",
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: 42, Type: "private"}},
	}
	handler.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	if indexer.allDeleted {
		t.Fatal("чужое подтверждение не должно очищать индекс")
	}
}

func TestHandlerSyncAddListDel(t *testing.T) {
	handler, botAPI, policy := newTestHandler(&recIndexer{})

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/sync add @gophers")})
	if len(policy.sources) != 1 || policy.sources[0] != "@gophers" {
		t.Fatalf("источник не добавился: %v", policy.sources)
	}

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/sync list")})
	if got := botAPI.lastMessage(t).Text; !strings.Contains(got, "@gophers") {
		t.Fatalf("список должен содержать источник: %q", got)
	}

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/sync del @gophers")})
	if len(policy.sources) != 0 {
		t.Fatalf("источник не убрался: %v", policy.sources)
	}
}

func TestHandlerPing(t *testing.T) {
	handler, botAPI, _ := newTestHandler(&recIndexer{})

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/ping")})

	got := botAPI.lastMessage(t).Text
	if !strings.Contains(got, "1.5 KiB") {
		t.Fatalf("размер базы должен печататься в человеческом виде: %q", got)
	}
	if !strings.Contains(got, "telegram: 42 документов") {
		t.Fatalf("нет счётчика документов: %q", got)
	}
	if !strings.Contains(got, "В очереди на индексацию: 3") {
		t.Fatalf("нет глубины очереди: %q", got)
	}
}

func TestHandlerCooldown(t *testing.T) {
	handler, botAPI, _ := newTestHandler(&recIndexer{})
	fixed := time.Unix(1700000000, 0)
	handler.now = func() time.Time { return fixed }

	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/ping")})
	handler.HandleUpdate(context.Background(), tgbotapi.Update{Message: ownerMessage("/ping")})

	if got := botAPI.lastMessage(t).Text; !strings.Contains(got, "Слишком часто") {
		t.Fatalf("повтор внутри кулдауна должен отбрасываться: %q", got)
	}
}

func TestHumanSize(t *testing.T) {
	cases := map[int64]string{
		0:       "0.0 B",
		512:     "512.0 B",
		1536:    "1.5 KiB",
		2 << 20: "2.0 MiB",
		3 << 30: "3.0 GiB",
	}
	for size, want := range cases {
		if got := humanSize(size); got != want {
			t.Fatalf("humanSize(%d) = %q, ожидали %q", size, got, want)
		}
	}
}
