package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/adapters/telegram"
	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
	"tg-search-bot/internal/usecase/search"
)

// commandCooldown защищает команды от частых повторов одним пользователем.
const commandCooldown = 5 * time.Second

// api — срез Bot API, который нужен обработчику.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// SyncPolicy управляет списком источников бэкфилла.
type SyncPolicy interface {
	Sources() []string
	AddSource(source string) error
	RemoveSource(source string) error
}

// Handler обслуживает апдейты поискового бота.
type Handler struct {
	bot      api
	log      zerolog.Logger
	searchUC *search.Service
	indexer  domain.Indexer
	queue    domain.MessageQueue
	policy   SyncPolicy
	owners   []int64

	mu       sync.Mutex
	lastCall map[cooldownKey]time.Time
	now      func() time.Time
}

type cooldownKey struct {
	userID  int64
	command string
}

// NewHandler создаёт обработчик.
func NewHandler(bot api, log zerolog.Logger, searchUC *search.Service, indexer domain.Indexer, queue domain.MessageQueue, policy SyncPolicy, owners []int64) *Handler {
	return &Handler{
		bot:      bot,
		log:      log,
		searchUC: searchUC,
		indexer:  indexer,
		queue:    queue,
		policy:   policy,
		owners:   owners,
		lastCall: make(map[cooldownKey]time.Time),
		now:      time.Now,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, h.buildStartMessage(), nil)
		return
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage(), nil)
		return
	}

	if !h.isOwner(msg.From.ID) {
		h.reply(msg.Chat.ID, "Бот приватный. Доступ только у владельца.", nil)
		return
	}

	switch {
	case strings.HasPrefix(text, "/ping"):
		if h.onCooldown(msg.From.ID, "ping") {
			h.reply(msg.Chat.ID, "Слишком часто. Подождите немного.", nil)
			return
		}
		h.handlePing(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/delete"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/delete"))
		h.handleDelete(msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/sync"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/sync"))
		h.handleSync(msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/"):
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	case text == "":
		return
	default:
		if h.onCooldown(msg.From.ID, "search") {
			h.reply(msg.Chat.ID, "Слишком часто. Подождите немного.", nil)
			return
		}
		h.handleSearch(ctx, msg.Chat.ID, msg.MessageID, text, 1)
	}
}

func (h *Handler) handleSearch(ctx context.Context, chatID int64, queryMessageID int, text string, page int) {
	result, pageInfo, err := h.searchUC.Search(ctx, text, page)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		h.reply(chatID, "Пустой запрос. Добавьте ключевые слова после флагов.", nil)
		return
	case errors.Is(err, search.ErrUnknownChatType):
		h.reply(chatID, fmt.Sprintf("Неизвестный тип чата. Доступны: %s", chatTypesHint()), nil)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("поиск не удался")
		h.reply(chatID, "Поиск временно недоступен. Попробуйте позже.", nil)
		return
	}

	formatted := search.FormatResults(result)
	if pageInfo.Total > 1 {
		formatted += fmt.Sprintf("\nСтраница %d из %d", pageInfo.Number, pageInfo.Total)
	}

	if !telegram.FitsSingleMessage(formatted) {
		h.replyDocument(chatID, queryMessageID, formatted)
		return
	}

	out := tgbotapi.NewMessage(chatID, formatted)
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true
	// Выдача отправляется ответом на запрос: колбэки пагинации
	// восстанавливают текст запроса из reply_to_message.
	out.ReplyToMessageID = queryMessageID
	if keyboard := navKeyboard(pageInfo); keyboard != nil {
		out.ReplyMarkup = keyboard
	}
	h.send(out, "send_message", chatID)
}

func (h *Handler) handlePing(ctx context.Context, chatID int64) {
	stats, err := h.searchUC.Stats(ctx)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Индекс недоступен: %v", err), nil)
		return
	}

	lines := []string{
		"🏓 Статус индекса:",
		fmt.Sprintf("Размер базы: %s", humanSize(stats.DatabaseSize)),
	}
	if !stats.LastUpdate.IsZero() {
		lines = append(lines, fmt.Sprintf("Обновлён: %s", stats.LastUpdate.Format("2006-01-02 15:04:05")))
	}
	for name, count := range stats.DocumentCounts {
		lines = append(lines, fmt.Sprintf("%s: %d документов", name, count))
	}
	if depth, err := h.queue.Len(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("В очереди на индексацию: %d", depth))
	}
	h.reply(chatID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handleDelete(chatID int64, payload string) {
	usage := "Использование:\n/delete all — очистить весь индекс\n/delete chat <id> — удалить сообщения чата\n/delete user <id> — удалить сообщения пользователя"
	if payload == "" {
		h.reply(chatID, usage, nil)
		return
	}

	fields := strings.Fields(payload)
	var (
		prompt string
		token  string
	)
	switch {
	case fields[0] == "all":
		prompt = "Удалить ВСЕ документы из индекса?"
		token = "del|all"
	case fields[0] == "chat" && len(fields) == 2:
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			h.reply(chatID, "Идентификатор чата должен быть числом", nil)
			return
		}
		prompt = fmt.Sprintf("Удалить все сообщения чата %d?", id)
		token = fmt.Sprintf("del|c:%d", id)
	case fields[0] == "user" && len(fields) == 2:
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			h.reply(chatID, "Идентификатор пользователя должен быть числом", nil)
			return
		}
		prompt = fmt.Sprintf("Удалить все сообщения пользователя %d?", id)
		token = fmt.Sprintf("del|u:%d", id)
	default:
		h.reply(chatID, usage, nil)
		return
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", token),
			tgbotapi.NewInlineKeyboardButtonData("Отмена", "del|cancel"),
		),
	)
	h.reply(chatID, prompt, &markup)
}

func (h *Handler) handleSync(chatID int64, payload string) {
	fields := strings.Fields(payload)
	switch {
	case payload == "" || fields[0] == "list":
		sources := h.policy.Sources()
		if len(sources) == 0 {
			h.reply(chatID, "Список источников пуст. Добавьте: /sync add @chat", nil)
			return
		}
		var b strings.Builder
		b.WriteString("Источники синхронизации:\n")
		for i, source := range sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, source)
		}
		h.reply(chatID, b.String(), nil)
	case fields[0] == "add" && len(fields) == 2:
		if err := h.policy.AddSource(fields[1]); err != nil {
			h.reply(chatID, fmt.Sprintf("Не удалось добавить источник: %v", err), nil)
			return
		}
		h.reply(chatID, fmt.Sprintf("Источник %s добавлен. История подтянется при следующем запуске синхронизации.", fields[1]), nil)
	case fields[0] == "del" && len(fields) == 2:
		if err := h.policy.RemoveSource(fields[1]); err != nil {
			h.reply(chatID, fmt.Sprintf("Не удалось убрать источник: %v", err), nil)
			return
		}
		h.reply(chatID, fmt.Sprintf("Источник %s убран из синхронизации.", fields[1]), nil)
	default:
		h.reply(chatID, "Использование: /sync list, /sync add @chat, /sync del @chat", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, "p|"), strings.HasPrefix(data, "n|"):
		h.handlePageCallback(ctx, cb)
	case strings.HasPrefix(data, "del|"):
		h.handleDeleteCallback(ctx, cb)
	}

	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

// handlePageCallback листает выдачу: целевая страница зашита в токен,
// текст запроса восстанавливается из сообщения, на которое бот ответил.
func (h *Handler) handlePageCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.ReplyToMessage == nil {
		return
	}
	target, err := strconv.Atoi(tokenPayload(cb.Data))
	if err != nil || target < 1 {
		return
	}
	query := strings.TrimSpace(cb.Message.ReplyToMessage.Text)
	if query == "" {
		return
	}

	result, pageInfo, err := h.searchUC.Search(ctx, query, target)
	if err != nil {
		h.log.Error().Err(err).Msg("пагинация не удалась")
		return
	}

	formatted := search.FormatResults(result)
	if pageInfo.Total > 1 {
		formatted += fmt.Sprintf("\nСтраница %d из %d", pageInfo.Number, pageInfo.Total)
	}

	chatID := cb.Message.Chat.ID
	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, formatted)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = navKeyboard(pageInfo)
	h.request(edit, "edit_message", chatID)
}

func (h *Handler) handleDeleteCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if !h.isOwner(cb.From.ID) {
		return
	}

	token := tokenPayload(cb.Data)
	var text string
	switch {
	case token == "cancel":
		text = "Отменено."
	case token == "all":
		if err := h.indexer.DeleteAll(ctx); err != nil {
			text = fmt.Sprintf("Не удалось очистить индекс: %v", err)
		} else {
			text = "Индекс очищен."
		}
	case strings.HasPrefix(token, "c:"), strings.HasPrefix(token, "u:"):
		id, err := strconv.ParseInt(token[2:], 10, 64)
		if err != nil {
			return
		}
		var deleted int64
		if strings.HasPrefix(token, "c:") {
			deleted, err = h.indexer.DeleteByFilter(ctx, &id, nil)
		} else {
			deleted, err = h.indexer.DeleteByFilter(ctx, nil, &id)
		}
		if err != nil {
			text = fmt.Sprintf("Не удалось удалить: %v", err)
		} else {
			text = fmt.Sprintf("Удалено документов: %d", deleted)
		}
	default:
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text)
	h.request(edit, "edit_message", chatID)
}

func (h *Handler) isOwner(userID int64) bool {
	for _, id := range h.owners {
		if id == userID {
			return true
		}
	}
	return false
}

func (h *Handler) onCooldown(userID int64, command string) bool {
	key := cooldownKey{userID: userID, command: command}
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.lastCall[key]; ok && now.Sub(last) < commandCooldown {
		return true
	}
	h.lastCall[key] = now
	return false
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for i, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		if !h.send(msg, "send_message", chatID) {
			return
		}
	}
}

func (h *Handler) replyDocument(chatID int64, replyTo int, text string) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "results.txt",
		Bytes: []byte(text),
	})
	doc.ReplyToMessageID = replyTo
	doc.Caption = "Выдача не поместилась в сообщение, результаты во вложении."
	h.send(doc, "send_document", chatID)
}

func (h *Handler) send(c tgbotapi.Chattable, operation string, chatID int64) bool {
	start := time.Now()
	_, err := h.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", operation, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить сообщение")
		return false
	}
	return true
}

func (h *Handler) request(c tgbotapi.Chattable, operation string, chatID int64) {
	start := time.Now()
	_, err := h.bot.Request(c)
	metrics.ObserveNetworkRequest("telegram_bot", operation, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выполнить запрос Bot API")
	}
}

func navKeyboard(page search.Page) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if page.HasPrev {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("p|%d", page.Number-1)))
	}
	if page.HasNext {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Вперёд ➡️", fmt.Sprintf("n|%d", page.Number+1)))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func tokenPayload(token string) string {
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

func chatTypesHint() string {
	names := make([]string, 0, len(domain.KnownChatTypes))
	for _, ct := range domain.KnownChatTypes {
		names = append(names, string(ct))
	}
	return strings.Join(names, ", ")
}

// humanSize печатает размер в двоичных единицах, как делает sizeof_fmt.
func humanSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f PiB", value)
}

func (h *Handler) buildStartMessage() string {
	lines := []string{
		"👋 Это поиск по вашим сообщениям Telegram.",
		"",
		"Отправьте любой текст, и бот найдёт его в проиндексированной истории.",
		"Флаги запроса:",
		"• -t=GROUP — ограничить тип чата (PRIVATE, GROUP, SUPERGROUP, CHANNEL).",
		"• -u=@durov или -u=123456 — ограничить чат или собеседника.",
		"• -m=e или \"фраза в кавычках\" — точное совпадение.",
		"",
		"Полный список команд — /help.",
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) buildHelpMessage() string {
	lines := []string{
		"📖 Команды:",
		"",
		"Поиск:",
		"• любой текст — поиск по ключевым словам.",
		"• -t=GROUP ключевые слова — только в группах.",
		"• -u=@durov ключевые слова — только в выбранном чате.",
		"• \"точная фраза\" — требовать все слова запроса.",
		"",
		"Администрирование:",
		"• /ping — состояние индекса и очереди.",
		"• /sync list | add @chat | del @chat — источники бэкфилла.",
		"• /delete all | chat <id> | user <id> — удаление из индекса.",
		"",
		"Кнопки под выдачей листают страницы по 10 результатов.",
	}
	return strings.Join(lines, "\n")
}
