package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

// ErrNotAuthorized возвращается, если у сессии нет авторизации.
// Сессию готовит cmd/session-importer.
var ErrNotAuthorized = errors.New("сессия MTProto не авторизована")

const (
	historyBatchSize = 100
	dialogsBatchSize = 100
)

// Bot API и MTProto нумеруют чаты по-разному: супергруппы и каналы в Bot API
// получают префикс -100, обычные группы — минус. Индекс хранит id в нотации
// Bot API, поэтому история приводится к ней же.
const channelIDOffset = int64(1000000000000)

func channelBotID(id int64) int64 { return -(channelIDOffset + id) }
func groupBotID(id int64) int64   { return -id }

// Client реализует domain.HistoryClient поверх gotd.
type Client struct {
	client *telegram.Client
	log    zerolog.Logger

	mu    sync.Mutex
	api   *tg.Client
	self  *tg.User
	peers map[int64]tg.InputPeerClass
}

// NewClient создаёт MTProto клиент с файловым хранилищем сессии.
func NewClient(apiID int, apiHash, sessionFile string, log zerolog.Logger) *Client {
	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	})
	return &Client{
		client: client,
		log:    log.With().Str("component", "mtproto").Logger(),
		peers:  make(map[int64]tg.InputPeerClass),
	}
}

// Run держит MTProto-соединение открытым, пока работает fn. Все вызовы
// ResolveChat и WalkHistory должны происходить внутри fn.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		c.mu.Lock()
		c.api = c.client.API()
		c.self = status.User
		c.mu.Unlock()
		c.log.Info().Int64("self_id", status.User.ID).Msg("MTProto сессия авторизована")
		return fn(ctx)
	})
}

// SelfID возвращает id аккаунта, под которым открыта сессия.
func (c *Client) SelfID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self == nil {
		return 0
	}
	return c.self.ID
}

// ResolveChat находит чат по username или числовому id в нотации Bot API.
func (c *Client) ResolveChat(ctx context.Context, source string) (domain.ChatMeta, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(source), "@")
	if trimmed == "" {
		return domain.ChatMeta{}, fmt.Errorf("пустой источник синхронизации")
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return c.resolveByID(ctx, id)
	}
	return c.resolveByUsername(ctx, trimmed)
}

func (c *Client) resolveByUsername(ctx context.Context, username string) (domain.ChatMeta, error) {
	start := time.Now()
	res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	metrics.ObserveNetworkRequest("mtproto", "resolve_username", username, start, err)
	if err != nil {
		return domain.ChatMeta{}, fmt.Errorf("resolve username %s: %w", username, err)
	}
	for _, raw := range res.Chats {
		switch chat := raw.(type) {
		case *tg.Channel:
			meta := channelMeta(chat)
			c.storePeer(meta.ID, &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash})
			return meta, nil
		case *tg.Chat:
			meta := groupMeta(chat)
			c.storePeer(meta.ID, &tg.InputPeerChat{ChatID: chat.ID})
			return meta, nil
		}
	}
	for _, raw := range res.Users {
		if user, ok := raw.(*tg.User); ok {
			meta := userMeta(user)
			c.storePeer(meta.ID, &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash})
			return meta, nil
		}
	}
	return domain.ChatMeta{}, fmt.Errorf("resolve username %s: пустой ответ", username)
}

// resolveByID ищет чат среди диалогов аккаунта: MTProto не умеет
// резолвить голый числовой id без access hash.
func (c *Client) resolveByID(ctx context.Context, chatID int64) (domain.ChatMeta, error) {
	offsetDate := 0
	offsetID := 0
	for {
		start := time.Now()
		res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      dialogsBatchSize,
		})
		metrics.ObserveNetworkRequest("mtproto", "get_dialogs", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return domain.ChatMeta{}, fmt.Errorf("get dialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			chats    []tg.ChatClass
			users    []tg.UserClass
		)
		switch batch := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, messages, chats, users = batch.Dialogs, batch.Messages, batch.Chats, batch.Users
		case *tg.MessagesDialogsSlice:
			dialogs, messages, chats, users = batch.Dialogs, batch.Messages, batch.Chats, batch.Users
		default:
			return domain.ChatMeta{}, fmt.Errorf("get dialogs: неожиданный ответ %T", res)
		}

		for _, raw := range chats {
			switch chat := raw.(type) {
			case *tg.Channel:
				if channelBotID(chat.ID) == chatID {
					meta := channelMeta(chat)
					c.storePeer(meta.ID, &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash})
					return meta, nil
				}
			case *tg.Chat:
				if groupBotID(chat.ID) == chatID {
					meta := groupMeta(chat)
					c.storePeer(meta.ID, &tg.InputPeerChat{ChatID: chat.ID})
					return meta, nil
				}
			}
		}
		for _, raw := range users {
			if user, ok := raw.(*tg.User); ok && user.ID == chatID {
				meta := userMeta(user)
				c.storePeer(meta.ID, &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash})
				return meta, nil
			}
		}

		if len(dialogs) < dialogsBatchSize {
			return domain.ChatMeta{}, fmt.Errorf("чат %d не найден среди диалогов", chatID)
		}
		offsetID, offsetDate = nextDialogsOffset(dialogs, messages)
	}
}

func nextDialogsOffset(dialogs []tg.DialogClass, messages []tg.MessageClass) (offsetID, offsetDate int) {
	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		return 0, 0
	}
	offsetID = last.TopMessage
	for _, raw := range messages {
		if msg, ok := raw.(*tg.Message); ok && msg.ID == last.TopMessage {
			offsetDate = msg.Date
			break
		}
	}
	return offsetID, offsetDate
}

// WalkHistory обходит историю чата от новых сообщений к старым пачками
// по historyBatchSize. Сервисные сообщения пропускаются, но двигают курсор.
func (c *Client) WalkHistory(ctx context.Context, chat domain.ChatMeta, fn func(domain.Message) (bool, error)) error {
	peer, ok := c.peer(chat.ID)
	if !ok {
		return fmt.Errorf("peer для чата %d не отрезолвлен", chat.ID)
	}

	offsetID := 0
	for {
		start := time.Now()
		res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyBatchSize,
		})
		metrics.ObserveNetworkRequest("mtproto", "get_history", strconv.FormatInt(chat.ID, 10), start, err)
		if err != nil {
			return fmt.Errorf("get history: %w", err)
		}

		batch, users, err := historyBatch(res)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		senders := indexUsers(users)

		for _, raw := range batch {
			switch msg := raw.(type) {
			case *tg.Message:
				offsetID = msg.ID
				cont, err := fn(toDomain(chat, msg, senders))
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
			case *tg.MessageService:
				offsetID = msg.ID
			case *tg.MessageEmpty:
				offsetID = msg.ID
			}
		}

		if len(batch) < historyBatchSize {
			return nil
		}
	}
}

func historyBatch(res tg.MessagesMessagesClass) ([]tg.MessageClass, []tg.UserClass, error) {
	switch batch := res.(type) {
	case *tg.MessagesMessages:
		return batch.Messages, batch.Users, nil
	case *tg.MessagesMessagesSlice:
		return batch.Messages, batch.Users, nil
	case *tg.MessagesChannelMessages:
		return batch.Messages, batch.Users, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("get history: неожиданный ответ %T", res)
	}
}

func indexUsers(users []tg.UserClass) map[int64]*tg.User {
	out := make(map[int64]*tg.User, len(users))
	for _, raw := range users {
		if user, ok := raw.(*tg.User); ok {
			out[user.ID] = user
		}
	}
	return out
}

func toDomain(chat domain.ChatMeta, msg *tg.Message, senders map[int64]*tg.User) domain.Message {
	out := domain.Message{
		ID:   int64(msg.ID),
		Chat: domain.Chat{ID: chat.ID, Type: chat.Type, Title: chat.Title, Username: chat.Username},
		Date: time.Unix(int64(msg.Date), 0),
		Text: msg.Message,
	}
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		if user, ok := senders[from.UserID]; ok {
			out.From = &domain.Sender{ID: user.ID, FirstName: user.FirstName, LastName: user.LastName, Username: user.Username}
		} else {
			out.From = &domain.Sender{ID: from.UserID}
		}
	}
	return out
}

func channelMeta(ch *tg.Channel) domain.ChatMeta {
	chatType := domain.ChatTypeSupergroup
	if ch.Broadcast {
		chatType = domain.ChatTypeChannel
	}
	return domain.ChatMeta{ID: channelBotID(ch.ID), Type: chatType, Title: ch.Title, Username: ch.Username}
}

func groupMeta(ch *tg.Chat) domain.ChatMeta {
	return domain.ChatMeta{ID: groupBotID(ch.ID), Type: domain.ChatTypeGroup, Title: ch.Title}
}

func userMeta(user *tg.User) domain.ChatMeta {
	title := strings.TrimSpace(user.FirstName + " " + user.LastName)
	return domain.ChatMeta{ID: user.ID, Type: domain.ChatTypePrivate, Title: title, Username: user.Username}
}

func (c *Client) storePeer(id int64, peer tg.InputPeerClass) {
	c.mu.Lock()
	c.peers[id] = peer
	c.mu.Unlock()
}

func (c *Client) peer(id int64) (tg.InputPeerClass, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.peers[id]
	return peer, ok
}

var _ domain.HistoryClient = (*Client)(nil)
