package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatType описывает тип чата Telegram.
type ChatType string

const (
	ChatTypePrivate    ChatType = "PRIVATE"
	ChatTypeGroup      ChatType = "GROUP"
	ChatTypeSupergroup ChatType = "SUPERGROUP"
	ChatTypeChannel    ChatType = "CHANNEL"
)

// KnownChatTypes перечисляет все поддерживаемые типы чатов.
var KnownChatTypes = []ChatType{ChatTypePrivate, ChatTypeGroup, ChatTypeSupergroup, ChatTypeChannel}

// ParseChatType приводит пользовательский ввод к каноничному типу чата.
func ParseChatType(input string) (ChatType, bool) {
	normalized := strings.ToUpper(strings.Trim(strings.TrimSpace(input), "`"))
	for _, ct := range KnownChatTypes {
		if string(ct) == normalized {
			return ct, true
		}
	}
	return "", false
}

// Chat описывает чат, из которого пришло сообщение.
type Chat struct {
	ID       int64    `json:"id"`
	Type     ChatType `json:"type"`
	Title    string   `json:"title,omitempty"`
	Username string   `json:"username,omitempty"`
}

// Sender описывает автора сообщения. Для постов каналов автора нет.
type Sender struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName собирает отображаемое имя автора.
func (s Sender) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return "Unknown"
	}
	return name
}

// Message — единица захвата: новое, отредактированное или историческое сообщение.
// После создания не изменяется: правка порождает новое значение с тем же ключом,
// которое перезаписывает прежний документ в индексе.
type Message struct {
	ID      int64     `json:"id"`
	Chat    Chat      `json:"chat"`
	Date    time.Time `json:"date"`
	Text    string    `json:"text,omitempty"`
	Caption string    `json:"caption,omitempty"`
	From    *Sender   `json:"from_user,omitempty"`
}

// Key возвращает составной ключ документа в индексе.
func (m Message) Key() string {
	return fmt.Sprintf("%d-%d", m.Chat.ID, m.ID)
}

// Body возвращает текст либо подпись сообщения.
func (m Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// Indexable сообщает, есть ли в сообщении что индексировать.
func (m Message) Indexable() bool {
	return m.Text != "" || m.Caption != ""
}

// SyncState хранит прогресс бэкфилла по одному источнику.
// LastID монотонно растёт, пока Completed=false; после завершения
// повторный обход не выполняется без явного сброса.
type SyncState struct {
	Completed bool  `json:"completed"`
	LastID    int64 `json:"last_id"`
}

// ChatMeta содержит результат резолва источника синхронизации.
type ChatMeta struct {
	ID       int64
	Type     ChatType
	Title    string
	Username string
}

// MatchStrategy задаёт стратегию сопоставления слов запроса.
type MatchStrategy string

const (
	// MatchLast — нестрогий поиск, часть слов запроса может не совпасть.
	MatchLast MatchStrategy = "last"
	// MatchAll — точное совпадение, требуются все слова запроса.
	MatchAll MatchStrategy = "all"
)

// SearchQuery описывает постраничный запрос к индексу.
type SearchQuery struct {
	Keyword  string
	ChatType ChatType
	ChatID   *int64
	Username string
	Exact    bool
	Page     int
	PageSize int
}

// Offset возвращает смещение для текущей страницы.
func (q SearchQuery) Offset() int64 {
	page := q.Page
	if page < 1 {
		page = 1
	}
	return int64((page - 1) * q.PageSize)
}

// SearchResult содержит одну страницу результатов поиска.
type SearchResult struct {
	Hits      []Message
	TotalHits int64
}

// IndexStats описывает состояние поискового индекса.
type IndexStats struct {
	DatabaseSize   int64
	LastUpdate     time.Time
	DocumentCounts map[string]int64
}
