package search

import (
	"fmt"
	"html"
	"strings"

	"tg-search-bot/internal/domain"
)

// bodyPreviewLimit — сколько символов текста показывается в выдаче.
const bodyPreviewLimit = 100

// FormatResults отрисовывает страницу выдачи в HTML для Telegram.
func FormatResults(result domain.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Всего найдено: %d\n\n", result.TotalHits)

	if len(result.Hits) == 0 {
		b.WriteString("Ничего не найдено.")
		return b.String()
	}

	for _, hit := range result.Hits {
		body := hit.Body()
		if body == "" {
			continue
		}
		chatName, author := displayNames(hit)
		chatLink, messageLink := buildLinks(hit, chatName)

		fmt.Fprintf(&b, "%s → <a href=\"%s\">%s</a>, %s:\n",
			html.EscapeString(author), chatLink, html.EscapeString(chatName), hit.Date.Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "<code>%s</code>\n", html.EscapeString(trimBody(body)))
		fmt.Fprintf(&b, "<a href=\"%s\">Перейти к сообщению</a>\n\n", messageLink)
	}
	return b.String()
}

func displayNames(hit domain.Message) (chatName, author string) {
	switch hit.Chat.Type {
	case domain.ChatTypeChannel:
		chatName = hit.Chat.Title
		if chatName == "" {
			chatName = "Channel"
		}
		author = "Channel"
	case domain.ChatTypePrivate:
		chatName = hit.Chat.Username
		if chatName == "" {
			chatName = fmt.Sprintf("%d", hit.Chat.ID)
		}
		if hit.From != nil {
			author = hit.From.DisplayName()
		} else {
			author = "Unknown"
		}
	default:
		chatName = hit.Chat.Title
		if chatName == "" {
			chatName = fmt.Sprintf("%d", hit.Chat.ID)
		}
		if hit.From != nil {
			author = hit.From.DisplayName()
		} else {
			author = "Unknown"
		}
	}
	return chatName, author
}

// buildLinks собирает диплинк на чат и прямую ссылку на сообщение.
func buildLinks(hit domain.Message, chatName string) (chatLink, messageLink string) {
	chatID := hit.Chat.ID
	switch {
	case hit.Chat.Type == domain.ChatTypePrivate:
		chatLink = fmt.Sprintf("tg://user?id=%d", chatID)
		messageLink = fmt.Sprintf("tg://openmessage?user_id=%d&message_id=%d", chatID, hit.ID)
	case chatID < 0:
		internal := strings.TrimPrefix(fmt.Sprintf("%d", -chatID), "100")
		chatLink = fmt.Sprintf("tg://resolve?domain=c/%s", internal)
		messageLink = fmt.Sprintf("https://t.me/c/%s/%d", internal, hit.ID)
	default:
		chatLink = fmt.Sprintf("tg://user?id=%d", chatID)
		messageLink = fmt.Sprintf("https://t.me/%s/%d", chatName, hit.ID)
	}
	return chatLink, messageLink
}

func trimBody(body string) string {
	runes := []rune(body)
	if len(runes) <= bodyPreviewLimit {
		return body
	}
	return string(runes[:bodyPreviewLimit]) + "..."
}
