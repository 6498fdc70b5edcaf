package telegram

import "strings"

// Telegram не принимает сообщения длиннее 4096 символов.
const messageLimit = 4096

// FitsSingleMessage сообщает, помещается ли текст в одно сообщение.
func FitsSingleMessage(text string) bool {
	return len([]rune(strings.TrimSpace(text))) <= messageLimit
}

// SplitMessage режет текст на части в пределах лимита Telegram.
// Разрезы проходят по границам строк, чтобы не рвать форматированные блоки.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := lastNewlineBefore(runes, start, end)
		if split == -1 {
			split = end
		}
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

func lastNewlineBefore(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return -1
}
