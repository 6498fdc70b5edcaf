package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
)

func writePolicy(t *testing.T, content string) *Filter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}
	return NewFilter(path, zerolog.Nop())
}

func TestIsAllowedWhitelistOnly(t *testing.T) {
	filter := writePolicy(t, "[whitelist]\n123\n")

	if !filter.IsAllowed(123, domain.ChatTypeGroup) {
		t.Fatal("чат из whitelist должен быть допущен")
	}
	if filter.IsAllowed(456, domain.ChatTypeGroup) {
		t.Fatal("чат вне whitelist должен быть отклонён")
	}
}

func TestIsAllowedBlacklist(t *testing.T) {
	filter := writePolicy(t, "[blacklist]\n456\n")

	if filter.IsAllowed(456, domain.ChatTypePrivate) {
		t.Fatal("чат из blacklist должен быть отклонён")
	}
	if !filter.IsAllowed(789, domain.ChatTypePrivate) {
		t.Fatal("чат вне blacklist должен быть допущен")
	}
}

func TestIsAllowedEmptyListsAdmitEveryone(t *testing.T) {
	filter := writePolicy(t, "[sync]\nsomechat\n")

	if !filter.IsAllowed(1, domain.ChatTypeChannel) {
		t.Fatal("без списков допускаются все чаты")
	}
}

func TestIsAllowedWhitelistWinsOverBlacklist(t *testing.T) {
	filter := writePolicy(t, "[whitelist]\n123\n[blacklist]\n123\n")

	if !filter.IsAllowed(123, domain.ChatTypeGroup) {
		t.Fatal("непустой whitelist решает единолично")
	}
}

func TestIsAllowedByChatType(t *testing.T) {
	filter := writePolicy(t, "[whitelist]\n`GROUP`\n")

	if !filter.IsAllowed(42, domain.ChatTypeGroup) {
		t.Fatal("тип чата из whitelist должен быть допущен")
	}
	if filter.IsAllowed(42, domain.ChatTypeChannel) {
		t.Fatal("другой тип чата должен быть отклонён")
	}
}

func TestIsAllowedMissingFileFailOpen(t *testing.T) {
	filter := NewFilter(filepath.Join(t.TempDir(), "absent.ini"), zerolog.Nop())

	if !filter.IsAllowed(1, domain.ChatTypePrivate) {
		t.Fatal("отсутствие файла политики означает «пускать всех»")
	}
}

func TestSourcesRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.ini")
	filter := NewFilter(path, zerolog.Nop())

	if err := filter.AddSource("-100123"); err != nil {
		t.Fatalf("добавление источника: %v", err)
	}
	if err := filter.AddSource("durov"); err != nil {
		t.Fatalf("добавление источника: %v", err)
	}
	if err := filter.AddSource("durov"); err != nil {
		t.Fatalf("повторное добавление не должно падать: %v", err)
	}

	sources := filter.Sources()
	if len(sources) != 2 {
		t.Fatalf("ожидали 2 источника, получили %v", sources)
	}

	if err := filter.RemoveSource("-100123"); err != nil {
		t.Fatalf("удаление источника: %v", err)
	}
	sources = filter.Sources()
	if len(sources) != 1 || sources[0] != "durov" {
		t.Fatalf("ожидали [durov], получили %v", sources)
	}
}
