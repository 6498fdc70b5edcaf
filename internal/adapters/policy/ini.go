package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"

	"tg-search-bot/internal/domain"
)

const (
	sectionSync      = "sync"
	sectionWhitelist = "whitelist"
	sectionBlacklist = "blacklist"
)

var loadOptions = ini.LoadOptions{
	AllowBooleanKeys: true,
}

// Filter — allow/deny фильтр чатов поверх ini-файла синхронизации.
// Файл перечитывается на каждое решение, поэтому правки вступают в силу
// без перезапуска. Отсутствующий или битый файл означает «пускать всех».
type Filter struct {
	path string
	log  zerolog.Logger

	// mu сериализует только запись файла; чтение снимает целостный
	// снапшот, потому что каждый вызов парсит файл заново.
	mu sync.Mutex
}

// NewFilter создаёт фильтр по пути к ini-файлу.
func NewFilter(path string, log zerolog.Logger) *Filter {
	return &Filter{path: path, log: log}
}

// IsAllowed решает, допускать ли чат. Непустой whitelist решает
// единолично; иначе решает blacklist; если оба пусты — пускаем всех.
func (f *Filter) IsAllowed(chatID int64, chatType domain.ChatType) bool {
	whitelist, blacklist := f.loadLists()

	idStr := strconv.FormatInt(chatID, 10)
	typeStr := string(chatType)

	if len(whitelist) > 0 {
		return containsEntry(whitelist, idStr) || containsEntry(whitelist, typeStr)
	}
	if len(blacklist) > 0 {
		return !containsEntry(blacklist, idStr) && !containsEntry(blacklist, typeStr)
	}
	return true
}

// Sources возвращает список источников из секции [sync].
func (f *Filter) Sources() []string {
	cfg, err := ini.LoadSources(loadOptions, f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("path", f.path).Msg("policy: не удалось прочитать файл синхронизации")
		}
		return nil
	}
	sec, err := cfg.GetSection(sectionSync)
	if err != nil {
		return nil
	}
	return sec.KeyStrings()
}

// AddSource добавляет источник в секцию [sync].
func (f *Filter) AddSource(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("source is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg := f.loadOrEmpty()
	sec, err := cfg.GetSection(sectionSync)
	if err != nil {
		if sec, err = cfg.NewSection(sectionSync); err != nil {
			return fmt.Errorf("create sync section: %w", err)
		}
	}
	if sec.HasKey(source) {
		return nil
	}
	if _, err := sec.NewBooleanKey(source); err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	return f.save(cfg)
}

// RemoveSource убирает источник из секции [sync].
func (f *Filter) RemoveSource(source string) error {
	source = strings.TrimSpace(source)
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg := f.loadOrEmpty()
	sec, err := cfg.GetSection(sectionSync)
	if err != nil || !sec.HasKey(source) {
		return nil
	}
	sec.DeleteKey(source)
	return f.save(cfg)
}

func (f *Filter) loadLists() (whitelist, blacklist []string) {
	cfg, err := ini.LoadSources(loadOptions, f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("path", f.path).Msg("policy: не удалось прочитать файл синхронизации, пускаем всех")
		}
		return nil, nil
	}
	if sec, err := cfg.GetSection(sectionWhitelist); err == nil {
		whitelist = sec.KeyStrings()
	}
	if sec, err := cfg.GetSection(sectionBlacklist); err == nil {
		blacklist = sec.KeyStrings()
	}
	return whitelist, blacklist
}

func (f *Filter) loadOrEmpty() *ini.File {
	cfg, err := ini.LoadSources(loadOptions, f.path)
	if err != nil {
		return ini.Empty(loadOptions)
	}
	return cfg
}

func (f *Filter) save(cfg *ini.File) error {
	if err := cfg.SaveTo(f.path); err != nil {
		return fmt.Errorf("save sync config: %w", err)
	}
	return nil
}

// containsEntry сравнивает запись списка с значением, терпя записи
// в обратных кавычках из старых конфигов.
func containsEntry(entries []string, value string) bool {
	for _, entry := range entries {
		if strings.Trim(strings.TrimSpace(entry), "`") == value {
			return true
		}
	}
	return false
}

var _ domain.AccessFilter = (*Filter)(nil)
