package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
)

// FileStore хранит вотермарки бэкфилла в JSON-файле. Запись идёт через
// временный файл с переименованием, чтобы падение посреди записи не
// портило состояние.
type FileStore struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

// NewFileStore создаёт хранилище по указанному пути.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// All возвращает все сохранённые курсоры. Отсутствующий или битый файл
// трактуется как пустое состояние.
func (s *FileStore) All() (map[string]domain.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get возвращает курсор одного источника.
func (s *FileStore) Get(source string) (domain.SyncState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := s.load()
	if err != nil {
		return domain.SyncState{}, false, err
	}
	state, ok := states[source]
	return state, ok, nil
}

// Put сохраняет курсор источника.
func (s *FileStore) Put(source string, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := s.load()
	if err != nil {
		return err
	}
	states[source] = state
	return s.store(states)
}

// Delete убирает курсор источника.
func (s *FileStore) Delete(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := states[source]; !ok {
		return nil
	}
	delete(states, source)
	return s.store(states)
}

// Reset удаляет файл состояния целиком.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cursor file: %w", err)
	}
	return nil
}

func (s *FileStore) load() (map[string]domain.SyncState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]domain.SyncState{}, nil
		}
		return nil, fmt.Errorf("read cursor file: %w", err)
	}
	states := map[string]domain.SyncState{}
	if err := json.Unmarshal(data, &states); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("cursor: файл состояния повреждён, начинаем с пустого")
		return map[string]domain.SyncState{}, nil
	}
	return states, nil
}

func (s *FileStore) store(states map[string]domain.SyncState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal cursor state: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cursor file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cursor file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}

var _ domain.CursorStore = (*FileStore)(nil)
