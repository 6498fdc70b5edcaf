package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/metrics"
)

const (
	// checkpointEvery — сколько сообщений обходится между сохранениями курсора.
	checkpointEvery = 100
	// checkpointYield — кооперативная пауза после каждого чекпойнта.
	checkpointYield = time.Second
	// sourceErrorPause — пауза перед переходом к следующему источнику после ошибки.
	sourceErrorPause = 5 * time.Second
)

// ErrNonMonotonicHistory сигнализирует о нарушении предпосылки
// монотонности идентификаторов в истории чата.
var ErrNonMonotonicHistory = errors.New("history ids are not monotonically decreasing")

// SyncConfig отдаёт список источников и решения о допуске чатов.
type SyncConfig interface {
	domain.AccessFilter
	Sources() []string
}

// Engine — возобновляемый бэкфилл истории. По каждому источнику обходит
// сообщения от новых к старым до сохранённой вотермарки, ставит их в
// очередь и периодически чекпойнтит прогресс. Ошибка одного источника
// не прерывает весь прогон.
type Engine struct {
	config   SyncConfig
	cursors  domain.CursorStore
	queue    domain.MessageQueue
	history  domain.HistoryClient
	reporter domain.ProgressReporter
	log      zerolog.Logger

	yield      time.Duration
	errorPause time.Duration
}

// NewEngine создаёт движок бэкфилла.
func NewEngine(config SyncConfig, cursors domain.CursorStore, queue domain.MessageQueue, history domain.HistoryClient, reporter domain.ProgressReporter, log zerolog.Logger) *Engine {
	return &Engine{
		config:     config,
		cursors:    cursors,
		queue:      queue,
		history:    history,
		reporter:   reporter,
		log:        log,
		yield:      checkpointYield,
		errorPause: sourceErrorPause,
	}
}

// Run выполняет один прогон по всем настроенным источникам. Повторный
// запуск (например, после рестарта процесса) перечитывает курсоры и
// продолжает только незавершённые и новые источники.
func (e *Engine) Run(ctx context.Context) error {
	runLog := e.log.With().Str("run_id", uuid.NewString()[:8]).Logger()

	sources := e.config.Sources()
	states, err := e.cursors.All()
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}

	// Сборка мусора: курсоры источников, убранных из конфигурации.
	configured := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		configured[src] = struct{}{}
	}
	for src := range states {
		if _, ok := configured[src]; ok {
			continue
		}
		if err := e.cursors.Delete(src); err != nil {
			runLog.Warn().Err(err).Str("source", src).Msg("backfill: не удалось удалить устаревший курсор")
			continue
		}
		runLog.Debug().Str("source", src).Msg("backfill: удалён курсор отписанного источника")
	}

	if len(sources) == 0 {
		runLog.Info().Msg("backfill: источники не настроены")
		return nil
	}

	e.reportStart(ctx, "Начинаем синхронизацию истории...")

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, ok, err := e.cursors.Get(src)
		if err != nil {
			runLog.Error().Err(err).Str("source", src).Msg("backfill: не удалось прочитать курсор")
			continue
		}
		if ok && state.Completed {
			runLog.Debug().Str("source", src).Int64("last_id", state.LastID).Msg("backfill: источник уже синхронизирован")
			continue
		}
		if err := e.syncSource(ctx, src, state.LastID, runLog); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			metrics.BackfillErrors.Inc()
			runLog.Error().Err(err).Str("source", src).Msg("backfill: ошибка синхронизации источника")
			e.reportUpdate(ctx, fmt.Sprintf("Ошибка синхронизации %s: %v", src, err))
			e.pause(ctx, e.errorPause)
		}
	}

	runLog.Info().Msg("backfill: синхронизация истории завершена")
	e.reportUpdate(ctx, "Синхронизация истории завершена")
	return nil
}

// syncSource обходит историю одного источника от новых к старым и
// останавливается на первом сообщении с id <= lastID.
func (e *Engine) syncSource(ctx context.Context, source string, lastID int64, runLog zerolog.Logger) error {
	meta, err := e.history.ResolveChat(ctx, source)
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	// Источник могли запретить уже после подписки: курсор не трогаем.
	if !e.config.IsAllowed(meta.ID, meta.Type) {
		runLog.Info().Str("source", source).Msg("backfill: источник отклонён политикой доступа, пропускаем")
		return nil
	}

	if err := e.cursors.Put(source, domain.SyncState{Completed: false, LastID: lastID}); err != nil {
		return fmt.Errorf("save initial cursor: %w", err)
	}

	var (
		processed int
		lastSeen  = lastID
		prevID    int64
		walkErr   error
	)
	err = e.history.WalkHistory(ctx, meta, func(msg domain.Message) (bool, error) {
		// Монотонность — предпосылка, а не гарантия: расхождение
		// останавливает обход, чтобы не испортить вотермарку.
		if prevID != 0 && msg.ID >= prevID {
			walkErr = fmt.Errorf("%w: %d after %d", ErrNonMonotonicHistory, msg.ID, prevID)
			return false, nil
		}
		prevID = msg.ID
		if msg.ID <= lastID {
			return false, nil
		}
		if lastSeen == lastID {
			lastSeen = msg.ID
		}
		if msg.Indexable() {
			if err := e.queue.Push(ctx, msg); err != nil {
				return false, fmt.Errorf("push message: %w", err)
			}
			metrics.BackfillMessagesTotal.WithLabelValues(source).Inc()
		}
		processed++
		if processed%checkpointEvery == 0 {
			if err := e.cursors.Put(source, domain.SyncState{Completed: false, LastID: msg.ID}); err != nil {
				return false, fmt.Errorf("save checkpoint: %w", err)
			}
			progress := fmt.Sprintf("Синхронизировано до сообщения %d для %s", msg.ID, source)
			runLog.Info().Str("source", source).Int64("checkpoint", msg.ID).Msg("backfill: чекпойнт")
			e.reportUpdate(ctx, progress)
			e.pause(ctx, e.yield)
		}
		return ctx.Err() == nil, nil
	})
	if err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.cursors.Put(source, domain.SyncState{Completed: true, LastID: lastSeen}); err != nil {
		return fmt.Errorf("save final cursor: %w", err)
	}
	runLog.Info().Str("source", source).Int64("last_id", lastSeen).Int("processed", processed).Msg("backfill: источник синхронизирован")
	return nil
}

func (e *Engine) reportStart(ctx context.Context, text string) {
	if e.reporter == nil {
		return
	}
	if err := e.reporter.Start(ctx, text); err != nil {
		e.log.Warn().Err(err).Msg("backfill: не удалось отправить статусное сообщение")
	}
}

func (e *Engine) reportUpdate(ctx context.Context, text string) {
	if e.reporter == nil {
		return
	}
	if err := e.reporter.Update(ctx, text); err != nil {
		e.log.Warn().Err(err).Msg("backfill: не удалось обновить статусное сообщение")
	}
}

func (e *Engine) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
