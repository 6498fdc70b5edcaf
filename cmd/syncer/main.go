package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-search-bot/internal/adapters/cursor"
	"tg-search-bot/internal/adapters/index"
	"tg-search-bot/internal/adapters/mtproto"
	"tg-search-bot/internal/adapters/policy"
	"tg-search-bot/internal/adapters/telegram"
	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/cache"
	"tg-search-bot/internal/infra/config"
	applog "tg-search-bot/internal/infra/log"
	"tg-search-bot/internal/infra/metrics"
	"tg-search-bot/internal/infra/queue"
	"tg-search-bot/internal/infra/ratelimit"
	syncusecase "tg-search-bot/internal/usecase/sync"
)

const queueDepthInterval = 15 * time.Second

func main() {
	var (
		clearSync bool
		resetSync bool
	)
	flag.BoolVar(&clearSync, "clear-sync", false, "очистить очередь, курсоры и лимитер")
	flag.BoolVar(&resetSync, "reset-sync", false, "то же, что -clear-sync, плюс очистка индекса")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	var messageQueue domain.MessageQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitMessageQueue(cfg.RabbitURL, cfg.Queues.Messages)
		if err != nil {
			logger.Fatal().Err(err).Msg("syncer: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		messageQueue = rabbit
	} else {
		messageQueue = queue.NewRedisMessageQueue(redisClient, cfg.Queues.Messages)
	}

	indexer, err := index.NewMeili(cfg.Meili.Host, cfg.Meili.Key, cfg.Meili.Index, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("syncer: индекс недоступен")
	}

	cursors := cursor.NewFileStore(cfg.Sync.CursorFile, logger)
	bucket := ratelimit.NewTokenBucket(cfg.Limits.UpsertCapacity, cfg.Limits.UpsertFillRate)

	if clearSync || resetSync {
		runReset(ctx, logger, messageQueue, cursors, bucket, indexer, resetSync)
		return
	}

	metrics.StartServer(ctx, applog.ForComponent(logger, "metrics"), fmt.Sprintf(":%d", cfg.MetricsPort))

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("syncer: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("syncer: не удалось создать бота")
	}

	policyFilter := policy.NewFilter(cfg.Sync.PolicyFile, logger)
	capture := syncusecase.NewCapture(messageQueue, policyFilter, botAPI.Self.ID, applog.ForComponent(logger, "capture"))
	consumer := syncusecase.NewConsumer(messageQueue, bucket, indexer, applog.ForComponent(logger, "consumer"))

	var reporter domain.ProgressReporter
	if len(cfg.OwnerIDs) > 0 {
		reporter = telegram.NewReporter(botAPI, cfg.OwnerIDs[0], cache.NewRedis(redisClient), logger)
	}

	history := mtproto.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.MTProto.SessionFile, logger)
	engine := syncusecase.NewEngine(policyFilter, cursors, messageQueue, history, reporter, applog.ForComponent(logger, "backfill"))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runCapture(ctx, botAPI, capture)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchQueueDepth(ctx, messageQueue)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runBackfill(ctx, cfg.Sync.StartupDelay, history, engine, logger)
	}()

	logger.Info().Msg("syncer: запущен")
	<-ctx.Done()
	wg.Wait()
	logger.Info().Msg("syncer: остановлен")
}

// runCapture читает long-poll апдейты и передаёт живые события в захват.
func runCapture(ctx context.Context, botAPI *tgbotapi.BotAPI, capture *syncusecase.Capture) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			var msg *tgbotapi.Message
			switch {
			case upd.Message != nil:
				msg = upd.Message
			case upd.EditedMessage != nil:
				msg = upd.EditedMessage
			case upd.ChannelPost != nil:
				msg = upd.ChannelPost
			case upd.EditedChannelPost != nil:
				msg = upd.EditedChannelPost
			default:
				continue
			}
			capture.Handle(ctx, telegram.FromBotAPI(msg))
		}
	}
}

// runBackfill ждёт стартовую задержку, открывает MTProto-сессию и
// выполняет один прогон бэкфилла внутри неё.
func runBackfill(ctx context.Context, delay time.Duration, history *mtproto.Client, engine *syncusecase.Engine, logger zerolog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}
	err := history.Run(ctx, func(ctx context.Context) error {
		return engine.Run(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("syncer: бэкфилл остановлен с ошибкой")
	}
}

func watchQueueDepth(ctx context.Context, messageQueue domain.MessageQueue) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := messageQueue.Len(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

// runReset сбрасывает состояние синхронизации; с wipeIndex очищает и индекс.
func runReset(ctx context.Context, logger zerolog.Logger, messageQueue domain.MessageQueue, cursors domain.CursorStore, bucket domain.RateLimiter, indexer domain.Indexer, wipeIndex bool) {
	if err := messageQueue.Clear(ctx); err != nil {
		logger.Error().Err(err).Msg("syncer: не удалось очистить очередь")
	}
	if err := cursors.Reset(); err != nil {
		logger.Error().Err(err).Msg("syncer: не удалось сбросить курсоры")
	}
	bucket.Reset()
	if wipeIndex {
		if err := indexer.DeleteAll(ctx); err != nil {
			logger.Error().Err(err).Msg("syncer: не удалось очистить индекс")
		} else {
			logger.Info().Msg("syncer: индекс очищен")
		}
	}
	logger.Info().Msg("syncer: состояние синхронизации сброшено")
}
