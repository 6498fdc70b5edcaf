package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-search-bot/internal/adapters/bot"
	"tg-search-bot/internal/adapters/index"
	"tg-search-bot/internal/adapters/policy"
	"tg-search-bot/internal/domain"
	"tg-search-bot/internal/infra/config"
	applog "tg-search-bot/internal/infra/log"
	"tg-search-bot/internal/infra/metrics"
	"tg-search-bot/internal/infra/queue"
	searchusecase "tg-search-bot/internal/usecase/search"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.ForComponent(logger, "metrics"), fmt.Sprintf(":%d", cfg.MetricsPort))

	indexer, err := index.NewMeili(cfg.Meili.Host, cfg.Meili.Key, cfg.Meili.Index, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: индекс недоступен")
	}

	var messageQueue domain.MessageQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitMessageQueue(cfg.RabbitURL, cfg.Queues.Messages)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		messageQueue = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		messageQueue = queue.NewRedisMessageQueue(redisClient, cfg.Queues.Messages)
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot-gateway: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	policyFilter := policy.NewFilter(cfg.Sync.PolicyFile, logger)
	searchService := searchusecase.NewService(indexer)
	handler := bot.NewHandler(botAPI, logger, searchService, indexer, messageQueue, policyFilter, cfg.OwnerIDs)

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
