package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	QueuePushTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "message_queue_push_total",
		Help: "Сообщений положено в очередь",
	})
	QueuePopTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "message_queue_pop_total",
		Help: "Сообщений снято из очереди",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "message_queue_depth",
		Help: "Текущая глубина очереди сообщений",
	})
	UpsertTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "index_upsert_total",
		Help: "Количество upsert-операций в индекс",
	}, []string{"status"})
	UpsertSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "index_upsert_seconds",
		Help:    "Длительность upsert в индекс",
		Buckets: prometheus.DefBuckets,
	})
	BackfillMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backfill_messages_total",
		Help: "Исторических сообщений поставлено в очередь",
	}, []string{"source"})
	BackfillErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backfill_errors_total",
		Help: "Ошибки обхода истории по источникам",
	})
	CaptureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_messages_total",
		Help: "Живых событий, прошедших через захват",
	}, []string{"outcome"})
	SearchRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Количество поисковых запросов",
	})
	RateLimitWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_waits_total",
		Help: "Сколько раз потребитель ждал токен",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		QueuePushTotal,
		QueuePopTotal,
		QueueDepth,
		UpsertTotal,
		UpsertSeconds,
		BackfillMessagesTotal,
		BackfillErrors,
		CaptureTotal,
		SearchRequestsTotal,
		RateLimitWaits,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
