package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`

	Telegram struct {
		Token   string `envconfig:"TG_BOT_TOKEN"`
		APIID   int    `envconfig:"TG_API_ID"`
		APIHash string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		SessionFile string `envconfig:"MTPROTO_SESSION_FILE" default:"mtproto.session"`
	} `envconfig:""`

	Meili struct {
		Host  string `envconfig:"MEILI_HOST" default:"http://127.0.0.1:7700"`
		Key   string `envconfig:"MEILI_MASTER_KEY"`
		Index string `envconfig:"MEILI_INDEX" default:"telegram"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitURL переключает очередь сообщений с Redis на RabbitMQ.
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Messages string `envconfig:"MESSAGE_QUEUE_KEY" default:"message_queue"`
	} `envconfig:""`

	Sync struct {
		PolicyFile   string        `envconfig:"SYNC_POLICY_FILE" default:"sync.ini"`
		CursorFile   string        `envconfig:"SYNC_STATUS_FILE" default:"sync_status.json"`
		StartupDelay time.Duration `envconfig:"SYNC_STARTUP_DELAY" default:"30s"`
	} `envconfig:""`

	Limits struct {
		UpsertCapacity float64 `envconfig:"UPSERT_BUCKET_CAPACITY" default:"5"`
		UpsertFillRate float64 `envconfig:"UPSERT_BUCKET_FILL_RATE" default:"5"`
	} `envconfig:""`

	OwnerIDs []int64 `envconfig:"OWNER_IDS"`

	Port        int `envconfig:"PORT" default:"8080"`
	MetricsPort int `envconfig:"METRICS_PORT" default:"9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// IsOwner проверяет, входит ли пользователь в список владельцев бота.
func (c AppConfig) IsOwner(userID int64) bool {
	for _, id := range c.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
